// Package store defines the persistence contract for typing test results.
package store

import (
	"context"

	"github.com/victornm/typerace/internal/domain"
)

// DefaultLeaderboardLimit is the number of users shown on the leaderboard.
const DefaultLeaderboardLimit = 100

// ResultStore persists typing test results and answers leaderboard queries.
type ResultStore interface {
	// InsertResult stores a single result. TestDate defaults to the insertion time when zero.
	InsertResult(ctx context.Context, r domain.Result) error

	// DeleteResultsByUser removes every result of username and returns the number of removed rows.
	DeleteResultsByUser(ctx context.Context, username string) (int64, error)

	// AggregateTopUsers groups results by username and returns at most limit entries,
	// sorted by max WPM descending, then username ascending.
	AggregateTopUsers(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)

	Ping(ctx context.Context) error
	Close()
}

// Schema of the results table, shared by the SQL stores.
const (
	TableName = "user_typing_data"

	aggregateColumns = `username, COALESCE(MAX(wpm), 0) AS max_wpm, COALESCE(AVG(accuracy), 0) AS avg_accuracy, COUNT(*) AS tests_taken`
)

// AggregateQuery returns the leaderboard query using the given placeholder for the limit.
func AggregateQuery(limitPlaceholder string) string {
	return `
SELECT ` + aggregateColumns + `
FROM ` + TableName + `
GROUP BY username
ORDER BY max_wpm DESC, username ASC
LIMIT ` + limitPlaceholder + `;`
}
