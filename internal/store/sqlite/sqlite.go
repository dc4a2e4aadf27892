// Package sqlite implements store.ResultStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/store"
)

type Store struct {
	db *sql.DB
}

// Open opens the database at path and creates the results table if needed.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection, and ":memory:" databases
	// are private to the connection that created them.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTable(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS ` + store.TableName + ` (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	username        TEXT NOT NULL,
	wpm             INTEGER,
	errors          INTEGER,
	incorrect_words INTEGER,
	correct_words   INTEGER,
	backspace_count INTEGER,
	accuracy        REAL,
	typed_words     INTEGER,
	test_duration   INTEGER,
	test_date       DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_` + store.TableName + `_username ON ` + store.TableName + ` (username);`

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	return nil
}

func (s *Store) InsertResult(ctx context.Context, r domain.Result) error {
	const stmt = `
INSERT INTO ` + store.TableName + `
	(username, wpm, errors, incorrect_words, correct_words, backspace_count, accuracy, typed_words, test_duration, test_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`

	var testDate *time.Time
	if !r.TestDate.IsZero() {
		t := r.TestDate.UTC()
		testDate = &t
	}

	_, err := s.db.ExecContext(ctx, stmt,
		r.Username, r.WPM, r.Errors, r.IncorrectWords, r.CorrectWords,
		r.BackspaceCount, r.Accuracy, r.TypedWords, r.TestDuration, testDate,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	return nil
}

func (s *Store) DeleteResultsByUser(ctx context.Context, username string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+store.TableName+` WHERE username = ?`, username)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return n, nil
}

func (s *Store) AggregateTopUsers(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, store.AggregateQuery("?"), limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.MaxWPM, &e.AvgAccuracy, &e.TestsTaken); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}

	return entries, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}
