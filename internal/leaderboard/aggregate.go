package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/victornm/typerace/internal/domain"
)

type stats struct {
	maxWPM int
	sum    decimal.Decimal
	count  int
}

// Aggregate computes the leaderboard over results: max WPM, mean accuracy and
// number of tests per username, sorted by max WPM descending and username
// ascending, truncated to limit entries. A limit <= 0 means no limit.
//
// Accuracies are summed as decimals so the output does not depend on the
// order of results.
func Aggregate(results []domain.Result, limit int) []domain.LeaderboardEntry {
	byUser := make(map[string]*stats)
	for _, r := range results {
		s, ok := byUser[r.Username]
		if !ok {
			s = &stats{maxWPM: r.WPM}
			byUser[r.Username] = s
		}

		if r.WPM > s.maxWPM {
			s.maxWPM = r.WPM
		}
		s.sum = s.sum.Add(decimal.NewFromFloat(r.Accuracy))
		s.count++
	}

	entries := make([]domain.LeaderboardEntry, 0, len(byUser))
	for username, s := range byUser {
		entries = append(entries, domain.LeaderboardEntry{
			Username:    username,
			MaxWPM:      s.maxWPM,
			AvgAccuracy: s.sum.Div(decimal.NewFromInt(int64(s.count))).InexactFloat64(),
			TestsTaken:  s.count,
		})
	}

	Sort(entries)

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries
}

// Sort orders entries by max WPM descending, then by username.
func Sort(entries []domain.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MaxWPM != entries[j].MaxWPM {
			return entries[i].MaxWPM > entries[j].MaxWPM
		}
		return entries[i].Username < entries[j].Username
	})
}
