// Package memory is a non-persistent result store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/leaderboard"
)

type Store struct {
	mu      sync.RWMutex
	results []domain.Result
	now     func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) InsertResult(_ context.Context, r domain.Result) error {
	if r.TestDate.IsZero() {
		r.TestDate = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, r)
	return nil
}

func (s *Store) DeleteResultsByUser(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.results[:0]
	for _, r := range s.results {
		if r.Username != username {
			kept = append(kept, r)
		}
	}

	deleted := int64(len(s.results) - len(kept))
	clear(s.results[len(kept):])
	s.results = kept

	return deleted, nil
}

func (s *Store) AggregateTopUsers(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return leaderboard.Aggregate(s.results, limit), nil
}

// Results returns a copy of all stored results in insertion order.
func (s *Store) Results() []domain.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Result(nil), s.results...)
}

func (*Store) Ping(context.Context) error { return nil }

func (*Store) Close() {}
