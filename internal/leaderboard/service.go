package leaderboard

import (
	"context"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/errors"
	"github.com/victornm/typerace/internal/event"
	"github.com/victornm/typerace/internal/store"
)

type Config struct {
	Store    store.ResultStore
	EventBus *event.Bus
	Limit    int
}

// Service computes the leaderboard from the result store. The leaderboard is
// never cached, so every call reflects the store content at call time.
type Service struct {
	store store.ResultStore
	eb    *event.Bus
	limit int
}

func NewService(c Config) *Service {
	limit := c.Limit
	if limit <= 0 {
		limit = store.DefaultLeaderboardLimit
	}

	return &Service{
		store: c.Store,
		eb:    c.EventBus,
		limit: limit,
	}
}

// GetLeaderboard returns the top users. Store failures are returned as internal errors.
func (s *Service) GetLeaderboard(ctx context.Context) (*domain.Leaderboard, error) {
	entries, err := s.store.AggregateTopUsers(ctx, s.limit)
	if err != nil {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessage("Error fetching leaderboard data"),
			errors.WithCause(err),
		)
	}

	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

// Refresh recomputes the leaderboard and publishes leaderboard.updated.
func (s *Service) Refresh(ctx context.Context) (*domain.Leaderboard, error) {
	l, err := s.GetLeaderboard(ctx)
	if err != nil {
		return nil, err
	}

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
			Leaderboard: *l,
		})
	}

	return l, nil
}
