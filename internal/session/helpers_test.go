package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/session"
	"github.com/victornm/typerace/internal/store/memory"
)

const all = "*"

type delivery struct {
	to      string
	event   string
	payload any
}

// recorder is a Broadcaster that records every delivery in order.
type recorder struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (r *recorder) BroadcastAll(_ context.Context, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{to: all, event: event, payload: payload})
}

func (r *recorder) Unicast(_ context.Context, connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{to: connID, event: event, payload: payload})
}

func (r *recorder) events(name string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []delivery
	for _, d := range r.deliveries {
		if d.event == name {
			out = append(out, d)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}

// faultyStore fails the operations whose error is set.
type faultyStore struct {
	*memory.Store
	insertErr    error
	deleteErr    error
	aggregateErr error
}

func (s *faultyStore) InsertResult(ctx context.Context, r domain.Result) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.Store.InsertResult(ctx, r)
}

func (s *faultyStore) DeleteResultsByUser(ctx context.Context, username string) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.Store.DeleteResultsByUser(ctx, username)
}

func (s *faultyStore) AggregateTopUsers(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if s.aggregateErr != nil {
		return nil, s.aggregateErr
	}
	return s.Store.AggregateTopUsers(ctx, limit)
}

type fixture struct {
	c     *session.Coordinator
	bc    *recorder
	store *faultyStore
}

func makeCoordinator(t *testing.T, conns ...string) fixture {
	t.Helper()

	f := fixture{
		bc:    &recorder{},
		store: &faultyStore{Store: memory.New()},
	}
	f.c = session.NewCoordinator(session.Config{
		Broadcaster: f.bc,
		Store:       f.store,
	})

	for _, id := range conns {
		require.NoError(t, f.c.HandleConnect(context.Background(), id))
	}

	return f
}
