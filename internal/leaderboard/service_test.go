package leaderboard_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/errors"
	"github.com/victornm/typerace/internal/event"
	"github.com/victornm/typerace/internal/leaderboard"
	"github.com/victornm/typerace/internal/store/memory"
)

func TestService_GetLeaderboard(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s := leaderboard.NewService(leaderboard.Config{Store: st})

	for _, r := range []domain.Result{
		{Username: "alice", WPM: 50},
		{Username: "alice", WPM: 70},
		{Username: "bob", WPM: 60},
	} {
		require.NoError(t, st.InsertResult(ctx, r))
	}

	l, err := s.GetLeaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, l.Entries, 2)
	assert.Equal(t, domain.LeaderboardEntry{Username: "alice", MaxWPM: 70, TestsTaken: 2}, l.Entries[0])
	assert.Equal(t, domain.LeaderboardEntry{Username: "bob", MaxWPM: 60, TestsTaken: 1}, l.Entries[1])

	again, err := s.GetLeaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, l, again)
}

func TestService_GetLeaderboardStoreFailure(t *testing.T) {
	s := leaderboard.NewService(leaderboard.Config{Store: failingStore{memory.New()}})

	_, err := s.GetLeaderboard(context.Background())
	require.Error(t, err)

	e := errors.Convert(err)
	assert.Equal(t, errors.CodeInternal, e.Code)
	assert.Equal(t, "Error fetching leaderboard data", e.Message)
	assert.ErrorIs(t, err, errStore)
}

func TestService_RefreshPublishesEvent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.InsertResult(ctx, domain.Result{Username: "alice", WPM: 42}))

	eb := event.NewBus()
	var (
		mu        sync.Mutex
		published []domain.EventLeaderboardUpdated
	)
	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(_ context.Context, e event.Event) error {
		mu.Lock()
		published = append(published, e.(domain.EventLeaderboardUpdated))
		mu.Unlock()
		return nil
	})

	s := leaderboard.NewService(leaderboard.Config{Store: st, EventBus: eb})
	l, err := s.Refresh(ctx)
	require.NoError(t, err)
	eb.Stop()

	require.Len(t, published, 1)
	assert.Equal(t, *l, published[0].Leaderboard)
}

var errStore = stderrors.New("store is down")

type failingStore struct {
	*memory.Store
}

func (failingStore) AggregateTopUsers(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return nil, errStore
}
