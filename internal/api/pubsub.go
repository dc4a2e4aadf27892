package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/event"
)

const maxConcurrent = 100

type (
	UserPresence struct {
		Username string   `json:"username"`
		Users    []string `json:"users"`
		Logout   bool     `json:"logout,omitempty"`
	}

	ResultSaved struct {
		Username string    `json:"username"`
		WPM      int       `json:"wpm"`
		Accuracy float64   `json:"accuracy"`
		TestDate time.Time `json:"test_date,omitempty"`
	}

	ResultsPurged struct {
		Username string `json:"username"`
		Deleted  int64  `json:"deleted"`
	}

	Leaderboard struct {
		Entries []domain.LeaderboardEntry `json:"entries"`
	}
)

// PublishEvent publishes a domain event to the <prefix>:<event> channel.
func (a *API) PublishEvent(ctx context.Context, e event.Event) error {
	var data any

	switch e := e.(type) {
	case domain.EventUserJoined:
		data = UserPresence{Username: e.Username, Users: e.Roster}
	case domain.EventUserLeft:
		data = UserPresence{Username: e.Username, Users: e.Roster, Logout: e.Logout}
	case domain.EventTestStarted:
		data = e.Announcement
	case domain.EventResultSaved:
		data = ResultSaved{
			Username: e.Result.Username,
			WPM:      e.Result.WPM,
			Accuracy: e.Result.Accuracy,
			TestDate: e.Result.TestDate,
		}
	case domain.EventResultsPurged:
		data = ResultsPurged{Username: e.Username, Deleted: e.Deleted}
	default:
		return fmt.Errorf("pubsub: unsupported event %s", e.Name())
	}

	return a.publishNotification(ctx, a.channel(e.Name()), e.Name(), data)
}

// PublishLeaderboardUpdated publishes the leaderboard to the shared channel and
// to the channel of every ranked user.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := Leaderboard{Entries: e.Leaderboard.Entries}
	if data.Entries == nil {
		data.Entries = []domain.LeaderboardEntry{}
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.publishNotification(ctx, a.channel(e.Name()), e.Name(), data)
	})

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.channel("user:"+entry.Username), e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) channel(name string) string {
	return fmt.Sprintf("%s:%s", a.prefix, name)
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
