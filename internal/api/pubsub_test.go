package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/event"
)

type fakeEvent struct{}

func (fakeEvent) Name() string { return "fake" }

func makePubsub(t *testing.T, channels ...string) (*API, *event.Bus, *redis.PubSub) {
	t.Helper()

	rs := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: rs.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, channels...)
	t.Cleanup(func() { _ = sub.Close() })
	for range channels {
		_, err := sub.Receive(ctx)
		require.NoError(t, err)
	}

	eb := event.NewBus()
	a := New(Config{
		Hub:          NewHub(HubConfig{}),
		EventBus:     eb,
		Redis:        rdb,
		PubsubPrefix: "typerace",
	})

	return a, eb, sub
}

func readNotification(t *testing.T, sub *redis.PubSub) (string, Notification, json.RawMessage) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var raw struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &raw))

	return msg.Channel, Notification{Event: raw.Event}, raw.Data
}

func TestAPI_PublishLeaderboardUpdated(t *testing.T) {
	a, _, sub := makePubsub(t, "typerace:leaderboard.updated", "typerace:user:alice", "typerace:user:bob")

	entries := []domain.LeaderboardEntry{
		{Username: "alice", MaxWPM: 70, AvgAccuracy: 95, TestsTaken: 2},
		{Username: "bob", MaxWPM: 60, AvgAccuracy: 80, TestsTaken: 1},
	}
	err := a.PublishLeaderboardUpdated(context.Background(), domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{Entries: entries},
	})
	require.NoError(t, err)

	got := make(map[string]bool)
	for range 3 {
		channel, n, data := readNotification(t, sub)
		got[channel] = true

		assert.Equal(t, domain.EventNameLeaderboardUpdated, n.Event)
		assert.JSONEq(t, `{"entries":[
			{"username":"alice","max_wpm":70,"avg_accuracy":95,"tests_taken":2},
			{"username":"bob","max_wpm":60,"avg_accuracy":80,"tests_taken":1}
		]}`, string(data))
	}

	assert.Equal(t, map[string]bool{
		"typerace:leaderboard.updated": true,
		"typerace:user:alice":          true,
		"typerace:user:bob":            true,
	}, got)
}

func TestAPI_PublishEventFromBus(t *testing.T) {
	_, eb, sub := makePubsub(t, "typerace:user.left")

	eb.Publish(context.Background(), domain.EventUserLeft{Username: "alice", Roster: []string{"bob"}, Logout: true})

	channel, n, data := readNotification(t, sub)
	assert.Equal(t, "typerace:user.left", channel)
	assert.Equal(t, domain.EventNameUserLeft, n.Event)
	assert.JSONEq(t, `{"username":"alice","users":["bob"],"logout":true}`, string(data))

	eb.Stop()
}

func TestAPI_PublishEventUnsupported(t *testing.T) {
	a, _, _ := makePubsub(t, "typerace:fake")

	err := a.PublishEvent(context.Background(), fakeEvent{})
	assert.Error(t, err)
}
