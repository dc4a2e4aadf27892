// Package api exposes the session coordinator over WebSocket and HTTP and
// mirrors domain events to Redis.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/event"
	"github.com/victornm/typerace/internal/leaderboard"
	"github.com/victornm/typerace/internal/session"
	"github.com/victornm/typerace/internal/telemetry"
)

const defaultMaxMessageSize = 64 << 10

type Config struct {
	Coordinator *session.Coordinator
	Leaderboard *leaderboard.Service
	Hub         *Hub
	EventBus    *event.Bus
	Metrics     *telemetry.Metrics

	// Redis is optional. When set, domain events are published to it.
	Redis        Redis
	PubsubPrefix string

	StaticDir      string
	MaxMessageSize int64
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	coord   *session.Coordinator
	lb      *leaderboard.Service
	hub     *Hub
	metrics *telemetry.Metrics

	redis  Redis
	prefix string

	staticDir      string
	maxMessageSize int64
	upgrader       websocket.Upgrader

	// ctx is the parent of every connection context, cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(c Config) *API {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &API{
		coord:          c.Coordinator,
		lb:             c.Leaderboard,
		hub:            c.Hub,
		metrics:        c.Metrics,
		redis:          c.Redis,
		prefix:         c.PubsubPrefix,
		staticDir:      c.StaticDir,
		maxMessageSize: c.MaxMessageSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	// Register event handlers
	if a.redis != nil && c.EventBus != nil {
		for _, name := range []string{
			domain.EventNameUserJoined,
			domain.EventNameUserLeft,
			domain.EventNameTestStarted,
			domain.EventNameResultSaved,
			domain.EventNameResultsPurged,
		} {
			c.EventBus.Subscribe(name, a.PublishEvent)
		}

		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}

// Register mounts the HTTP and WebSocket routes on e.
func (a *API) Register(e *gin.Engine) {
	e.Use(CORS(), RequestLogger())

	e.GET("/health", a.health)
	e.GET("/ws", a.serveWS)
	e.GET("/api/leaderboard", a.getLeaderboard)

	if a.staticDir != "" {
		a.registerStatic(e)
	}
}

// Close cancels in-flight requests of every connection and closes them.
func (a *API) Close() {
	a.cancel()
	a.hub.Close()
}
