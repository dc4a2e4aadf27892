// Package session coordinates a live typing test: presence of connected
// users, test announcements, result ingestion and leaderboard refresh.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/errors"
	"github.com/victornm/typerace/internal/event"
	"github.com/victornm/typerace/internal/leaderboard"
	"github.com/victornm/typerace/internal/presence"
	"github.com/victornm/typerace/internal/store"
	"github.com/victornm/typerace/internal/telemetry"
)

// Outbound event names.
const (
	EventUpdateConnectedUsers = "updateConnectedUsers"
	EventTestStarted          = "testStarted"
	EventLeaderboardUpdate    = "leaderboardUpdate"
	EventError                = "error"
)

// Inbound event names, used for metrics.
const (
	EventUserJoined         = "userJoined"
	EventStartTest          = "startTest"
	EventTestCompleted      = "testCompleted"
	EventRequestLeaderboard = "requestLeaderboard"
	EventUserLogout         = "userLogout"
	EventDisconnect         = "disconnect"
)

const (
	msgInvalidTestData  = "Invalid test data"
	msgLeaderboardError = "Error fetching leaderboard data"
)

var (
	ErrConnectionClosed = errors.New(errors.CodeFailedPrecondition, errors.WithMessage("connection closed"))
	ErrShutdown         = errors.New(errors.CodeUnavailable, errors.WithMessage("session coordinator is shut down"))
)

// Broadcaster delivers outbound events to live connections. Delivery is
// fire-and-forget: a failure for one connection never affects the others and
// is never reported back to the caller.
type Broadcaster interface {
	BroadcastAll(ctx context.Context, event string, payload any)
	Unicast(ctx context.Context, connID, event string, payload any)
}

// ErrorPayload is the payload of an outbound error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

type Config struct {
	Broadcaster Broadcaster
	Store       store.ResultStore
	Leaderboard *leaderboard.Service
	EventBus    *event.Bus
	Metrics     *telemetry.Metrics
}

// Coordinator handles the inbound events of every connection.
//
// A single mutex guards the presence registry and the connection bindings.
// Roster broadcasts are issued while holding it, so that connections see
// roster updates in the order the mutations happened. Store calls are never
// made while holding it.
type Coordinator struct {
	bc      Broadcaster
	store   store.ResultStore
	lb      *leaderboard.Service
	eb      *event.Bus
	metrics *telemetry.Metrics

	mu       sync.Mutex
	presence *presence.Registry
	conns    map[string]*connection
	shutdown bool
}

// connection is the coordinator side of a live connection. A connection is
// unbound until its first join; once removed from conns it is closed.
type connection struct {
	username string
	bound    bool
}

func NewCoordinator(c Config) *Coordinator {
	lb := c.Leaderboard
	if lb == nil {
		lb = leaderboard.NewService(leaderboard.Config{
			Store:    c.Store,
			EventBus: c.EventBus,
		})
	}

	return &Coordinator{
		bc:       c.Broadcaster,
		store:    c.Store,
		lb:       lb,
		eb:       c.EventBus,
		metrics:  c.Metrics,
		presence: presence.NewRegistry(),
		conns:    make(map[string]*connection),
	}
}

// HandleConnect registers a new, unbound connection.
func (c *Coordinator) HandleConnect(ctx context.Context, connID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return ErrShutdown
	}

	if _, ok := c.conns[connID]; ok {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("connection %s already registered", connID))
	}

	c.conns[connID] = &connection{}
	slog.DebugContext(ctx, "session: connection registered", "conn", connID)

	return nil
}

// HandleJoin binds username to the connection, adds it to the presence set
// and broadcasts the roster to everyone.
func (c *Coordinator) HandleJoin(ctx context.Context, connID, username string) error {
	c.mu.Lock()
	conn, err := c.lookup(connID)
	if err != nil {
		c.mu.Unlock()
		c.metrics.ObserveEvent(EventUserJoined, "rejected")
		return err
	}

	conn.username = username
	conn.bound = true
	roster := c.presence.Join(username)
	c.publishRoster(ctx, roster)
	c.mu.Unlock()

	slog.InfoContext(ctx, "session: user joined", "conn", connID, "username", username, "users", len(roster))
	c.metrics.ObserveEvent(EventUserJoined, "ok")
	c.publish(ctx, domain.EventUserJoined{Username: username, Roster: roster})

	return nil
}

// HandleStartTest validates the request and broadcasts the announcement to
// everyone. An invalid request is reported to the originating connection only.
func (c *Coordinator) HandleStartTest(ctx context.Context, connID string, req StartTestRequest) error {
	if err := c.checkOpen(connID); err != nil {
		c.metrics.ObserveEvent(EventStartTest, "rejected")
		return err
	}

	a, err := req.Announcement()
	if err != nil {
		slog.WarnContext(ctx, "session: invalid test data", "conn", connID, "error", err)
		c.bc.Unicast(ctx, connID, EventError, ErrorPayload{Message: msgInvalidTestData})
		c.metrics.ObserveEvent(EventStartTest, "invalid")
		return errors.New(errors.CodeInvalidArgument, errors.WithMessage(msgInvalidTestData), errors.WithCause(err))
	}

	slog.InfoContext(ctx, "session: test started", "conn", connID, "duration", a.Duration)
	c.bc.BroadcastAll(ctx, EventTestStarted, a)
	c.metrics.ObserveEvent(EventStartTest, "ok")
	c.publish(ctx, domain.EventTestStarted{Announcement: a})

	return nil
}

// HandleTestCompleted stores the result and broadcasts the refreshed
// leaderboard to everyone. Store failures are logged and nothing is broadcast.
func (c *Coordinator) HandleTestCompleted(ctx context.Context, connID string, r domain.Result) error {
	if err := c.checkOpen(connID); err != nil {
		c.metrics.ObserveEvent(EventTestCompleted, "rejected")
		return err
	}

	start := time.Now()
	err := c.store.InsertResult(ctx, r)
	c.metrics.ObserveStore("insert", start, err)
	if err != nil {
		slog.ErrorContext(ctx, "session: save result failed", "conn", connID, "username", r.Username, "error", err)
		c.metrics.ObserveEvent(EventTestCompleted, "store_error")
		return errors.Internal(err)
	}

	slog.InfoContext(ctx, "session: result saved", "conn", connID, "username", r.Username, "wpm", r.WPM)
	c.publish(ctx, domain.EventResultSaved{Result: r})

	start = time.Now()
	l, err := c.lb.Refresh(ctx)
	c.metrics.ObserveStore("aggregate", start, err)
	if err != nil {
		slog.ErrorContext(ctx, "session: refresh leaderboard failed", "conn", connID, "error", err)
		c.metrics.ObserveEvent(EventTestCompleted, "store_error")
		return err
	}

	c.bc.BroadcastAll(ctx, EventLeaderboardUpdate, l.Entries)
	c.metrics.ObserveEvent(EventTestCompleted, "ok")

	return nil
}

// HandleRequestLeaderboard sends the current leaderboard to the requesting
// connection only, or an error event if it cannot be computed.
func (c *Coordinator) HandleRequestLeaderboard(ctx context.Context, connID string) error {
	if err := c.checkOpen(connID); err != nil {
		c.metrics.ObserveEvent(EventRequestLeaderboard, "rejected")
		return err
	}

	start := time.Now()
	l, err := c.lb.GetLeaderboard(ctx)
	c.metrics.ObserveStore("aggregate", start, err)
	if err != nil {
		slog.ErrorContext(ctx, "session: fetch leaderboard failed", "conn", connID, "error", err)
		c.bc.Unicast(ctx, connID, EventError, ErrorPayload{Message: msgLeaderboardError})
		c.metrics.ObserveEvent(EventRequestLeaderboard, "store_error")
		return err
	}

	c.bc.Unicast(ctx, connID, EventLeaderboardUpdate, l.Entries)
	c.metrics.ObserveEvent(EventRequestLeaderboard, "ok")

	return nil
}

// HandleLogout purges the results of username, then removes it from the
// presence set and broadcasts the roster. When the purge fails the presence
// set is left untouched.
func (c *Coordinator) HandleLogout(ctx context.Context, connID, username string) error {
	if err := c.checkOpen(connID); err != nil {
		c.metrics.ObserveEvent(EventUserLogout, "rejected")
		return err
	}

	if username == "" {
		slog.WarnContext(ctx, "session: logout without username ignored", "conn", connID)
		c.metrics.ObserveEvent(EventUserLogout, "invalid")
		return errors.New(errors.CodeInvalidArgument, errors.WithMessage("username is required"))
	}

	start := time.Now()
	n, err := c.store.DeleteResultsByUser(ctx, username)
	c.metrics.ObserveStore("delete", start, err)
	if err != nil {
		slog.ErrorContext(ctx, "session: delete user results failed", "conn", connID, "username", username, "error", err)
		c.metrics.ObserveEvent(EventUserLogout, "store_error")
		return errors.Internal(err)
	}

	c.mu.Lock()
	if conn, ok := c.conns[connID]; ok && conn.bound && conn.username == username {
		conn.username = ""
		conn.bound = false
	}
	roster := c.presence.Leave(username)
	c.publishRoster(ctx, roster)
	c.mu.Unlock()

	slog.InfoContext(ctx, "session: user logged out", "conn", connID, "username", username, "deleted", n)
	c.metrics.ObserveEvent(EventUserLogout, "ok")
	c.publish(ctx, domain.EventResultsPurged{Username: username, Deleted: n})
	c.publish(ctx, domain.EventUserLeft{Username: username, Roster: roster, Logout: true})

	return nil
}

// HandleDisconnect closes the connection. If a username was bound to it, the
// username leaves the presence set and the roster is broadcast; stored results
// are kept. Disconnecting an unknown or already closed connection is a no-op.
func (c *Coordinator) HandleDisconnect(ctx context.Context, connID string) {
	c.mu.Lock()
	conn, ok := c.conns[connID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.conns, connID)

	if !conn.bound {
		c.mu.Unlock()
		slog.DebugContext(ctx, "session: unbound connection closed", "conn", connID)
		c.metrics.ObserveEvent(EventDisconnect, "ok")
		return
	}

	roster := c.presence.Leave(conn.username)
	c.publishRoster(ctx, roster)
	c.mu.Unlock()

	slog.InfoContext(ctx, "session: user disconnected", "conn", connID, "username", conn.username)
	c.metrics.ObserveEvent(EventDisconnect, "ok")
	c.publish(ctx, domain.EventUserLeft{Username: conn.username, Roster: roster})
}

// Roster returns the connected usernames in join order.
func (c *Coordinator) Roster() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.presence.Roster()
}

// Shutdown rejects further events and forgets every connection.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
	n := len(c.conns)
	c.conns = make(map[string]*connection)
	c.presence = presence.NewRegistry()
	c.metrics.SetConnectedUsers(0)

	slog.InfoContext(ctx, "session: coordinator shut down", "connections", n)
}

// lookup must be called with c.mu held.
func (c *Coordinator) lookup(connID string) (*connection, error) {
	if c.shutdown {
		return nil, ErrShutdown
	}

	conn, ok := c.conns[connID]
	if !ok {
		return nil, ErrConnectionClosed
	}

	return conn, nil
}

func (c *Coordinator) checkOpen(connID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.lookup(connID)
	return err
}

// publishRoster must be called with c.mu held.
func (c *Coordinator) publishRoster(ctx context.Context, roster []string) {
	c.bc.BroadcastAll(ctx, EventUpdateConnectedUsers, roster)
	c.metrics.SetConnectedUsers(len(roster))
}

func (c *Coordinator) publish(ctx context.Context, e event.Event) {
	if c.eb != nil {
		c.eb.Publish(ctx, e)
	}
}
