package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/typerace/internal/domain"
	"github.com/victornm/typerace/internal/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

const (
	msgInvalidFormat = "Invalid message format"
	msgUnknownEvent  = "Unknown event"
)

// inbound is the envelope of a frame received from a client.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type startTestData struct {
	Paragraph any `json:"paragraph"`
	Duration  any `json:"duration"`
}

type usernameData struct {
	Username string `json:"username"`
}

func (a *API) serveWS(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	ctx := a.ctx
	s := a.hub.add(id, conn)

	if err := a.coord.HandleConnect(ctx, id); err != nil {
		slog.WarnContext(ctx, "api: connection rejected", "conn", id, "error", err)
		a.hub.remove(id)
		return
	}

	a.metrics.ConnectionOpened()
	slog.InfoContext(ctx, "api: websocket connected", "conn", id, "remote", c.Request.RemoteAddr)

	go a.writePump(conn, s)
	a.readPump(ctx, conn, id)
}

// readPump processes the frames of one connection in arrival order until it
// is closed, then disconnects it from the coordinator.
func (a *API) readPump(ctx context.Context, conn *websocket.Conn, id string) {
	defer func() {
		a.hub.remove(id)
		a.coord.HandleDisconnect(context.WithoutCancel(ctx), id)
		a.metrics.ConnectionClosed()
		slog.InfoContext(ctx, "api: websocket disconnected", "conn", id)
	}()

	conn.SetReadLimit(a.maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.WarnContext(ctx, "api: websocket read failed", "conn", id, "error", err)
			}
			return
		}

		if !a.dispatch(ctx, id, msg) {
			return
		}
	}
}

// writePump writes queued frames and pings to the connection.
func (a *API) writePump(conn *websocket.Conn, s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.WarnContext(a.ctx, "api: websocket write failed", "conn", s.id, "error", err)
				a.hub.remove(s.id)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				a.hub.remove(s.id)
				return
			}
		}
	}
}

// dispatch routes one inbound frame to the coordinator. It returns false when
// the client asked to close the connection.
func (a *API) dispatch(ctx context.Context, id string, msg []byte) bool {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil || in.Event == "" {
		a.hub.Unicast(ctx, id, session.EventError, session.ErrorPayload{Message: msgInvalidFormat})
		return true
	}

	var err error

	switch in.Event {
	case session.EventUserJoined:
		var username string
		if username, err = decodeUsername(in.Data); err == nil {
			err = a.coord.HandleJoin(ctx, id, username)
		}

	case session.EventStartTest:
		// an undecodable payload is validated as an empty request
		req, _ := decodeStartTest(in.Data)
		err = a.coord.HandleStartTest(ctx, id, req)

	case session.EventTestCompleted:
		var r domain.Result
		if err = json.Unmarshal(in.Data, &r); err == nil {
			err = a.coord.HandleTestCompleted(ctx, id, r)
		}

	case session.EventRequestLeaderboard:
		err = a.coord.HandleRequestLeaderboard(ctx, id)

	case session.EventUserLogout:
		var username string
		if username, err = decodeUsername(in.Data); err == nil {
			err = a.coord.HandleLogout(ctx, id, username)
		}

	case session.EventDisconnect:
		return false

	default:
		slog.DebugContext(ctx, "api: unknown event", "conn", id, "event", in.Event)
		a.hub.Unicast(ctx, id, session.EventError, session.ErrorPayload{Message: msgUnknownEvent})
		return true
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, errNoUsername) {
		a.hub.Unicast(ctx, id, session.EventError, session.ErrorPayload{Message: msgInvalidFormat})
	}
	if err != nil {
		slog.DebugContext(ctx, "api: event not handled", "conn", id, "event", in.Event, "error", err)
	}

	return true
}

var errNoUsername = errors.New("username is missing")

// decodeUsername accepts either a bare JSON string or {"username": "..."}.
func decodeUsername(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", errNoUsername
	}

	if data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		return s, err
	}

	var u usernameData
	if err := json.Unmarshal(data, &u); err != nil {
		return "", err
	}

	return u.Username, nil
}

// decodeStartTest keeps numbers as json.Number so that the duration can be
// coerced the same way whether it was sent as a number or a string.
func decodeStartTest(data json.RawMessage) (session.StartTestRequest, error) {
	var d startTestData

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return session.StartTestRequest{}, err
	}

	return session.StartTestRequest{Paragraph: d.Paragraph, Duration: d.Duration}, nil
}
