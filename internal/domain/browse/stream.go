package browse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/domain/activity"
	"github.com/wanderhost/browse-api/internal/pkg/logger"
)

// WebSocket constants
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 8
)

type streamConn struct {
	sess *Session
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	ctx  context.Context
}

// push queues msg, dropping the oldest queued message when the client is
// slow. Every message is a full snapshot, so only the newest matters.
func (c *streamConn) push(msg []byte) {
	for {
		select {
		case <-c.quit:
			return
		case c.send <- msg:
			return
		default:
			select {
			case <-c.send:
			default:
			}
		}
	}
}

func (c *streamConn) pushEvent(ev StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.LogError(c.ctx, err, "Failed to encode stream event")
		return
	}
	c.push(data)
}

// Stream handles WS /browse/sessions/{id}/ws
// The server pushes a snapshot after every state change; the client may
// drive the session with StreamCommand messages.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.LogError(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	c := &streamConn{
		sess: sess,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		quit: make(chan struct{}),
		ctx:  logger.WithFields(detach(r), "session_id", sess.ID.String()),
	}
	sess.streams.Add(1)

	unsubscribe := sess.Store.Subscribe(func(snap collection.Snapshot[activity.Activity]) {
		c.pushEvent(StreamEvent{Type: EventSnapshot, Snapshot: SnapshotResponseFrom(sess.ID, snap)})
	})
	c.pushEvent(StreamEvent{Type: EventSnapshot, Snapshot: SnapshotResponseFrom(sess.ID, sess.Store.Snapshot())})

	go h.streamWriter(c)
	go h.streamReader(c, unsubscribe)
}

func (h *Handler) streamReader(c *streamConn, unsubscribe func()) {
	defer func() {
		unsubscribe()
		close(c.quit)
		c.sess.streams.Add(-1)
		c.sess.Touch(time.Now())
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.LogWarn(c.ctx, "WebSocket read error", "error", err.Error())
			}
			return
		}

		var cmd StreamCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.pushEvent(StreamEvent{Type: EventError, Error: &OutcomeError{Code: "INVALID_COMMAND", Message: "Invalid JSON message"}})
			continue
		}
		c.sess.Touch(time.Now())

		// Commands block until their load settles; run them off the read loop
		// so a newer command can supersede an older one.
		go h.runCommand(c, cmd)
	}
}

func (h *Handler) runCommand(c *streamConn, cmd StreamCommand) {
	store := c.sess.Store

	var err error
	switch cmd.Type {
	case CommandFetch:
		err = store.Fetch(c.ctx)
	case CommandSetPage:
		err = store.SetPage(c.ctx, cmd.Page)
	case CommandTypeFilters:
		err = store.MergeFiltersDebounced(cmd.Filters)
	case CommandApplyFilters:
		var merged collection.FilterSet
		merged, err = store.Snapshot().Filters.Merge(cmd.Filters)
		if err == nil {
			err = store.ApplyFilters(c.ctx, merged)
		}
	case CommandClearFilters:
		err = store.ClearFilters(c.ctx)
	default:
		c.pushEvent(StreamEvent{Type: EventError, Error: &OutcomeError{Code: "INVALID_COMMAND", Message: "Unknown command type"}})
		return
	}

	var verr *collection.ValidationError
	switch {
	case errors.As(err, &verr):
		c.pushEvent(StreamEvent{Type: EventError, Error: &OutcomeError{Code: "VALIDATION_ERROR", Message: verr.Error()}})
	case errors.Is(err, collection.ErrUnknownFilterKey):
		c.pushEvent(StreamEvent{Type: EventError, Error: &OutcomeError{Code: "BAD_REQUEST", Message: err.Error()}})
	}
}

func (h *Handler) streamWriter(c *streamConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.sess.Done():
			data, _ := json.Marshal(StreamEvent{Type: EventSessionClosed})
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.TextMessage, data)
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return

		case <-c.quit:
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
