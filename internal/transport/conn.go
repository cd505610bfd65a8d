package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/park285/cheese-duel/internal/duel"
	"github.com/park285/cheese-duel/pkg/duelproto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	errConnClosed   = errf("connection closed")
	errSlowConsumer = errf("outbound queue full")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// conn is one websocket participant. It implements duel.Peer: Send only
// enqueues, and the writer goroutine owns every write to the socket.
type conn struct {
	id  string
	hub *Hub
	ws  *websocket.Conn

	send      chan duelproto.Frame
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	binding     duel.Binding
	closeReason string

	windowStart    time.Time
	framesInWindow int
}

func newConn(h *Hub, id string, ws *websocket.Conn) *conn {
	return &conn{
		id:   id,
		hub:  h,
		ws:   ws,
		send: make(chan duelproto.Frame, h.buffer),
		done: make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Send enqueues f. A full queue closes the connection as a slow consumer.
func (c *conn) Send(f duelproto.Frame) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.hub.logger.Warn("ws_slow_consumer", zap.String("conn_id", c.id), zap.String("type", f.Type))
		c.Close("slow consumer")
		return errSlowConsumer
	}
}

// Close marks the connection closed and returns immediately.
func (c *conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *conn) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

func (c *conn) bound() duel.Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding
}

func (c *conn) bind(b duel.Binding) {
	c.mu.Lock()
	c.binding = b
	c.mu.Unlock()
}

func (c *conn) writeLoop(ctx context.Context) {
	ping := time.NewTicker(c.hub.ping)
	defer ping.Stop()
	for {
		select {
		case f := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, f)
			cancel()
			if err != nil {
				c.hub.logger.Debug("ws_write_error", zap.String("conn_id", c.id), zap.Error(err))
				c.Close("write failed")
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.Close("ping failed")
			}
		case <-c.done:
			_ = c.ws.Close(websocket.StatusNormalClosure, c.reason())
			return
		case <-ctx.Done():
			_ = c.ws.Close(websocket.StatusGoingAway, "server shutdown")
			return
		}
	}
}

func (c *conn) readLoop(ctx context.Context) {
	decodeErrors := 0
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		var f duelproto.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			decodeErrors++
			c.sendError("", duel.CodeInvalidArgument, "invalid frame", false)
			if decodeErrors >= maxDecodeErrors {
				c.Close("too many invalid frames")
				return
			}
			continue
		}
		decodeErrors = 0

		if !c.allowFrame(time.Now()) {
			c.sendError(f.RequestID, CodeRateLimited, "", true)
			continue
		}
		c.hub.dispatch(ctx, c, f)
	}
}

// allowFrame applies the per-second inbound frame budget.
func (c *conn) allowFrame(now time.Time) bool {
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.framesInWindow = 0
	}
	c.framesInWindow++
	return c.framesInWindow <= c.hub.fps
}

// sendError emits an error frame. An empty message is taken from the catalog.
func (c *conn) sendError(requestID, code, message string, retryable bool) {
	if message == "" {
		message = c.hub.catalog.RenderOr("error."+code, nil, code)
	}
	f, err := duelproto.NewFrame(duelproto.EventError, requestID, duelproto.Error{Message: message, Code: code, Retryable: retryable})
	if err != nil {
		return
	}
	_ = c.Send(f)
}
