package duelclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/cheese-duel/pkg/duelproto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

type FrameCallback func(f duelproto.Frame)

type StateCallback func(state State)

type HeaderProvider func() map[string]string

type callbackEntry struct {
	id       int
	callback FrameCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Client is a duel websocket client. It remembers the seat token it was given
// and reclaims the seat automatically after a reconnect.
type Client struct {
	wsURL string

	conn   *websocket.Conn
	connM  sync.RWMutex
	state  State
	stateM sync.RWMutex

	frameCbs []callbackEntry
	stateCbs []stateCallbackEntry
	nextCbID int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration
	headerProvider       HeaderProvider

	seatM     sync.RWMutex
	sessionID string
	seatToken string

	reqSeq atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type Option func(*Client)

// WithReconnect enables automatic reconnection with up to n attempts.
func WithReconnect(n int) Option {
	return func(c *Client) { c.maxReconnectAttempts = n }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headerProvider = h }
}

func New(wsURL string, opts ...Option) *Client {
	c := &Client{
		wsURL:        wsURL,
		state:        StateDisconnected,
		pingInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	if s := c.State(); s == StateConnected || s == StateConnecting {
		return nil
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := c.dial(dialCtx)
	if err != nil {
		c.setState(StateFailed)
		c.scheduleReconnect()
		return err
	}
	c.attach(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.buildHeaders(),
	})
	return conn, err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.connM.Lock()
	c.conn = conn
	c.connM.Unlock()
	c.setState(StateConnected)

	done := make(chan struct{})
	c.wg.Add(2)
	go c.listen(conn, done)
	go c.pingLoop(conn, done)
}

func (c *Client) current() *websocket.Conn {
	c.connM.RLock()
	defer c.connM.RUnlock()
	return c.conn
}

// Send writes a frame and returns the request id it carried.
func (c *Client) Send(ctx context.Context, typ string, payload any) (string, error) {
	conn := c.current()
	if conn == nil {
		return "", fmt.Errorf("duelclient: not connected")
	}
	reqID := "r" + strconv.FormatUint(c.reqSeq.Add(1), 10)
	f, err := duelproto.NewFrame(typ, reqID, payload)
	if err != nil {
		return "", err
	}
	if err := wsjson.Write(ctx, conn, f); err != nil {
		return "", fmt.Errorf("write %s: %w", typ, err)
	}
	return reqID, nil
}

// Request sends a frame and waits for the first frame whose type is in until,
// or for an error frame answering this request.
func (c *Client) Request(ctx context.Context, typ string, payload any, until ...string) (duelproto.Frame, error) {
	got := make(chan duelproto.Frame, 16)
	var reqID atomic.Value
	reqID.Store("")
	id := c.OnFrame(func(f duelproto.Frame) {
		match := f.Type == duelproto.EventError && f.RequestID != "" && f.RequestID == reqID.Load().(string)
		for _, u := range until {
			match = match || f.Type == u
		}
		if match {
			select {
			case got <- f:
			default:
			}
		}
	})
	defer c.RemoveFrameCallback(id)

	sent, err := c.Send(ctx, typ, payload)
	if err != nil {
		return duelproto.Frame{}, err
	}
	reqID.Store(sent)
	for {
		select {
		case <-ctx.Done():
			return duelproto.Frame{}, ctx.Err()
		case f := <-got:
			if f.Type == duelproto.EventError {
				if f.RequestID != sent {
					continue
				}
				var e duelproto.Error
				if err := f.Decode(&e); err != nil {
					return f, err
				}
				return f, e
			}
			return f, nil
		}
	}
}

// Seat returns the session and token this client currently holds.
func (c *Client) Seat() (sessionID, token string) {
	c.seatM.RLock()
	defer c.seatM.RUnlock()
	return c.sessionID, c.seatToken
}

func (c *Client) remember(f duelproto.Frame) {
	var seat struct {
		SessionID string `json:"sessionId"`
		SeatToken string `json:"seatToken"`
	}
	switch f.Type {
	case duelproto.EventGameCreated, duelproto.EventGameJoined:
		if err := f.Decode(&seat); err != nil || seat.SeatToken == "" {
			return
		}
		c.seatM.Lock()
		c.sessionID, c.seatToken = seat.SessionID, seat.SeatToken
		c.seatM.Unlock()
	case duelproto.EventGameAbandoned:
		c.seatM.Lock()
		c.sessionID, c.seatToken = "", ""
		c.seatM.Unlock()
	}
}

func (c *Client) listen(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)
	for {
		var f duelproto.Frame
		if err := wsjson.Read(c.rootCtx, conn, &f); err != nil {
			if c.isStopping() {
				return
			}
			c.setState(StateDisconnected)
			c.closeConn(conn, websocket.StatusGoingAway, "reconnect")
			c.scheduleReconnect()
			return
		}
		c.remember(f)

		c.cbM.RLock()
		callbacks := make([]callbackEntry, len(c.frameCbs))
		copy(callbacks, c.frameCbs)
		c.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(f)
			}
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					// closing makes listen() observe the failure and reconnect
					c.closeConn(conn, websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 {
		return
	}
	c.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
			conn, err := c.dial(dialCtx)
			cancel()
			if err != nil {
				continue
			}
			c.attach(conn)
			if id, token := c.Seat(); id != "" {
				ctx, cancel := context.WithTimeout(c.rootCtx, 5*time.Second)
				_, _ = c.Send(ctx, duelproto.EventReconnect, duelproto.Reconnect{SessionID: id, SeatToken: token})
				cancel()
			}
			return
		}
		c.setState(StateFailed)
	}()
}

func (c *Client) OnFrame(cb FrameCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	c.frameCbs = append(c.frameCbs, callbackEntry{id: c.nextCbID, callback: cb})
	return c.nextCbID
}

func (c *Client) RemoveFrameCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.frameCbs {
		if cb.id == id {
			c.frameCbs = append(c.frameCbs[:i], c.frameCbs[i+1:]...)
			break
		}
	}
}

func (c *Client) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	c.stateCbs = append(c.stateCbs, stateCallbackEntry{id: c.nextCbID, callback: cb})
	return c.nextCbID
}

func (c *Client) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.stateM.Lock()
	c.state = state
	c.stateM.Unlock()

	c.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

// Drop closes the current socket without stopping the client, as a network
// failure would. With reconnect enabled the client dials again.
func (c *Client) Drop() {
	if conn := c.current(); conn != nil {
		c.closeConn(conn, websocket.StatusGoingAway, "drop")
	}
}

func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if conn := c.current(); conn != nil {
		c.closeConn(conn, websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if c.rootCancel != nil {
			c.rootCancel()
		}
		c.setState(StateDisconnected)
		return nil
	}
}

func (c *Client) closeConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	c.connM.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connM.Unlock()
	_ = conn.Close(code, reason)
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Client) buildHeaders() http.Header {
	hdr := http.Header{}
	if c.headerProvider == nil {
		return hdr
	}
	for k, v := range c.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}
