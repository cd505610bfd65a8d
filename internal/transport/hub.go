package transport

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/cheese-duel/internal/duel"
	"github.com/park285/cheese-duel/internal/msgcat"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultFramesPerSecond = 20
	defaultOutboundBuffer  = 64
	defaultPingInterval    = 15 * time.Second
	maxFrameBytes          = 64 << 10
	maxDecodeErrors        = 5
	writeTimeout           = 5 * time.Second
)

type Options struct {
	// AllowedOrigins lists exact Origin values accepted on upgrade. Empty accepts any origin.
	AllowedOrigins     []string
	MaxFramesPerSecond int
	OutboundBuffer     int
	PingInterval       time.Duration
	Catalog            *msgcat.Catalog
	Logger             *zap.Logger
}

// Hub accepts websocket connections and feeds their frames to the coordinator.
type Hub struct {
	coord   *duel.Coordinator
	allow   map[string]bool
	fps     int
	buffer  int
	ping    time.Duration
	catalog *msgcat.Catalog
	logger  *zap.Logger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	nextID atomic.Uint64
}

func NewHub(coord *duel.Coordinator, opts Options) *Hub {
	h := &Hub{
		coord:   coord,
		allow:   map[string]bool{},
		fps:     opts.MaxFramesPerSecond,
		buffer:  opts.OutboundBuffer,
		ping:    opts.PingInterval,
		catalog: opts.Catalog,
		logger:  opts.Logger,
		conns:   map[*conn]struct{}{},
	}
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			h.allow[o] = true
		}
	}
	if h.fps <= 0 {
		h.fps = defaultFramesPerSecond
	}
	if h.buffer <= 0 {
		h.buffer = defaultOutboundBuffer
	}
	if h.ping <= 0 {
		h.ping = defaultPingInterval
	}
	if h.catalog == nil {
		h.catalog = msgcat.Default()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && len(h.allow) > 0 && !h.allow[origin] {
		h.logger.Warn("ws_forbidden_origin", zap.String("origin", origin))
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Warn("ws_accept_error", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	c := newConn(h, "c"+strconv.FormatUint(h.nextID.Add(1), 10), ws)
	h.track(c, true)
	defer h.track(c, false)
	h.logger.Info("ws_connect", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx)
	c.readLoop(ctx)

	c.Close("connection closed")
	h.coord.Disconnect(context.WithoutCancel(ctx), c, c.bound())
	h.logger.Info("ws_disconnect", zap.String("conn_id", c.id), zap.String("reason", c.reason()))
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll asks every open connection to close.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.Close(reason)
	}
}

func (h *Hub) track(c *conn, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.conns[c] = struct{}{}
	} else {
		delete(h.conns, c)
	}
}
