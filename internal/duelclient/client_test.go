package duelclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/cheese-duel/internal/duel"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/internal/transport"
	"github.com/park285/cheese-duel/pkg/duelproto"
)

func newServer(t *testing.T) string {
	t.Helper()
	coord, err := duel.NewCoordinator(duel.NewRegistry(), duel.Config{Oracle: rules.NewLocal()})
	if err != nil { t.Fatalf("NewCoordinator: %v", err) }
	srv := httptest.NewServer(transport.NewHub(coord, transport.Options{}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c := New(url, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil { t.Fatalf("Connect: %v", err) }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func watch(c *Client, typ string) <-chan duelproto.Frame {
	ch := make(chan duelproto.Frame, 4)
	c.OnFrame(func(f duelproto.Frame) {
		if f.Type == typ {
			select {
			case ch <- f:
			default:
			}
		}
	})
	return ch
}

func TestRequestReturnsReplyOrError(t *testing.T) {
	url := newServer(t)
	c := connect(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := c.Request(ctx, duelproto.EventJoinGame, duelproto.JoinGame{SessionID: "missing"}, duelproto.EventGameJoined)
	var e duelproto.Error
	if !errors.As(err, &e) || e.Code != duel.CodeSessionNotFound { t.Fatalf("err = %v", err) }

	f, err := c.Request(ctx, duelproto.EventCreateGame, duelproto.CreateGame{SeatName: "alice"}, duelproto.EventGameCreated)
	if err != nil { t.Fatalf("create: %v", err) }
	var created duelproto.GameCreated
	if err := f.Decode(&created); err != nil { t.Fatalf("decode: %v", err) }
	if id, token := c.Seat(); id != created.SessionID || token != created.SeatToken { t.Fatalf("seat = %s/%s", id, token) }
}

func TestReconnectReclaimsSeat(t *testing.T) {
	url := newServer(t)
	white := connect(t, url)
	black := connect(t, url, WithReconnect(5))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f, err := white.Request(ctx, duelproto.EventCreateGame, duelproto.CreateGame{SeatName: "alice"}, duelproto.EventGameCreated)
	if err != nil { t.Fatalf("create: %v", err) }
	var created duelproto.GameCreated
	_ = f.Decode(&created)
	if _, err := black.Request(ctx, duelproto.EventJoinGame, duelproto.JoinGame{SessionID: created.SessionID, SeatName: "bob"}, duelproto.EventGameJoined); err != nil {
		t.Fatalf("join: %v", err)
	}

	resumed := watch(black, duelproto.EventGameResumed)
	back := watch(white, duelproto.EventOpponentReconnected)
	black.Drop()

	select {
	case f := <-resumed:
		var gr duelproto.GameResumed
		if err := f.Decode(&gr); err != nil { t.Fatalf("decode: %v", err) }
		if gr.SessionID != created.SessionID || gr.Seat != "black" { t.Fatalf("gameResumed = %+v", gr) }
	case <-ctx.Done():
		t.Fatalf("black never resumed")
	}
	select {
	case <-back:
	case <-ctx.Done():
		t.Fatalf("white never saw the reconnect")
	}
	if black.State() != StateConnected { t.Fatalf("state = %s", black.State()) }
}
