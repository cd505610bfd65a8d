package transport

import (
	"context"
	"strings"

	"github.com/park285/cheese-duel/internal/duel"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/pkg/duelproto"
	"go.uber.org/zap"
)

// Transport-only error codes.
const (
	CodeAlreadySeated = "ALREADY_SEATED"
	CodeRateLimited   = "RATE_LIMITED"
)

func (h *Hub) dispatch(ctx context.Context, c *conn, f duelproto.Frame) {
	var err error
	switch f.Type {
	case duelproto.EventPing:
		if pong, perr := duelproto.NewFrame(duelproto.EventPong, f.RequestID, nil); perr == nil {
			_ = c.Send(pong)
		}
		return
	case duelproto.EventCreateGame:
		err = h.handleCreate(ctx, c, f)
	case duelproto.EventJoinGame:
		err = h.handleJoin(ctx, c, f)
	case duelproto.EventReconnect:
		err = h.handleReconnect(ctx, c, f)
	case duelproto.EventMakeMove:
		var req duelproto.MakeMove
		if err = decode(f, &req); err != nil {
			break
		}
		var b duel.Binding
		if b, err = c.seatFor(req.SessionID); err != nil {
			break
		}
		mv := rules.Move{From: req.Move.From, To: req.Move.To, Promotion: req.Move.Promotion}
		if _, perr := rules.ParseUCI(mv.UCI()); perr != nil {
			err = duel.ErrInvalidArgs
			break
		}
		err = h.coord.MakeMove(ctx, c, b, mv)
	case duelproto.EventResetGame, duelproto.EventResign, duelproto.EventLeaveGame:
		var req duelproto.SessionRef
		if err = decode(f, &req); err != nil {
			break
		}
		var b duel.Binding
		if b, err = c.seatFor(req.SessionID); err != nil {
			break
		}
		switch f.Type {
		case duelproto.EventResetGame:
			err = h.coord.ResetGame(ctx, c, b)
		case duelproto.EventResign:
			err = h.coord.Resign(ctx, c, b)
		default:
			if err = h.coord.LeaveGame(ctx, c, b); err == nil {
				c.bind(duel.Binding{})
			}
		}
	case duelproto.EventSendMessage:
		var req duelproto.SendMessage
		if err = decode(f, &req); err != nil {
			break
		}
		var b duel.Binding
		if b, err = c.seatFor(req.SessionID); err != nil {
			break
		}
		err = h.coord.SendMessage(ctx, c, b, req.Text)
	default:
		c.sendError(f.RequestID, duel.CodeInvalidArgument, "unsupported frame type", false)
		return
	}
	if err != nil {
		h.reject(c, f, err)
	}
}

func (h *Hub) handleCreate(ctx context.Context, c *conn, f duelproto.Frame) error {
	var req duelproto.CreateGame
	if err := decode(f, &req); err != nil {
		return err
	}
	if err := h.ensureUnseated(c); err != nil {
		return err
	}
	b, err := h.coord.CreateGame(ctx, c, req.SeatName)
	if err != nil {
		return err
	}
	c.bind(b)
	return nil
}

func (h *Hub) handleJoin(ctx context.Context, c *conn, f duelproto.Frame) error {
	var req duelproto.JoinGame
	if err := decode(f, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return duel.ErrInvalidArgs
	}
	if err := h.ensureUnseated(c); err != nil {
		return err
	}
	b, err := h.coord.JoinGame(ctx, c, req.SessionID, req.SeatName)
	if err != nil {
		return err
	}
	c.bind(b)
	return nil
}

func (h *Hub) handleReconnect(ctx context.Context, c *conn, f duelproto.Frame) error {
	var req duelproto.Reconnect
	if err := decode(f, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.SeatToken) == "" {
		return duel.ErrInvalidArgs
	}
	if err := h.ensureUnseated(c); err != nil {
		return err
	}
	b, err := h.coord.Reconnect(ctx, c, req.SessionID, req.SeatToken)
	if err != nil {
		return err
	}
	c.bind(b)
	return nil
}

var errAlreadySeated = errf("connection is already seated")

// ensureUnseated drops a binding whose session is gone and rejects a live one.
func (h *Hub) ensureUnseated(c *conn) error {
	b := c.bound()
	if !b.Valid() {
		return nil
	}
	if h.coord.Seated(c, b) {
		return errAlreadySeated
	}
	c.bind(duel.Binding{})
	return nil
}

// seatFor returns the binding for sessionID. An empty sessionID means the bound session.
func (c *conn) seatFor(sessionID string) (duel.Binding, error) {
	b := c.bound()
	if !b.Valid() {
		return duel.Binding{}, duel.ErrNotSeated
	}
	if id := strings.TrimSpace(sessionID); id != "" && id != b.SessionID {
		return duel.Binding{}, duel.ErrNotSeated
	}
	return b, nil
}

func (h *Hub) reject(c *conn, f duelproto.Frame, err error) {
	if err == errAlreadySeated {
		c.sendError(f.RequestID, CodeAlreadySeated, "", false)
		return
	}
	code, retryable := duel.ErrorCode(err)
	if code == duel.CodeInternal {
		h.logger.Error("ws_dispatch_error", zap.String("conn_id", c.id), zap.String("type", f.Type), zap.Error(err))
	} else {
		h.logger.Debug("ws_rejected", zap.String("conn_id", c.id), zap.String("type", f.Type), zap.String("code", code), zap.Error(err))
	}
	if code == duel.CodeSessionNotFound {
		if b := c.bound(); b.Valid() && !h.coord.Seated(c, b) {
			c.bind(duel.Binding{})
		}
	}
	c.sendError(f.RequestID, code, "", retryable)
}

func decode(f duelproto.Frame, dst any) error {
	if err := f.Decode(dst); err != nil {
		return duel.ErrInvalidArgs
	}
	return nil
}
