package duel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/cheese-duel/internal/chat"
	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/msgcat"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/internal/store"
	"github.com/park285/cheese-duel/pkg/duelproto"
	"go.uber.org/zap"
)

const (
	defaultOracleTimeout = 2 * time.Second
	defaultGrace         = 60 * time.Second
	persistTimeout       = 2 * time.Second
)

type Config struct {
	Oracle          rules.Oracle
	Relay           *chat.Relay
	Snapshots       store.Store
	Catalog         *msgcat.Catalog
	Logger          *zap.Logger
	Clock           func() time.Time
	OracleTimeout   time.Duration
	DisconnectGrace time.Duration
	WaitingTimeout  time.Duration
}

// Coordinator runs the per-session state machine. Every operation holds the
// session lock from validation to the last enqueued broadcast, so both seats
// observe the same order of moves, resets and chat.
type Coordinator struct {
	reg            *Registry
	oracle         rules.Oracle
	relay          *chat.Relay
	snapshots      store.Store
	catalog        *msgcat.Catalog
	logger         *zap.Logger
	now            func() time.Time
	oracleTimeout  time.Duration
	grace          time.Duration
	waitingTimeout time.Duration
}

func NewCoordinator(reg *Registry, cfg Config) (*Coordinator, error) {
	if reg == nil {
		return nil, fmt.Errorf("nil registry")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("nil rules oracle")
	}
	c := &Coordinator{
		reg:            reg,
		oracle:         cfg.Oracle,
		relay:          cfg.Relay,
		snapshots:      cfg.Snapshots,
		catalog:        cfg.Catalog,
		logger:         cfg.Logger,
		now:            cfg.Clock,
		oracleTimeout:  cfg.OracleTimeout,
		grace:          cfg.DisconnectGrace,
		waitingTimeout: cfg.WaitingTimeout,
	}
	if c.relay == nil {
		c.relay = chat.NewRelay()
	}
	if c.snapshots == nil {
		c.snapshots = store.NewMemory()
	}
	if c.catalog == nil {
		c.catalog = msgcat.Default()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = reg.now
	}
	if c.oracleTimeout <= 0 {
		c.oracleTimeout = defaultOracleTimeout
	}
	if c.grace <= 0 {
		c.grace = defaultGrace
	}
	reg.onJoin = c.announceJoin
	reg.onReconnect = c.announceResume
	return c, nil
}

func (c *Coordinator) Registry() *Registry { return c.reg }

// CreateGame opens a session with peer in the first seat and replies with gameCreated.
func (c *Coordinator) CreateGame(ctx context.Context, peer Peer, name string) (Binding, error) {
	s, side := c.reg.Create(name, peer)
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seat(side)
	c.send(st, duelproto.EventGameCreated, duelproto.GameCreated{
		SessionID: s.ID,
		Seat:      string(side),
		SeatToken: st.token,
		Position:  s.board.Current().FEN,
	})
	c.persist(ctx, s)
	c.logger.Info("duel_create", zap.String("session_id", s.ID), zap.String("seat_name", st.name))
	return Binding{SessionID: s.ID, Seat: side}, nil
}

// JoinGame seats peer second. Broadcasts happen inside the registry hook.
func (c *Coordinator) JoinGame(ctx context.Context, peer Peer, sessionID, name string) (Binding, error) {
	s, side, err := c.reg.Join(ctx, sessionID, name, peer)
	if err != nil {
		c.logger.Info("duel_join_rejected", zap.String("session_id", sessionID), zap.Error(err))
		return Binding{}, err
	}
	return Binding{SessionID: s.ID, Seat: side}, nil
}

// Reconnect rebinds a seat by token and resumes the session for peer.
func (c *Coordinator) Reconnect(ctx context.Context, peer Peer, sessionID, token string) (Binding, error) {
	s, side, err := c.reg.ResolveForReconnect(ctx, sessionID, token, peer)
	if err != nil {
		c.logger.Info("duel_reconnect_rejected", zap.String("session_id", sessionID), zap.Error(err))
		return Binding{}, err
	}
	return Binding{SessionID: s.ID, Seat: side}, nil
}

func (c *Coordinator) announceJoin(ctx context.Context, s *Session, st *seat) {
	first := s.opponent(st.side)
	pos := s.board.Current()
	opponentName := ""
	if first != nil {
		opponentName = first.name
	}
	c.send(st, duelproto.EventGameJoined, duelproto.GameJoined{
		SessionID:       s.ID,
		Seat:            string(st.side),
		SeatToken:       st.token,
		OpponentName:    opponentName,
		CurrentPosition: pos.FEN,
		Moves:           wireMoves(s.board.Log()),
		Turn:            string(pos.Turn),
		Status:          string(s.status),
	})
	c.send(first, duelproto.EventOpponentJoined, duelproto.OpponentJoined{OpponentName: st.name, CurrentPosition: pos.FEN})
	c.relay.Announce(s.ID,
		c.text("system.opponent_joined", map[string]string{"Name": st.name, "Seat": string(st.side)}, st.name+" joined the game."),
		s.recipients()...)
	c.persist(ctx, s)
	c.logger.Info("duel_join", zap.String("session_id", s.ID), zap.String("seat_name", st.name), zap.String("status", string(s.status)))
}

func (c *Coordinator) announceResume(ctx context.Context, s *Session, st *seat, replaced Peer) {
	if replaced != nil && replaced != st.peer {
		replaced.Close("replaced by a new connection")
	}
	opp := s.opponent(st.side)
	pos := s.board.Current()
	resumed := duelproto.GameResumed{
		SessionID:       s.ID,
		Seat:            string(st.side),
		OpponentOnline:  opp.online(),
		CurrentPosition: pos.FEN,
		Moves:           wireMoves(s.board.Log()),
		Turn:            string(pos.Turn),
		Status:          string(s.status),
		Result:          wireResult(s.result),
		Chat:            wireChat(c.relay.History(s.ID)),
	}
	if opp != nil {
		resumed.OpponentName = opp.name
	}
	c.send(st, duelproto.EventGameResumed, resumed)
	if opp.online() {
		c.send(opp, duelproto.EventOpponentReconnected, duelproto.OpponentReconnected{OpponentName: st.name})
		c.relay.Announce(s.ID, c.text("system.opponent_reconnected", map[string]string{"Name": st.name}, st.name+" reconnected."), opp.peer)
	}
	c.logger.Info("duel_reconnect", zap.String("session_id", s.ID), zap.String("seat", string(st.side)))
}

// MakeMove validates and applies a move for the seat bound to peer.
// Nothing is mutated or broadcast unless the oracle accepts the move.
func (c *Coordinator) MakeMove(ctx context.Context, peer Peer, b Binding, mv rules.Move) error {
	s, st, unlock, err := c.acquire(peer, b)
	if err != nil {
		return err
	}
	defer unlock()

	if s.status != domain.StatusActive {
		return ErrGameNotActive
	}
	if s.board.Turn() != st.side {
		return ErrNotYourTurn
	}
	if !s.opponent(st.side).online() {
		return ErrOpponentAway
	}

	octx, cancel := context.WithTimeout(ctx, c.oracleTimeout)
	defer cancel()
	next, err := c.oracle.ApplyMove(octx, s.board.Current(), mv)
	if err != nil {
		return c.oracleError(s, "apply", mv, err)
	}
	class, err := c.oracle.Classify(octx, next)
	if err != nil {
		return c.oracleError(s, "classify", mv, err)
	}

	uci, _, _ := next.Last()
	played, err := rules.ParseUCI(uci)
	if err != nil {
		return c.oracleError(s, "apply", mv, err)
	}
	rec, err := s.board.Commit(next, domain.MoveRecord{
		Seat:      st.side,
		From:      played.From,
		To:        played.To,
		Promotion: played.Promotion,
		PlayedAt:  c.now(),
	})
	if err != nil {
		// oracle가 현재 라인을 잇지 않는 포지션을 돌려준 경우
		return c.oracleError(s, "commit", mv, err)
	}
	s.updatedAt = rec.PlayedAt

	c.broadcast(s, duelproto.EventGameMove, duelproto.GameMove{
		NewPosition: next.FEN,
		Move:        wireMove(rec),
		Turn:        string(next.Turn),
		Ply:         rec.Ply,
		Check:       class.Kind == rules.Check || class.Kind == rules.Checkmate,
	})
	if class.Terminal() {
		s.status = domain.StatusFinished
		s.result = c.resultFor(s, class)
		c.broadcast(s, duelproto.EventGameOver, duelproto.GameOver{Result: *wireResult(s.result)})
	}
	c.persist(ctx, s)

	c.logger.Info("duel_move",
		zap.String("session_id", s.ID),
		zap.String("seat", string(st.side)),
		zap.String("uci", uci),
		zap.Int("ply", rec.Ply),
		zap.String("classification", string(class.Kind)),
		zap.String("status", string(s.status)),
	)
	return nil
}

// ResetGame clears the board. Only the first seat may reset.
func (c *Coordinator) ResetGame(ctx context.Context, peer Peer, b Binding) error {
	s, st, unlock, err := c.acquire(peer, b)
	if err != nil {
		return err
	}
	defer unlock()
	if st.side != domain.SeatFirst {
		return ErrNotFirstSeat
	}

	s.board.Reset()
	s.result = nil
	if s.seatedCount() == 2 {
		s.status = domain.StatusActive
	} else {
		s.status = domain.StatusWaiting
	}
	s.updatedAt = c.now()

	c.broadcast(s, duelproto.EventGameReset, duelproto.GameReset{CurrentPosition: s.board.Current().FEN, Status: string(s.status)})
	c.relay.Announce(s.ID, c.text("system.game_reset", nil, "Game has been reset."), s.recipients()...)
	c.persist(ctx, s)
	c.logger.Info("duel_reset", zap.String("session_id", s.ID), zap.String("status", string(s.status)))
	return nil
}

// Resign ends an active game in favour of the opponent.
func (c *Coordinator) Resign(ctx context.Context, peer Peer, b Binding) error {
	s, st, unlock, err := c.acquire(peer, b)
	if err != nil {
		return err
	}
	defer unlock()
	if s.status != domain.StatusActive {
		return ErrGameNotActive
	}
	winner := s.opponent(st.side)
	s.status = domain.StatusFinished
	s.result = &domain.Result{Kind: domain.ResultResignation, Winner: winner.side, WinnerName: winner.name, EndedAt: c.now()}
	s.result.Text = c.text("result.resignation", map[string]string{"Winner": winner.name}, winner.name+" wins by resignation.")
	s.updatedAt = s.result.EndedAt

	c.broadcast(s, duelproto.EventGameOver, duelproto.GameOver{Result: *wireResult(s.result)})
	c.relay.Announce(s.ID, c.text("system.resigned", map[string]string{"Name": st.name}, st.name+" resigned."), s.recipients()...)
	c.persist(ctx, s)
	c.logger.Info("duel_resign", zap.String("session_id", s.ID), zap.String("seat", string(st.side)))
	return nil
}

// LeaveGame abandons the session on behalf of the seat bound to peer.
func (c *Coordinator) LeaveGame(ctx context.Context, peer Peer, b Binding) error {
	s, st, unlock, err := c.acquire(peer, b)
	if err != nil {
		return err
	}
	c.abandon(s, ReasonLeft, st)
	unlock()
	c.destroy(ctx, s)
	return nil
}

// SendMessage relays a chat line from the seat bound to peer.
func (c *Coordinator) SendMessage(ctx context.Context, peer Peer, b Binding, text string) error {
	s, st, unlock, err := c.acquire(peer, b)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := c.relay.Post(s.ID, chat.Sender{Seat: string(st.side), Name: st.name}, text, s.recipients()...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

// Disconnect marks the seat offline if peer is still the one bound to it.
// The seat stays reserved until reconnect or the grace period ends.
func (c *Coordinator) Disconnect(ctx context.Context, peer Peer, b Binding) {
	if !b.Valid() {
		return
	}
	s, err := c.reg.Lookup(b.SessionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seat(b.Seat)
	if s.removed || st == nil || st.peer != peer {
		return
	}
	st.live = false
	st.peer = nil
	st.leftAt = c.now()

	if opp := s.opponent(st.side); opp.online() {
		c.send(opp, duelproto.EventOpponentDisconnected, duelproto.OpponentDisconnected{})
		c.relay.Announce(s.ID, c.text("system.seat_disconnected", map[string]string{"Name": st.name}, st.name+" disconnected."), opp.peer)
	}
	c.logger.Info("duel_disconnect", zap.String("session_id", s.ID), zap.String("seat", string(st.side)), zap.String("status", string(s.status)))
}

// Seated reports whether peer still holds the seat named by b.
func (c *Coordinator) Seated(peer Peer, b Binding) bool {
	_, _, unlock, err := c.acquire(peer, b)
	if err != nil {
		return false
	}
	unlock()
	return true
}

// Sweep abandons sessions whose disconnected seat outlived the grace period,
// or that waited too long for a second seat. It returns how many were destroyed.
func (c *Coordinator) Sweep(ctx context.Context) int {
	now := c.now()
	n := 0
	for _, s := range c.reg.Sweep(now, c.grace, c.waitingTimeout) {
		s.mu.Lock()
		reason, who, ok := s.expiry(now, c.grace, c.waitingTimeout)
		if ok {
			c.abandon(s, reason, who)
		}
		s.mu.Unlock()
		if ok {
			c.destroy(ctx, s)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Sweep(ctx); n > 0 {
				c.logger.Info("duel_sweep", zap.Int("abandoned", n), zap.Int("sessions", c.reg.Len()))
			}
		}
	}
}

func (c *Coordinator) acquire(peer Peer, b Binding) (*Session, *seat, func(), error) {
	if !b.Valid() {
		return nil, nil, nil, ErrNotSeated
	}
	s, err := c.reg.Lookup(b.SessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	s.mu.Lock()
	if s.removed || s.status == domain.StatusAbandoned {
		s.mu.Unlock()
		return nil, nil, nil, ErrSessionNotFound
	}
	st := s.seat(b.Seat)
	if st == nil || st.peer == nil || st.peer != peer {
		s.mu.Unlock()
		return nil, nil, nil, ErrNotSeated
	}
	return s, st, s.mu.Unlock, nil
}

// abandon must be called with s.mu held.
func (c *Coordinator) abandon(s *Session, reason string, who *seat) {
	s.status = domain.StatusAbandoned
	s.removed = true
	s.updatedAt = c.now()

	var skip []rules.Color
	name := ""
	if who != nil {
		name = who.name
		if reason == ReasonLeft {
			skip = append(skip, who.side)
		}
	}
	var notice string
	switch reason {
	case ReasonLeft:
		notice = c.text("system.left", map[string]string{"Name": name}, name+" left the game.")
	case ReasonWaitingExpired:
		notice = c.text("system.waiting_expired", nil, "Nobody joined in time. The game was closed.")
	default:
		notice = c.text("system.timed_out", map[string]string{"Name": name}, name+" did not come back in time.")
	}
	for _, st := range s.seats {
		if st == nil || !st.online() {
			continue
		}
		skipped := false
		for _, sk := range skip {
			skipped = skipped || st.side == sk
		}
		if !skipped {
			c.send(st, duelproto.EventGameAbandoned, duelproto.GameAbandoned{Reason: reason})
		}
	}
	c.relay.Announce(s.ID, notice, s.recipients(skip...)...)
	c.logger.Info("duel_abandon", zap.String("session_id", s.ID), zap.String("reason", reason), zap.String("seat_name", name))
}

// destroy runs after the session lock is released.
func (c *Coordinator) destroy(ctx context.Context, s *Session) {
	c.reg.Remove(s.ID)
	c.relay.Drop(s.ID)
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.snapshots.Delete(dctx, s.ID); err != nil {
		c.logger.Warn("duel_snapshot_delete_error", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (c *Coordinator) oracleError(s *Session, op string, mv rules.Move, err error) error {
	if errors.Is(err, rules.ErrIllegalMove) {
		return ErrIllegalMove
	}
	c.logger.Warn("duel_oracle_error",
		zap.String("session_id", s.ID),
		zap.String("op", op),
		zap.String("uci", mv.UCI()),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
}

func (c *Coordinator) resultFor(s *Session, class rules.Classification) *domain.Result {
	kind, _ := domain.ResultKindFor(class)
	r := &domain.Result{Kind: kind, EndedAt: c.now()}
	if class.Kind == rules.Checkmate {
		r.Winner = class.Winner
		if w := s.seat(class.Winner); w != nil {
			r.WinnerName = w.name
		}
	}
	r.Text = c.text("result."+string(kind), map[string]string{"Winner": r.WinnerName}, string(kind))
	return r
}

// persist must be called with s.mu held. Save failures are logged; the
// in-memory session stays authoritative.
func (c *Coordinator) persist(ctx context.Context, s *Session) {
	s.version++
	snap := s.snapshot()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.snapshots.Save(pctx, snap); err != nil {
		c.logger.Warn("duel_snapshot_error", zap.String("session_id", s.ID), zap.Int64("version", snap.Version), zap.Error(err))
	}
}

func (c *Coordinator) send(st *seat, typ string, payload any) {
	if !st.online() {
		return
	}
	f, err := duelproto.NewFrame(typ, "", payload)
	if err != nil {
		c.logger.Error("duel_frame_error", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := st.peer.Send(f); err != nil {
		c.logger.Warn("duel_send_error", zap.String("type", typ), zap.String("peer", st.peer.ID()), zap.Error(err))
	}
}

func (c *Coordinator) broadcast(s *Session, typ string, payload any) {
	for _, st := range s.seats {
		c.send(st, typ, payload)
	}
}

func (c *Coordinator) text(key string, data any, fallback string) string {
	return c.catalog.RenderOr(key, data, fallback)
}
