package duel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-duel/internal/chat"
	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/internal/store"
	"github.com/park285/cheese-duel/pkg/duelproto"
)

type fakePeer struct {
	id     string
	mu     sync.Mutex
	frames []duelproto.Frame
	closed string
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(f duelproto.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
	return nil
}

func (p *fakePeer) Close(reason string) {
	p.mu.Lock()
	p.closed = reason
	p.mu.Unlock()
}

func (p *fakePeer) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.frames {
		if f.Type == typ {
			n++
		}
	}
	return n
}

func (p *fakePeer) last(t *testing.T, typ string, dst any) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.frames) - 1; i >= 0; i-- {
		if p.frames[i].Type == typ {
			if err := p.frames[i].Decode(dst); err != nil { t.Fatalf("decode %s: %v", typ, err) }
			return
		}
	}
	t.Fatalf("peer %s never received %s", p.id, typ)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyOracle fails every call while down is set. While extra is set it
// appends one more ply after the requested move.
type flakyOracle struct {
	rules.Oracle
	down  atomic.Bool
	extra atomic.Pointer[rules.Move]
}

func (o *flakyOracle) ApplyMove(ctx context.Context, pos rules.Position, mv rules.Move) (rules.Position, error) {
	if o.down.Load() { return rules.Position{}, rules.ErrUnavailable }
	next, err := o.Oracle.ApplyMove(ctx, pos, mv)
	if err != nil { return next, err }
	if extra := o.extra.Load(); extra != nil {
		return o.Oracle.ApplyMove(ctx, next, *extra)
	}
	return next, nil
}

type fixture struct {
	c         *Coordinator
	clock     *fakeClock
	oracle    *flakyOracle
	snapshots store.Store
}

func newFixture(t *testing.T, snapshots store.Store) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if snapshots == nil { snapshots = store.NewMemory() }
	oracle := &flakyOracle{Oracle: rules.NewLocal()}
	n := 0
	reg := NewRegistry(WithClock(clock.Now), WithIDGenerator(func() string { n++; return fmt.Sprintf("s%d", n) }, nil))
	c, err := NewCoordinator(reg, Config{
		Oracle:          oracle,
		Relay:           chat.NewRelay(chat.WithClock(clock.Now)),
		Snapshots:       snapshots,
		Clock:           clock.Now,
		DisconnectGrace: time.Minute,
	})
	if err != nil { t.Fatalf("NewCoordinator: %v", err) }
	return &fixture{c: c, clock: clock, oracle: oracle, snapshots: snapshots}
}

// seated creates a session and joins it, returning both peers and bindings.
func (fx *fixture) seated(t *testing.T) (white, black *fakePeer, wb, bb Binding) {
	t.Helper()
	ctx := context.Background()
	white, black = newPeer("w"), newPeer("b")
	wb, err := fx.c.CreateGame(ctx, white, "alice")
	if err != nil { t.Fatalf("CreateGame: %v", err) }
	bb, err = fx.c.JoinGame(ctx, black, wb.SessionID, "bob")
	if err != nil { t.Fatalf("JoinGame: %v", err) }
	return white, black, wb, bb
}

func (fx *fixture) play(t *testing.T, peers map[rules.Color]*fakePeer, binds map[rules.Color]Binding, line ...string) {
	t.Helper()
	for i, uci := range line {
		side := rules.White
		if i%2 == 1 { side = rules.Black }
		mv, err := rules.ParseUCI(uci)
		if err != nil { t.Fatalf("ParseUCI %s: %v", uci, err) }
		if err := fx.c.MakeMove(context.Background(), peers[side], binds[side], mv); err != nil {
			t.Fatalf("move %d %s: %v", i+1, uci, err)
		}
	}
}

func mustMove(t *testing.T, uci string) rules.Move {
	t.Helper()
	mv, err := rules.ParseUCI(uci)
	if err != nil { t.Fatalf("ParseUCI: %v", err) }
	return mv
}

func TestCreateAndJoinSeatsBothSides(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)

	if wb.Seat != rules.White || bb.Seat != rules.Black { t.Fatalf("seats = %s/%s", wb.Seat, bb.Seat) }
	var created duelproto.GameCreated
	white.last(t, duelproto.EventGameCreated, &created)
	if created.SessionID != wb.SessionID || created.SeatToken == "" || created.Position != rules.StartFEN {
		t.Fatalf("gameCreated = %+v", created)
	}
	var joined duelproto.GameJoined
	black.last(t, duelproto.EventGameJoined, &joined)
	if joined.OpponentName != "alice" || joined.Status != string(domain.StatusActive) || joined.Turn != "white" {
		t.Fatalf("gameJoined = %+v", joined)
	}
	var oj duelproto.OpponentJoined
	white.last(t, duelproto.EventOpponentJoined, &oj)
	if oj.OpponentName != "bob" { t.Fatalf("opponentJoined = %+v", oj) }
	if white.count(duelproto.EventReceiveMessage) != 1 || black.count(duelproto.EventReceiveMessage) != 1 {
		t.Fatalf("join notice not delivered to both seats")
	}

	if _, err := fx.c.JoinGame(context.Background(), newPeer("x"), wb.SessionID, "carol"); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("third join err = %v", err)
	}
	if _, err := fx.c.JoinGame(context.Background(), newPeer("x"), "nope", "carol"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session err = %v", err)
	}
}

func TestMoveIsBroadcastToBothSeats(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	ctx := context.Background()

	if err := fx.c.MakeMove(ctx, white, wb, mustMove(t, "e2e4")); err != nil { t.Fatalf("e2e4: %v", err) }
	for _, p := range []*fakePeer{white, black} {
		var gm duelproto.GameMove
		p.last(t, duelproto.EventGameMove, &gm)
		if gm.Ply != 1 || gm.Turn != "black" || gm.Move.SAN != "e4" || gm.Move.Seat != "white" {
			t.Fatalf("%s gameMove = %+v", p.id, gm)
		}
	}

	// a replayed submission from the same seat is out of turn
	if err := fx.c.MakeMove(ctx, white, wb, mustMove(t, "e2e4")); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("duplicate err = %v", err)
	}
	if err := fx.c.MakeMove(ctx, black, bb, mustMove(t, "e2e4")); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal err = %v", err)
	}
	if black.count(duelproto.EventGameMove) != 1 { t.Fatalf("rejected moves were broadcast") }

	sum, err := fx.c.Summary(wb.SessionID)
	if err != nil { t.Fatalf("Summary: %v", err) }
	if sum.Ply != 1 || sum.Turn != rules.Black || len(sum.Moves) != 1 { t.Fatalf("summary = %+v", sum) }
}

func TestOutOfTurnMoveDoesNotMutate(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	if err := fx.c.MakeMove(context.Background(), black, bb, mustMove(t, "e7e5")); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("err = %v", err)
	}
	if white.count(duelproto.EventGameMove)+black.count(duelproto.EventGameMove) != 0 { t.Fatalf("unexpected broadcast") }
	sum, _ := fx.c.Summary(wb.SessionID)
	if sum.Ply != 0 || sum.FEN != rules.StartFEN { t.Fatalf("summary = %+v", sum) }
}

func TestMoveBeforeOpponentJoinsIsRejected(t *testing.T) {
	fx := newFixture(t, nil)
	white := newPeer("w")
	wb, _ := fx.c.CreateGame(context.Background(), white, "alice")
	if err := fx.c.MakeMove(context.Background(), white, wb, mustMove(t, "e2e4")); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("err = %v", err)
	}
}

func TestFoolsMateFinishesGame(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	peers := map[rules.Color]*fakePeer{rules.White: white, rules.Black: black}
	binds := map[rules.Color]Binding{rules.White: wb, rules.Black: bb}
	fx.play(t, peers, binds, "f2f3", "e7e5", "g2g4", "d8h4")

	for _, p := range []*fakePeer{white, black} {
		var over duelproto.GameOver
		p.last(t, duelproto.EventGameOver, &over)
		if over.Result.Kind != "checkmate" || over.Result.Winner != "black" || over.Result.Text != "Checkmate! bob wins!" {
			t.Fatalf("%s gameOver = %+v", p.id, over)
		}
	}
	if err := fx.c.MakeMove(context.Background(), white, wb, mustMove(t, "a2a3")); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("move after mate err = %v", err)
	}

	if err := fx.c.ResetGame(context.Background(), black, bb); !errors.Is(err, ErrNotFirstSeat) {
		t.Fatalf("reset by black err = %v", err)
	}
	if err := fx.c.ResetGame(context.Background(), white, wb); err != nil { t.Fatalf("reset: %v", err) }
	var reset duelproto.GameReset
	black.last(t, duelproto.EventGameReset, &reset)
	if reset.CurrentPosition != rules.StartFEN || reset.Status != string(domain.StatusActive) { t.Fatalf("gameReset = %+v", reset) }
	sum, _ := fx.c.Summary(wb.SessionID)
	if sum.Ply != 0 || sum.Result != nil || sum.Status != domain.StatusActive { t.Fatalf("after reset = %+v", sum) }
}

func TestResignAwardsOpponent(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, _ := fx.seated(t)
	if err := fx.c.Resign(context.Background(), white, wb); err != nil { t.Fatalf("Resign: %v", err) }
	var over duelproto.GameOver
	black.last(t, duelproto.EventGameOver, &over)
	if over.Result.Kind != "resignation" || over.Result.WinnerName != "bob" { t.Fatalf("gameOver = %+v", over) }
	if err := fx.c.Resign(context.Background(), white, wb); !errors.Is(err, ErrGameNotActive) { t.Fatalf("second resign err = %v", err) }
}

func TestOracleFailureIsRetryable(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, _ := fx.seated(t)
	fx.oracle.down.Store(true)

	err := fx.c.MakeMove(context.Background(), white, wb, mustMove(t, "e2e4"))
	if !errors.Is(err, ErrOracleUnavailable) { t.Fatalf("err = %v", err) }
	if code, retry := ErrorCode(err); code != CodeOracleUnavailable || !retry { t.Fatalf("code = %s retry = %v", code, retry) }
	if black.count(duelproto.EventGameMove) != 0 { t.Fatalf("move broadcast during outage") }

	fx.oracle.down.Store(false)
	if err := fx.c.MakeMove(context.Background(), white, wb, mustMove(t, "e2e4")); err != nil { t.Fatalf("retry: %v", err) }
}

func TestOracleSkippingPliesIsUnavailable(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, _ := fx.seated(t)
	reply := mustMove(t, "e7e5")
	fx.oracle.extra.Store(&reply)

	err := fx.c.MakeMove(context.Background(), white, wb, mustMove(t, "e2e4"))
	if !errors.Is(err, ErrOracleUnavailable) { t.Fatalf("err = %v", err) }
	if code, retry := ErrorCode(err); code != CodeOracleUnavailable || !retry { t.Fatalf("code = %s retry = %v", code, retry) }
	if white.count(duelproto.EventGameMove)+black.count(duelproto.EventGameMove) != 0 { t.Fatalf("bad position was broadcast") }
	sum, _ := fx.c.Summary(wb.SessionID)
	if sum.Ply != 0 || sum.FEN != rules.StartFEN { t.Fatalf("summary = %+v", sum) }

	fx.oracle.extra.Store(nil)
	if err := fx.c.MakeMove(context.Background(), white, wb, mustMove(t, "e2e4")); err != nil { t.Fatalf("retry: %v", err) }
}

func TestConcurrentDuplicateMoveAppliesOnce(t *testing.T) {
	const n = 16
	for round := 0; round < 20; round++ {
		fx := newFixture(t, nil)
		white, black, wb, _ := fx.seated(t)

		var (
			wg      sync.WaitGroup
			ok      atomic.Int32
			notTurn atomic.Int32
			other   atomic.Int32
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				err := fx.c.MakeMove(context.Background(), white, wb, rules.Move{From: "e2", To: "e4"})
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, ErrNotYourTurn):
					notTurn.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if ok.Load() != 1 || notTurn.Load() != n-1 || other.Load() != 0 {
			t.Fatalf("round %d: ok=%d notTurn=%d other=%d", round, ok.Load(), notTurn.Load(), other.Load())
		}
		if white.count(duelproto.EventGameMove) != 1 || black.count(duelproto.EventGameMove) != 1 {
			t.Fatalf("round %d: broadcasts white=%d black=%d", round, white.count(duelproto.EventGameMove), black.count(duelproto.EventGameMove))
		}
		sum, err := fx.c.Summary(wb.SessionID)
		if err != nil { t.Fatalf("Summary: %v", err) }
		if sum.Ply != 1 || sum.Turn != rules.Black { t.Fatalf("round %d: summary = %+v", round, sum) }
	}
}

func TestDisconnectAndReconnect(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	ctx := context.Background()
	var joined duelproto.GameJoined
	black.last(t, duelproto.EventGameJoined, &joined)

	if err := fx.c.MakeMove(ctx, white, wb, mustMove(t, "e2e4")); err != nil { t.Fatalf("e2e4: %v", err) }
	fx.c.Disconnect(ctx, black, bb)
	if white.count(duelproto.EventOpponentDisconnected) != 1 { t.Fatalf("white not told about disconnect") }

	if _, err := fx.c.Reconnect(ctx, newPeer("b2"), wb.SessionID, "wrong"); !errors.Is(err, ErrSeatNotFound) {
		t.Fatalf("wrong token err = %v", err)
	}
	black2 := newPeer("b2")
	b2, err := fx.c.Reconnect(ctx, black2, wb.SessionID, joined.SeatToken)
	if err != nil { t.Fatalf("Reconnect: %v", err) }
	if b2 != bb { t.Fatalf("binding = %+v, want %+v", b2, bb) }

	var resumed duelproto.GameResumed
	black2.last(t, duelproto.EventGameResumed, &resumed)
	if len(resumed.Moves) != 1 || resumed.Turn != "black" || !resumed.OpponentOnline || len(resumed.Chat) == 0 {
		t.Fatalf("gameResumed = %+v", resumed)
	}
	if white.count(duelproto.EventOpponentReconnected) != 1 { t.Fatalf("white not told about reconnect") }
	sawNotice := false
	for _, m := range resumed.Chat {
		if strings.Contains(m.Text, "opponent") { t.Fatalf("resumed history addresses the reconnecting seat as someone else: %q", m.Text) }
		sawNotice = sawNotice || m.Text == "bob disconnected."
	}
	if !sawNotice { t.Fatalf("disconnect notice missing from history: %+v", resumed.Chat) }

	// the stale connection no longer holds the seat
	if err := fx.c.MakeMove(ctx, black, bb, mustMove(t, "e7e5")); !errors.Is(err, ErrNotSeated) { t.Fatalf("stale peer err = %v", err) }
	if err := fx.c.MakeMove(ctx, black2, b2, mustMove(t, "e7e5")); err != nil { t.Fatalf("e7e5: %v", err) }
}

func TestReconnectReplacesLiveConnection(t *testing.T) {
	fx := newFixture(t, nil)
	white, _, wb, _ := fx.seated(t)
	var created duelproto.GameCreated
	white.last(t, duelproto.EventGameCreated, &created)

	white2 := newPeer("w2")
	if _, err := fx.c.Reconnect(context.Background(), white2, wb.SessionID, created.SeatToken); err != nil { t.Fatalf("Reconnect: %v", err) }
	if white.closed == "" { t.Fatalf("replaced connection was not closed") }
	// disconnect of the replaced connection must not affect the seat
	fx.c.Disconnect(context.Background(), white, wb)
	if !fx.c.Seated(white2, wb) { t.Fatalf("seat lost after stale disconnect") }
}

func TestMoveBlockedWhileOpponentAway(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	fx.c.Disconnect(context.Background(), black, bb)
	err := fx.c.MakeMove(context.Background(), white, wb, mustMove(t, "e2e4"))
	if !errors.Is(err, ErrOpponentAway) { t.Fatalf("err = %v", err) }
	if _, retry := ErrorCode(err); !retry { t.Fatalf("OPPONENT_AWAY should be retryable") }
}

func TestSweepAbandonsAfterGrace(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	ctx := context.Background()
	fx.c.Disconnect(ctx, black, bb)

	fx.clock.Advance(30 * time.Second)
	if n := fx.c.Sweep(ctx); n != 0 { t.Fatalf("swept %d inside grace", n) }
	fx.clock.Advance(31 * time.Second)
	if n := fx.c.Sweep(ctx); n != 1 { t.Fatalf("swept %d after grace", n) }

	var ab duelproto.GameAbandoned
	white.last(t, duelproto.EventGameAbandoned, &ab)
	if ab.Reason != ReasonTimeout { t.Fatalf("reason = %q", ab.Reason) }
	if _, err := fx.c.Summary(wb.SessionID); !errors.Is(err, ErrSessionNotFound) { t.Fatalf("session still present: %v", err) }
	if snap, _ := fx.snapshots.Load(ctx, wb.SessionID); snap != nil { t.Fatalf("snapshot not deleted") }
	if err := fx.c.MakeMove(ctx, white, wb, mustMove(t, "e2e4")); !errors.Is(err, ErrSessionNotFound) { t.Fatalf("move err = %v", err) }
}

func TestReconnectWithinGraceCancelsAbandon(t *testing.T) {
	fx := newFixture(t, nil)
	_, black, wb, bb := fx.seated(t)
	ctx := context.Background()
	var joined duelproto.GameJoined
	black.last(t, duelproto.EventGameJoined, &joined)

	fx.c.Disconnect(ctx, black, bb)
	fx.clock.Advance(50 * time.Second)
	if _, err := fx.c.Reconnect(ctx, newPeer("b2"), wb.SessionID, joined.SeatToken); err != nil { t.Fatalf("Reconnect: %v", err) }
	fx.clock.Advance(time.Hour)
	if n := fx.c.Sweep(ctx); n != 0 { t.Fatalf("reconnected session swept") }
}

func TestLeaveAbandonsAndNotifiesOpponent(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	if err := fx.c.LeaveGame(context.Background(), black, bb); err != nil { t.Fatalf("LeaveGame: %v", err) }
	var ab duelproto.GameAbandoned
	white.last(t, duelproto.EventGameAbandoned, &ab)
	if ab.Reason != ReasonLeft { t.Fatalf("reason = %q", ab.Reason) }
	if black.count(duelproto.EventGameAbandoned) != 0 { t.Fatalf("leaver received gameAbandoned") }
	if fx.c.Registry().Len() != 0 { t.Fatalf("session not removed") }
	if fx.c.Seated(white, wb) { t.Fatalf("white still seated in removed session") }
}

func TestChatIsOrderedWithGameEvents(t *testing.T) {
	fx := newFixture(t, nil)
	white, black, wb, bb := fx.seated(t)
	ctx := context.Background()
	if err := fx.c.SendMessage(ctx, white, wb, "good luck"); err != nil { t.Fatalf("SendMessage: %v", err) }
	if err := fx.c.SendMessage(ctx, black, bb, "  you too  "); err != nil { t.Fatalf("SendMessage: %v", err) }
	if err := fx.c.SendMessage(ctx, black, bb, "   "); !errors.Is(err, ErrInvalidArgs) { t.Fatalf("empty err = %v", err) }

	var last duelproto.ChatMessage
	white.last(t, duelproto.EventReceiveMessage, &last)
	if last.Text != "you too" || last.Sender != "bob" || last.SenderSeat != "black" || last.SequenceNumber != 3 {
		t.Fatalf("last chat = %+v", last)
	}
}

func TestRestoreRebuildsSessions(t *testing.T) {
	snaps := store.NewMemory()
	fx := newFixture(t, snaps)
	white, black, wb, bb := fx.seated(t)
	peers := map[rules.Color]*fakePeer{rules.White: white, rules.Black: black}
	binds := map[rules.Color]Binding{rules.White: wb, rules.Black: bb}
	fx.play(t, peers, binds, "e2e4", "e7e5", "g1f3")
	var created duelproto.GameCreated
	white.last(t, duelproto.EventGameCreated, &created)

	ctx := context.Background()
	// a snapshot whose line no longer matches its position is discarded
	bad := &store.Snapshot{
		ID: "corrupt", Version: 1, Status: domain.StatusActive,
		Seats:    []store.SeatRecord{{Side: rules.White, Name: "x", Token: "t"}},
		Position: rules.Position{Start: rules.StartFEN, UCI: []string{"e2e4"}, SAN: []string{"e4"}, FEN: rules.StartFEN, Turn: rules.Black},
		Moves:    []domain.MoveRecord{{Ply: 1, Seat: rules.White, From: "e2", To: "e4"}},
	}
	if err := snaps.Save(ctx, bad); err != nil { t.Fatalf("Save: %v", err) }

	fresh := newFixture(t, snaps)
	n, err := fresh.c.Restore(ctx)
	if err != nil { t.Fatalf("Restore: %v", err) }
	if n != 1 { t.Fatalf("restored %d", n) }
	if snap, _ := snaps.Load(ctx, "corrupt"); snap != nil { t.Fatalf("corrupt snapshot kept") }

	sum, err := fresh.c.Summary(wb.SessionID)
	if err != nil { t.Fatalf("Summary: %v", err) }
	if sum.Ply != 3 || sum.Turn != rules.Black || sum.Status != domain.StatusActive { t.Fatalf("summary = %+v", sum) }
	for _, st := range sum.Seats {
		if st.Online { t.Fatalf("restored seat %s online", st.Side) }
	}

	w2 := newPeer("w2")
	if _, err := fresh.c.Reconnect(ctx, w2, wb.SessionID, created.SeatToken); err != nil { t.Fatalf("Reconnect: %v", err) }
	var resumed duelproto.GameResumed
	w2.last(t, duelproto.EventGameResumed, &resumed)
	if len(resumed.Moves) != 3 || resumed.OpponentOnline { t.Fatalf("gameResumed = %+v", resumed) }
}

func TestSweepClosesStaleWaitingSession(t *testing.T) {
	fx := newFixture(t, nil)
	fx.c.waitingTimeout = 10 * time.Minute
	white := newPeer("w")
	wb, err := fx.c.CreateGame(context.Background(), white, "alice")
	if err != nil { t.Fatalf("CreateGame: %v", err) }

	fx.clock.Advance(9 * time.Minute)
	if n := fx.c.Sweep(context.Background()); n != 0 { t.Fatalf("swept %d early", n) }
	fx.clock.Advance(2 * time.Minute)
	if n := fx.c.Sweep(context.Background()); n != 1 { t.Fatalf("swept %d", n) }
	var ab duelproto.GameAbandoned
	white.last(t, duelproto.EventGameAbandoned, &ab)
	if ab.Reason != ReasonWaitingExpired { t.Fatalf("reason = %q", ab.Reason) }
	if _, err := fx.c.Summary(wb.SessionID); !errors.Is(err, ErrSessionNotFound) { t.Fatalf("session still present") }
}
