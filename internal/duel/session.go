package duel

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/park285/cheese-duel/internal/chat"
	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/position"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/internal/store"
	"github.com/park285/cheese-duel/pkg/duelproto"
)

const maxNameRunes = 40

// Peer is a live connection that can receive frames. Send must not block on the
// session; Close must return without waiting for the connection to drain.
type Peer interface {
	ID() string
	Send(f duelproto.Frame) error
	Close(reason string)
}

// Binding ties a connection to a seat of a session.
type Binding struct {
	SessionID string
	Seat      rules.Color
}

func (b Binding) Valid() bool { return b.SessionID != "" && (b.Seat == rules.White || b.Seat == rules.Black) }

type seat struct {
	side   rules.Color
	name   string
	token  string
	peer   Peer
	live   bool
	leftAt time.Time
}

func (st *seat) online() bool { return st != nil && st.live && st.peer != nil }

// Session is one two-seat game. All fields below mu are guarded by it; the
// coordinator holds mu for the whole of every operation on the session.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	status    domain.Status
	seats     [2]*seat
	board     *position.Store
	result    *domain.Result
	version   int64
	updatedAt time.Time
	removed   bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		status:    domain.StatusWaiting,
		board:     position.New(""),
		updatedAt: now,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func seatIndex(side rules.Color) int {
	if side == rules.Black {
		return 1
	}
	return 0
}

func (s *Session) seat(side rules.Color) *seat { return s.seats[seatIndex(side)] }

func (s *Session) opponent(side rules.Color) *seat { return s.seats[seatIndex(side.Opponent())] }

func (s *Session) seatedCount() int {
	n := 0
	for _, st := range s.seats {
		if st != nil {
			n++
		}
	}
	return n
}

// recipients returns the online peers, optionally skipping one side.
func (s *Session) recipients(skip ...rules.Color) []chat.Recipient {
	out := make([]chat.Recipient, 0, 2)
next:
	for _, st := range s.seats {
		if !st.online() {
			continue
		}
		for _, sk := range skip {
			if st.side == sk {
				continue next
			}
		}
		out = append(out, st.peer)
	}
	return out
}

// expiry reports whether the session must be abandoned at now.
func (s *Session) expiry(now time.Time, grace, waitingTimeout time.Duration) (reason string, who *seat, ok bool) {
	if s.removed || s.status == domain.StatusAbandoned {
		return "", nil, false
	}
	for _, st := range s.seats {
		if st != nil && !st.live && !st.leftAt.IsZero() && now.Sub(st.leftAt) >= grace {
			return ReasonTimeout, st, true
		}
	}
	if s.status == domain.StatusWaiting && waitingTimeout > 0 && now.Sub(s.CreatedAt) >= waitingTimeout {
		return ReasonWaitingExpired, s.seats[0], true
	}
	return "", nil, false
}

func (s *Session) snapshot() *store.Snapshot {
	snap := &store.Snapshot{
		ID:        s.ID,
		Version:   s.version,
		Status:    s.status,
		Position:  s.board.Current(),
		Moves:     s.board.Log(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
	}
	for _, st := range s.seats {
		if st != nil {
			snap.Seats = append(snap.Seats, store.SeatRecord{Side: st.side, Name: st.name, Token: st.token})
		}
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

// Abandonment reasons sent in gameAbandoned.
const (
	ReasonLeft           = "left"
	ReasonTimeout        = "timeout"
	ReasonWaitingExpired = "waiting-expired"
)

func normalizeName(name string, side rules.Color) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		if side == rules.Black {
			return "Black"
		}
		return "White"
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	return name
}
