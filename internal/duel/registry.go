package duel

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/rules"
)

// Registry owns the set of live sessions. Sessions are created and destroyed only here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	now      func() time.Time
	newID    func() string
	newToken func() string

	// hooks run with the session lock held so their broadcasts are ordered with
	// every other event of the session.
	onJoin      func(ctx context.Context, s *Session, st *seat)
	onReconnect func(ctx context.Context, s *Session, st *seat, replaced Peer)
}

type RegistryOption func(*Registry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides session id and seat token generation.
func WithIDGenerator(newID, newToken func() string) RegistryOption {
	return func(r *Registry) {
		if newID != nil {
			r.newID = newID
		}
		if newToken != nil {
			r.newToken = newToken
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
		newID:    uuid.NewString,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a session and seats the caller first (white).
func (r *Registry) Create(name string, peer Peer) (*Session, rules.Color) {
	now := r.now()
	s := newSession(r.newID(), now)
	s.seats[0] = &seat{
		side:  domain.SeatFirst,
		name:  normalizeName(name, domain.SeatFirst),
		token: r.newToken(),
		peer:  peer,
		live:  peer != nil,
	}
	r.mu.Lock()
	for {
		if _, exists := r.sessions[s.ID]; !exists {
			break
		}
		s.ID = r.newID()
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, domain.SeatFirst
}

// Join seats the caller second (black). A third join fails with ErrSessionFull.
func (r *Registry) Join(ctx context.Context, id, name string, peer Peer) (*Session, rules.Color, error) {
	s, err := r.Lookup(id)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed || s.status == domain.StatusAbandoned {
		return nil, "", ErrSessionNotFound
	}
	if s.seats[1] != nil {
		return nil, "", ErrSessionFull
	}
	st := &seat{
		side:  domain.SeatSecond,
		name:  normalizeName(name, domain.SeatSecond),
		token: r.newToken(),
		peer:  peer,
		live:  peer != nil,
	}
	s.seats[1] = st
	if s.status == domain.StatusWaiting {
		s.status = domain.StatusActive
	}
	s.updatedAt = r.now()
	if r.onJoin != nil {
		r.onJoin(ctx, s, st)
	}
	return s, st.side, nil
}

// ResolveForReconnect rebinds the seat holding token to peer. Game state is untouched.
func (r *Registry) ResolveForReconnect(ctx context.Context, id, token string, peer Peer) (*Session, rules.Color, error) {
	s, err := r.Lookup(id)
	if err != nil {
		return nil, "", err
	}
	token = strings.TrimSpace(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed || s.status == domain.StatusAbandoned {
		return nil, "", ErrSessionNotFound
	}
	var st *seat
	for _, cand := range s.seats {
		if cand != nil && token != "" && subtle.ConstantTimeCompare([]byte(cand.token), []byte(token)) == 1 {
			st = cand
			break
		}
	}
	if st == nil {
		return nil, "", ErrSeatNotFound
	}
	replaced := st.peer
	st.peer = peer
	st.live = peer != nil
	st.leftAt = time.Time{}
	if r.onReconnect != nil {
		r.onReconnect(ctx, s, st, replaced)
	}
	return s, st.side, nil
}

func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep returns the sessions that are due for abandonment at now.
func (r *Registry) Sweep(now time.Time, grace, waitingTimeout time.Duration) []*Session {
	var due []*Session
	for _, s := range r.list() {
		s.mu.Lock()
		_, _, ok := s.expiry(now, grace, waitingTimeout)
		s.mu.Unlock()
		if ok {
			due = append(due, s)
		}
	}
	return due
}

// Remove destroys a session. The caller must already have marked it abandoned.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) adopt(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

func (r *Registry) list() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
