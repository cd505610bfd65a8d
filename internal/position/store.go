package position

import (
	"fmt"
	"sync"

	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/rules"
)

// ErrOutOfSequence is returned when a commit does not extend the current position by one ply.
var ErrOutOfSequence = errf("position does not extend the current line")

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Store holds the current position and the ordered move log of a single session.
// Position and log only change together through Commit and Reset.
type Store struct {
	mu      sync.RWMutex
	start   string
	current rules.Position
	log     []domain.MoveRecord
}

// New returns an empty store starting from start (standard position when empty).
func New(start string) *Store {
	pos := rules.NewPosition(start)
	return &Store{start: pos.Start, current: pos, log: []domain.MoveRecord{}}
}

// Restore rebuilds a store from a snapshot. The log must match the position's line.
func Restore(current rules.Position, log []domain.MoveRecord) (*Store, error) {
	if len(log) != current.Ply() {
		return nil, fmt.Errorf("%w: log has %d entries, position has %d plies", ErrOutOfSequence, len(log), current.Ply())
	}
	for i, rec := range log {
		if rec.Ply != i+1 {
			return nil, fmt.Errorf("%w: entry %d has ply %d", ErrOutOfSequence, i, rec.Ply)
		}
	}
	if current.Start == "" {
		current.Start = rules.StartFEN
	}
	return &Store{start: current.Start, current: current, log: append([]domain.MoveRecord(nil), log...)}, nil
}

func (s *Store) Current() rules.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) Turn() rules.Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Turn
}

func (s *Store) Ply() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// Log returns a copy of the move log.
func (s *Store) Log() []domain.MoveRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MoveRecord(nil), s.log...)
}

// Commit installs next as the current position and appends rec to the log.
// rec.Ply and rec.FEN are filled from next.
func (s *Store) Commit(next rules.Position, rec domain.MoveRecord) (domain.MoveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.Start != s.current.Start || next.Ply() != s.current.Ply()+1 {
		return domain.MoveRecord{}, fmt.Errorf("%w: have ply %d, got %d", ErrOutOfSequence, s.current.Ply(), next.Ply())
	}
	rec.Ply = next.Ply()
	rec.FEN = next.FEN
	if _, san, ok := next.Last(); ok && rec.SAN == "" {
		rec.SAN = san
	}
	s.current = next
	s.log = append(s.log, rec)
	return rec, nil
}

// Reset clears the log and returns to the start position.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = rules.NewPosition(s.start)
	s.log = []domain.MoveRecord{}
	s.mu.Unlock()
}
