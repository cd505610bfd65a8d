package position

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/rules"
)

func commit(t *testing.T, s *Store, o rules.Oracle, mv rules.Move) domain.MoveRecord {
	t.Helper()
	next, err := o.ApplyMove(context.Background(), s.Current(), mv)
	if err != nil { t.Fatalf("ApplyMove: %v", err) }
	rec, err := s.Commit(next, domain.MoveRecord{Seat: s.Turn(), From: mv.From, To: mv.To, Promotion: mv.Promotion})
	if err != nil { t.Fatalf("Commit: %v", err) }
	return rec
}

func TestCommitUpdatesPositionAndLogTogether(t *testing.T) {
	s := New("")
	o := rules.NewLocal()
	rec := commit(t, s, o, rules.Move{From: "e2", To: "e4"})
	if rec.Ply != 1 || rec.SAN != "e4" || rec.Seat != rules.White { t.Fatalf("record = %+v", rec) }
	if s.Ply() != 1 || s.Turn() != rules.Black { t.Fatalf("ply=%d turn=%s", s.Ply(), s.Turn()) }
	if s.Current().FEN != rec.FEN { t.Fatalf("fen mismatch %q vs %q", s.Current().FEN, rec.FEN) }
}

func TestCommitRejectsStalePosition(t *testing.T) {
	s := New("")
	o := rules.NewLocal()
	stale := s.Current()
	commit(t, s, o, rules.Move{From: "e2", To: "e4"})
	next, err := o.ApplyMove(context.Background(), stale, rules.Move{From: "d2", To: "d4"})
	if err != nil { t.Fatalf("ApplyMove: %v", err) }
	if _, err := s.Commit(next, domain.MoveRecord{}); !errors.Is(err, ErrOutOfSequence) {
		t.Fatalf("expected ErrOutOfSequence, got %v", err)
	}
	if s.Ply() != 1 { t.Fatalf("log changed on rejected commit: %d", s.Ply()) }
}

func TestLogReplaysToCurrentPosition(t *testing.T) {
	s := New("")
	o := rules.NewLocal()
	for _, u := range []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"} {
		mv, _ := rules.ParseUCI(u)
		commit(t, s, o, mv)
	}
	var moves []rules.Move
	for _, rec := range s.Log() {
		moves = append(moves, rec.Move())
	}
	replayed, err := rules.Replay(context.Background(), o, s.Current().Start, moves)
	if err != nil { t.Fatalf("Replay: %v", err) }
	if !replayed.Equal(s.Current()) { t.Fatalf("replay %q != current %q", replayed.FEN, s.Current().FEN) }
}

func TestResetClearsEverything(t *testing.T) {
	s := New("")
	commit(t, s, rules.NewLocal(), rules.Move{From: "e2", To: "e4"})
	s.Reset()
	if s.Ply() != 0 || len(s.Log()) != 0 { t.Fatalf("log not cleared") }
	if s.Current().FEN != rules.StartFEN || s.Turn() != rules.White { t.Fatalf("position not reset: %q", s.Current().FEN) }
}

func TestRestoreValidatesLog(t *testing.T) {
	s := New("")
	commit(t, s, rules.NewLocal(), rules.Move{From: "e2", To: "e4"})
	if _, err := Restore(s.Current(), nil); !errors.Is(err, ErrOutOfSequence) {
		t.Fatalf("expected ErrOutOfSequence, got %v", err)
	}
	r, err := Restore(s.Current(), s.Log())
	if err != nil { t.Fatalf("Restore: %v", err) }
	if r.Ply() != 1 || r.Turn() != rules.Black { t.Fatalf("restored ply=%d turn=%s", r.Ply(), r.Turn()) }
}
