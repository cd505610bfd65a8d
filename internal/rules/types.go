package rules

import (
	"context"
	"fmt"
	"strings"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Move is a candidate move in square terms. Promotion is one of q, r, b, n or empty.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the move in long algebraic form (e2e4, e7e8q).
func (m Move) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// ParseUCI splits a long algebraic string into a Move.
func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, s)
	}
	mv := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		mv.Promotion = s[4:]
	}
	return mv, nil
}

// Position is a replayable game position: the start FEN plus the line played from it.
// FEN and Turn describe the position after the last move of the line.
type Position struct {
	Start string   `json:"start"`
	UCI   []string `json:"moves_uci"`
	SAN   []string `json:"moves_san"`
	FEN   string   `json:"fen"`
	Turn  Color    `json:"turn"`
}

// NewPosition returns the position with no moves played from start (StartFEN when empty).
func NewPosition(start string) Position {
	start = strings.TrimSpace(start)
	if start == "" {
		start = StartFEN
	}
	return Position{Start: start, UCI: []string{}, SAN: []string{}, FEN: start, Turn: turnFromFEN(start)}
}

// Ply is the number of half-moves played from the start position.
func (p Position) Ply() int { return len(p.UCI) }

// Last returns the most recent move of the line.
func (p Position) Last() (uci, san string, ok bool) {
	n := len(p.UCI)
	if n == 0 {
		return "", "", false
	}
	if len(p.SAN) == n {
		san = p.SAN[n-1]
	}
	return p.UCI[n-1], san, true
}

// Equal reports whether two positions describe the same line and FEN.
func (p Position) Equal(o Position) bool {
	if p.Start != o.Start || p.FEN != o.FEN || len(p.UCI) != len(o.UCI) {
		return false
	}
	for i := range p.UCI {
		if p.UCI[i] != o.UCI[i] {
			return false
		}
	}
	return true
}

func (p Position) extend(uci, san, fen string, turn Color) Position {
	next := Position{
		Start: p.Start,
		UCI:   make([]string, 0, len(p.UCI)+1),
		SAN:   make([]string, 0, len(p.SAN)+1),
		FEN:   fen,
		Turn:  turn,
	}
	next.UCI = append(append(next.UCI, p.UCI...), uci)
	next.SAN = append(append(next.SAN, p.SAN...), san)
	return next
}

func turnFromFEN(fen string) Color {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return Black
	}
	return White
}

// Kind is the oracle's verdict on a position.
type Kind string

const (
	Ongoing                    Kind = "ongoing"
	Check                      Kind = "check"
	Checkmate                  Kind = "checkmate"
	Stalemate                  Kind = "stalemate"
	DrawByRepetition           Kind = "draw-by-repetition"
	DrawByInsufficientMaterial Kind = "draw-by-insufficient-material"
	DrawByFiftyMoveRule        Kind = "draw-by-fifty-move-rule"
)

// Classification is the result of Classify. Winner is set only for Checkmate.
type Classification struct {
	Kind   Kind  `json:"kind"`
	Winner Color `json:"winner,omitempty"`
}

// Terminal reports whether the game is over.
func (c Classification) Terminal() bool {
	switch c.Kind {
	case Ongoing, Check, "":
		return false
	default:
		return true
	}
}

// Oracle decides legality and terminal state. Implementations must be pure functions
// of their inputs.
type Oracle interface {
	ApplyMove(ctx context.Context, pos Position, mv Move) (Position, error)
	Classify(ctx context.Context, pos Position) (Classification, error)
}

var (
	ErrIllegalMove     = errf("illegal move")
	ErrUnavailable     = errf("rules oracle unavailable")
	ErrInvalidPosition = errf("position cannot be replayed")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
