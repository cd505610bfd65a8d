package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
)

// Local is the in-process oracle backed by corentings/chess.
// Threefold repetition and the fifty-move rule end the game as soon as they become claimable.
//
// Every call replays the line from the start FEN, so a call costs O(ply). The game
// built by ApplyMove is kept until the following Classify of the same line, which
// then skips its own replay.
type Local struct {
	mu    sync.Mutex
	built map[string]*nchess.Game
}

// maxBuilt bounds games waiting for their Classify call.
const maxBuilt = 256

// replayCheckEvery is how many plies reconstruct replays between context checks.
const replayCheckEvery = 32

func NewLocal() *Local { return &Local{built: make(map[string]*nchess.Game)} }

func lineKey(pos Position) string {
	start := strings.TrimSpace(pos.Start)
	if start == "" {
		start = StartFEN
	}
	return start + "|" + strings.Join(pos.UCI, " ")
}

func (l *Local) keep(pos Position, game *nchess.Game) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.built == nil || len(l.built) >= maxBuilt {
		l.built = make(map[string]*nchess.Game)
	}
	l.built[lineKey(pos)] = game
}

// take hands out the kept game for pos at most once.
func (l *Local) take(pos Position) *nchess.Game {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := lineKey(pos)
	game, ok := l.built[key]
	if ok {
		delete(l.built, key)
	}
	return game
}

func (l *Local) ApplyMove(ctx context.Context, pos Position, mv Move) (next Position, err error) {
	if cerr := ctx.Err(); cerr != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, cerr)
	}
	defer func() {
		if r := recover(); r != nil {
			next, err = Position{}, fmt.Errorf("%w: panic: %v", ErrUnavailable, r)
		}
	}()

	game, err := reconstruct(ctx, pos)
	if err != nil {
		return Position{}, err
	}
	before := game.Position()

	uci := mv.UCI()
	if len(uci) < 4 {
		return Position{}, ErrIllegalMove
	}
	if perr := game.PushNotationMove(uci, nchess.UCINotation{}, nil); perr != nil {
		// 프로모션 말이 빠진 폰 이동은 퀸으로 승격
		if mv.Promotion != "" || !lastRank(mv.To) {
			return Position{}, ErrIllegalMove
		}
		uci += "q"
		if perr := game.PushNotationMove(uci, nchess.UCINotation{}, nil); perr != nil {
			return Position{}, ErrIllegalMove
		}
	}
	last := lastMove(game)
	if last == nil {
		return Position{}, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(before, last)
	next = pos.extend(last.String(), san, game.FEN(), colorFrom(game.Position().Turn()))
	l.keep(next, game)
	return next, nil
}

func (l *Local) Classify(ctx context.Context, pos Position) (c Classification, err error) {
	if cerr := ctx.Err(); cerr != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrUnavailable, cerr)
	}
	defer func() {
		if r := recover(); r != nil {
			c, err = Classification{}, fmt.Errorf("%w: panic: %v", ErrUnavailable, r)
		}
	}()

	if game := l.take(pos); game != nil {
		return classifyGame(game), nil
	}
	game, err := reconstruct(ctx, pos)
	if err != nil {
		return Classification{}, err
	}
	return classifyGame(game), nil
}

func classifyGame(game *nchess.Game) Classification {
	switch game.Method() {
	case nchess.Checkmate:
		if game.Outcome() == nchess.WhiteWon {
			return Classification{Kind: Checkmate, Winner: White}
		}
		return Classification{Kind: Checkmate, Winner: Black}
	case nchess.Stalemate:
		return Classification{Kind: Stalemate}
	case nchess.InsufficientMaterial:
		return Classification{Kind: DrawByInsufficientMaterial}
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return Classification{Kind: DrawByRepetition}
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return Classification{Kind: DrawByFiftyMoveRule}
	}
	for _, m := range game.EligibleDraws() {
		switch m {
		case nchess.ThreefoldRepetition:
			return Classification{Kind: DrawByRepetition}
		case nchess.FiftyMoveRule:
			return Classification{Kind: DrawByFiftyMoveRule}
		}
	}
	if last := lastMove(game); last != nil && last.HasTag(nchess.Check) {
		return Classification{Kind: Check}
	}
	return Classification{Kind: Ongoing}
}

// reconstruct replays the line from the start FEN. The stored FEN is never loaded
// directly because repetition detection needs the full history.
func reconstruct(ctx context.Context, pos Position) (*nchess.Game, error) {
	start := strings.TrimSpace(pos.Start)
	var game *nchess.Game
	if start == "" || start == StartFEN {
		game = nchess.NewGame()
	} else {
		opt, err := nchess.FEN(start)
		if err != nil {
			return nil, fmt.Errorf("%w: start fen: %v", ErrInvalidPosition, err)
		}
		game = nchess.NewGame(opt)
	}
	for i, mv := range pos.UCI {
		if i%replayCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: replay stopped at ply %d: %v", ErrUnavailable, i, err)
			}
		}
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: ply %d (%s): %v", ErrInvalidPosition, i+1, mv, err)
		}
	}
	return game, nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func lastRank(square string) bool {
	square = strings.TrimSpace(square)
	if len(square) != 2 {
		return false
	}
	return square[1] == '8' || square[1] == '1'
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}
