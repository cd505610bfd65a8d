package duel

import (
	"errors"

	"github.com/park285/cheese-duel/internal/rules"
)

var (
	ErrSessionNotFound   = errf("session not found")
	ErrSessionFull       = errf("session already has two seats")
	ErrNotYourTurn       = errf("not your turn")
	ErrIllegalMove       = rules.ErrIllegalMove
	ErrOracleUnavailable = errf("rules oracle unavailable")
	ErrSeatNotFound      = errf("seat not found")
	ErrNotFirstSeat      = errf("only the first seat may reset the game")
	ErrGameNotActive     = errf("game is not active")
	ErrOpponentAway      = errf("opponent is disconnected")
	ErrInvalidArgs       = errf("invalid arguments")
	ErrNotSeated         = errf("connection is not seated in this session")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Wire error codes.
const (
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeSessionFull       = "SESSION_FULL"
	CodeNotYourTurn       = "NOT_YOUR_TURN"
	CodeIllegalMove       = "ILLEGAL_MOVE"
	CodeOracleUnavailable = "ORACLE_UNAVAILABLE"
	CodeSeatNotFound      = "SEAT_NOT_FOUND"
	CodeNotFirstSeat      = "NOT_FIRST_SEAT"
	CodeGameNotActive     = "GAME_NOT_ACTIVE"
	CodeOpponentAway      = "OPPONENT_AWAY"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeNotSeated         = "NOT_SEATED"
	CodeInternal          = "INTERNAL"
)

var codeTable = []struct {
	err       error
	code      string
	retryable bool
}{
	{ErrSessionNotFound, CodeSessionNotFound, false},
	{ErrSessionFull, CodeSessionFull, false},
	{ErrNotYourTurn, CodeNotYourTurn, false},
	{ErrIllegalMove, CodeIllegalMove, false},
	{ErrOracleUnavailable, CodeOracleUnavailable, true},
	{ErrSeatNotFound, CodeSeatNotFound, false},
	{ErrNotFirstSeat, CodeNotFirstSeat, false},
	{ErrGameNotActive, CodeGameNotActive, false},
	{ErrOpponentAway, CodeOpponentAway, true},
	{ErrInvalidArgs, CodeInvalidArgument, false},
	{ErrNotSeated, CodeNotSeated, false},
}

// ErrorCode maps an error returned by the coordinator to its wire code.
func ErrorCode(err error) (code string, retryable bool) {
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code, e.retryable
		}
	}
	return CodeInternal, false
}
