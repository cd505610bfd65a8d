package domain

import (
	"time"

	"github.com/park285/cheese-duel/internal/rules"
)

// Seats are labeled by side: the creator sits white, the joiner black.
const (
	SeatFirst  = rules.White
	SeatSecond = rules.Black
)

// Status is the lifecycle state of a duel session.
type Status string

const (
	StatusWaiting   Status = "waiting-for-second-seat"
	StatusActive    Status = "active"
	StatusFinished  Status = "finished"
	StatusAbandoned Status = "abandoned"
)

// MoveRecord is one entry of a session's move log.
type MoveRecord struct {
	Ply       int         `json:"ply"`
	Seat      rules.Color `json:"seat"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Promotion string      `json:"promotion,omitempty"`
	SAN       string      `json:"san"`
	FEN       string      `json:"fen"`
	PlayedAt  time.Time   `json:"played_at"`
}

// Move returns the record as a replayable move.
func (r MoveRecord) Move() rules.Move {
	return rules.Move{From: r.From, To: r.To, Promotion: r.Promotion}
}

// ResultKind names how a game ended.
type ResultKind string

const (
	ResultCheckmate     ResultKind = "checkmate"
	ResultStalemate     ResultKind = "stalemate"
	ResultRepetition    ResultKind = "draw-by-repetition"
	ResultInsufficient  ResultKind = "draw-by-insufficient-material"
	ResultFiftyMoveRule ResultKind = "draw-by-fifty-move-rule"
	ResultResignation   ResultKind = "resignation"
)

// Result is the final outcome of a finished session. Winner is empty for draws.
type Result struct {
	Kind       ResultKind  `json:"kind"`
	Winner     rules.Color `json:"winner,omitempty"`
	WinnerName string      `json:"winner_name,omitempty"`
	Text       string      `json:"text"`
	EndedAt    time.Time   `json:"ended_at"`
}

// ResultKindFor maps a terminal classification to a result kind.
func ResultKindFor(c rules.Classification) (ResultKind, bool) {
	switch c.Kind {
	case rules.Checkmate:
		return ResultCheckmate, true
	case rules.Stalemate:
		return ResultStalemate, true
	case rules.DrawByRepetition:
		return ResultRepetition, true
	case rules.DrawByInsufficientMaterial:
		return ResultInsufficient, true
	case rules.DrawByFiftyMoveRule:
		return ResultFiftyMoveRule, true
	}
	return "", false
}
