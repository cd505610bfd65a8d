package duelproto

import "time"

// MoveRecord is a move log entry as seen by clients.
type MoveRecord struct {
	Ply       int    `json:"ply"`
	Seat      string `json:"seat"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	FEN       string `json:"fen"`
}

type Result struct {
	Kind       string `json:"kind"`
	Winner     string `json:"winner,omitempty"`
	WinnerName string `json:"winnerName,omitempty"`
	Text       string `json:"text"`
}

type GameCreated struct {
	SessionID string `json:"sessionId"`
	Seat      string `json:"seat"`
	SeatToken string `json:"seatToken"`
	Position  string `json:"position"`
}

type GameJoined struct {
	SessionID       string       `json:"sessionId"`
	Seat            string       `json:"seat"`
	SeatToken       string       `json:"seatToken"`
	OpponentName    string       `json:"opponentName"`
	CurrentPosition string       `json:"currentPosition"`
	Moves           []MoveRecord `json:"moves"`
	Turn            string       `json:"turn"`
	Status          string       `json:"status"`
}

type OpponentJoined struct {
	OpponentName    string `json:"opponentName"`
	CurrentPosition string `json:"currentPosition"`
}

type GameResumed struct {
	SessionID       string        `json:"sessionId"`
	Seat            string        `json:"seat"`
	OpponentName    string        `json:"opponentName,omitempty"`
	OpponentOnline  bool          `json:"opponentOnline"`
	CurrentPosition string        `json:"currentPosition"`
	Moves           []MoveRecord  `json:"moves"`
	Turn            string        `json:"turn"`
	Status          string        `json:"status"`
	Result          *Result       `json:"result,omitempty"`
	Chat            []ChatMessage `json:"chat"`
}

type OpponentReconnected struct {
	OpponentName string `json:"opponentName"`
}

type GameMove struct {
	NewPosition string     `json:"newPosition"`
	Move        MoveRecord `json:"move"`
	Turn        string     `json:"turn"`
	Ply         int        `json:"ply"`
	Check       bool       `json:"check"`
}

type GameOver struct {
	Result Result `json:"result"`
}

type GameReset struct {
	CurrentPosition string `json:"currentPosition"`
	Status          string `json:"status"`
}

type GameAbandoned struct {
	Reason string `json:"reason"`
}

type OpponentDisconnected struct{}

type ChatMessage struct {
	Text           string    `json:"text"`
	Sender         string    `json:"sender"`
	SenderSeat     string    `json:"senderSeat"`
	Timestamp      time.Time `json:"timestamp"`
	SequenceNumber int64     `json:"sequenceNumber"`
}
