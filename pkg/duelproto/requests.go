package duelproto

type CreateGame struct {
	SeatName string `json:"seatName"`
}

type JoinGame struct {
	SessionID string `json:"sessionId"`
	SeatName  string `json:"seatName"`
}

type Reconnect struct {
	SessionID string `json:"sessionId"`
	SeatToken string `json:"seatToken"`
}

type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type MakeMove struct {
	SessionID string `json:"sessionId"`
	Move      Move   `json:"move"`
}

// SessionRef is the payload of resetGame, resign and leaveGame.
type SessionRef struct {
	SessionID string `json:"sessionId"`
}

type SendMessage struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}
