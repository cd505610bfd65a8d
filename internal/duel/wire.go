package duel

import (
	"github.com/park285/cheese-duel/internal/chat"
	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/pkg/duelproto"
)

func wireMove(rec domain.MoveRecord) duelproto.MoveRecord {
	return duelproto.MoveRecord{
		Ply:       rec.Ply,
		Seat:      string(rec.Seat),
		From:      rec.From,
		To:        rec.To,
		Promotion: rec.Promotion,
		SAN:       rec.SAN,
		FEN:       rec.FEN,
	}
}

func wireMoves(log []domain.MoveRecord) []duelproto.MoveRecord {
	out := make([]duelproto.MoveRecord, 0, len(log))
	for _, rec := range log {
		out = append(out, wireMove(rec))
	}
	return out
}

func wireResult(r *domain.Result) *duelproto.Result {
	if r == nil {
		return nil
	}
	return &duelproto.Result{
		Kind:       string(r.Kind),
		Winner:     string(r.Winner),
		WinnerName: r.WinnerName,
		Text:       r.Text,
	}
}

func wireChat(msgs []chat.Message) []duelproto.ChatMessage {
	out := make([]duelproto.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Wire())
	}
	return out
}

// SeatSummary describes one occupied seat.
type SeatSummary struct {
	Side   rules.Color `json:"side"`
	Name   string      `json:"name"`
	Online bool        `json:"online"`
}

// Summary is a read-only view of a session served by GET /sessions/{id}.
// Seat tokens are never part of it.
type Summary struct {
	ID     string              `json:"id"`
	Status domain.Status       `json:"status"`
	FEN    string              `json:"fen"`
	Turn   rules.Color         `json:"turn"`
	Ply    int                 `json:"ply"`
	Moves  []domain.MoveRecord `json:"moves"`
	Result *domain.Result      `json:"result,omitempty"`
	Seats  []SeatSummary       `json:"seats"`
}

// Summary returns a consistent view of one session.
func (c *Coordinator) Summary(id string) (Summary, error) {
	s, err := c.reg.Lookup(id)
	if err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.board.Current()
	out := Summary{
		ID:     s.ID,
		Status: s.status,
		FEN:    pos.FEN,
		Turn:   pos.Turn,
		Ply:    pos.Ply(),
		Moves:  s.board.Log(),
	}
	if s.result != nil {
		r := *s.result
		out.Result = &r
	}
	for _, st := range s.seats {
		if st != nil {
			out.Seats = append(out.Seats, SeatSummary{Side: st.side, Name: st.name, Online: st.online()})
		}
	}
	return out, nil
}
