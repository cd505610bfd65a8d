package chat

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/park285/cheese-duel/pkg/duelproto"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 200
	defaultMaxRunes     = 2000

	// SystemSeat marks messages produced by the server.
	SystemSeat = "system"
)

var (
	ErrEmptyMessage   = errf("message text is empty")
	ErrMessageTooLong = errf("message text is too long")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Recipient receives receiveMessage frames.
type Recipient interface {
	Send(f duelproto.Frame) error
}

type Sender struct {
	Seat string
	Name string
}

// Message is one accepted chat line. Sequence is strictly increasing per session.
type Message struct {
	SessionID string
	Sequence  int64
	Sender    Sender
	Text      string
	SentAt    time.Time
}

func (m Message) Wire() duelproto.ChatMessage {
	return duelproto.ChatMessage{
		Text:           m.Text,
		Sender:         m.Sender.Name,
		SenderSeat:     m.Sender.Seat,
		Timestamp:      m.SentAt,
		SequenceNumber: m.Sequence,
	}
}

type room struct {
	nextSequence int64
	messages     []Message
}

// Relay keeps per-session chat history and fans messages out to recipients.
// Callers serialize posts per session, so a session's sequence also orders it
// against the game events sent under the same lock.
type Relay struct {
	mu           sync.Mutex
	rooms        map[string]*room
	historyLimit int
	maxRunes     int
	systemName   string
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Relay)

func WithHistoryLimit(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

func WithMaxRunes(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxRunes = n
		}
	}
}

// WithSystemName sets the display name used for system notices.
func WithSystemName(name string) Option {
	return func(r *Relay) {
		if strings.TrimSpace(name) != "" {
			r.systemName = strings.TrimSpace(name)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		rooms:        make(map[string]*room),
		historyLimit: defaultHistoryLimit,
		maxRunes:     defaultMaxRunes,
		systemName:   "System",
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Post accepts a participant message and delivers it to every recipient.
func (r *Relay) Post(sessionID string, from Sender, text string, to ...Recipient) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > r.maxRunes {
		return Message{}, ErrMessageTooLong
	}
	return r.deliver(sessionID, from, text, to), nil
}

// Announce posts a system notice through the same sequence as participant messages.
func (r *Relay) Announce(sessionID, text string, to ...Recipient) Message {
	return r.deliver(sessionID, Sender{Seat: SystemSeat, Name: r.systemName}, strings.TrimSpace(text), to)
}

func (r *Relay) deliver(sessionID string, from Sender, text string, to []Recipient) Message {
	msg := r.append(sessionID, from, text)
	frame, err := duelproto.NewFrame(duelproto.EventReceiveMessage, "", msg.Wire())
	if err != nil {
		r.logger.Error("chat_frame_error", zap.String("session_id", sessionID), zap.Error(err))
		return msg
	}
	for _, rc := range to {
		if rc == nil {
			continue
		}
		if err := rc.Send(frame); err != nil {
			r.logger.Warn("chat_deliver_error",
				zap.String("session_id", sessionID),
				zap.Int64("sequence", msg.Sequence),
				zap.Error(err),
			)
		}
	}
	return msg
}

func (r *Relay) append(sessionID string, from Sender, text string) Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		rm = &room{}
		r.rooms[sessionID] = rm
	}
	rm.nextSequence++
	msg := Message{
		SessionID: sessionID,
		Sequence:  rm.nextSequence,
		Sender:    from,
		Text:      text,
		SentAt:    r.now().UTC(),
	}
	rm.messages = append(rm.messages, msg)
	if len(rm.messages) > r.historyLimit {
		rm.messages = rm.messages[len(rm.messages)-r.historyLimit:]
	}
	return msg
}

// History returns the retained messages of a session, oldest first.
func (r *Relay) History(sessionID string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		return nil
	}
	return append([]Message(nil), rm.messages...)
}

// Drop forgets a destroyed session.
func (r *Relay) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.rooms, sessionID)
	r.mu.Unlock()
}
