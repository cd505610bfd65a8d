package store

import (
	"context"
	"time"

	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/rules"
)

// SeatRecord is the persisted part of a seat. Liveness is never persisted.
type SeatRecord struct {
	Side  rules.Color `json:"side"`
	Name  string      `json:"name"`
	Token string      `json:"token"`
}

// Snapshot is the session state mirrored for the lifetime of a session.
// Version increases by one on every save of the same session.
type Snapshot struct {
	ID        string              `json:"id"`
	Version   int64               `json:"version"`
	Status    domain.Status       `json:"status"`
	Seats     []SeatRecord        `json:"seats"`
	Position  rules.Position      `json:"position"`
	Moves     []domain.MoveRecord `json:"moves"`
	Result    *domain.Result      `json:"result,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Store persists snapshots. Load returns (nil, nil) when the session is unknown.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context) ([]*Snapshot, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

var (
	ErrStaleSnapshot = errf("snapshot version is not newer than the stored one")
	ErrInvalidArgs   = errf("invalid arguments")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
