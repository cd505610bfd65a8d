package duel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/cheese-duel/internal/domain"
	"github.com/park285/cheese-duel/internal/position"
	"github.com/park285/cheese-duel/internal/rules"
	"github.com/park285/cheese-duel/internal/store"
	"go.uber.org/zap"
)

// Restore reloads persisted sessions into the registry. Every snapshot is
// replayed through the oracle and dropped when the replay disagrees with the
// stored position. Restored seats start offline with a fresh grace period.
func (c *Coordinator) Restore(ctx context.Context) (int, error) {
	snaps, err := c.snapshots.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	now := c.now()
	restored := 0
	for _, snap := range snaps {
		s, err := c.rebuild(ctx, snap, now)
		if err != nil {
			c.logger.Warn("duel_restore_skip", zap.String("session_id", snap.ID), zap.Error(err))
			if derr := c.snapshots.Delete(ctx, snap.ID); derr != nil {
				c.logger.Warn("duel_snapshot_delete_error", zap.String("session_id", snap.ID), zap.Error(derr))
			}
			continue
		}
		if c.reg.adopt(s) {
			restored++
		}
	}
	c.logger.Info("duel_restore", zap.Int("snapshots", len(snaps)), zap.Int("restored", restored))
	return restored, nil
}

func (c *Coordinator) rebuild(ctx context.Context, snap *store.Snapshot, now time.Time) (*Session, error) {
	if snap.Status == domain.StatusAbandoned {
		return nil, errors.New("session was abandoned")
	}
	if len(snap.Seats) == 0 {
		return nil, errors.New("snapshot has no seats")
	}
	moves := make([]rules.Move, 0, len(snap.Moves))
	for _, rec := range snap.Moves {
		moves = append(moves, rec.Move())
	}
	rctx, cancel := context.WithTimeout(ctx, c.oracleTimeout*time.Duration(len(moves)+1))
	defer cancel()
	replayed, err := rules.Replay(rctx, c.oracle, snap.Position.Start, moves)
	if err != nil {
		return nil, err
	}
	if !replayed.Equal(snap.Position) {
		return nil, fmt.Errorf("replayed position %q does not match snapshot %q", replayed.FEN, snap.Position.FEN)
	}
	board, err := position.Restore(replayed, snap.Moves)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        snap.ID,
		CreatedAt: snap.CreatedAt,
		status:    snap.Status,
		board:     board,
		version:   snap.Version,
		updatedAt: snap.UpdatedAt,
	}
	if snap.Result != nil {
		r := *snap.Result
		s.result = &r
	}
	for _, sr := range snap.Seats {
		if sr.Side != rules.White && sr.Side != rules.Black {
			return nil, fmt.Errorf("unknown seat side %q", sr.Side)
		}
		s.seats[seatIndex(sr.Side)] = &seat{side: sr.Side, name: sr.Name, token: sr.Token, leftAt: now}
	}
	if s.seats[0] == nil {
		return nil, errors.New("snapshot has no first seat")
	}
	return s, nil
}
