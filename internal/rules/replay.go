package rules

import (
	"context"
	"fmt"
)

// Replay applies moves in order starting from start and returns the final position.
func Replay(ctx context.Context, o Oracle, start string, moves []Move) (Position, error) {
	pos := NewPosition(start)
	for i, mv := range moves {
		next, err := o.ApplyMove(ctx, pos, mv)
		if err != nil {
			return Position{}, fmt.Errorf("replay ply %d (%s): %w", i+1, mv.UCI(), err)
		}
		pos = next
	}
	return pos, nil
}
