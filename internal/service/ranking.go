package service

import (
	"context"
	"fmt"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
)

// RankOf returns the 1-based competition rank of score in mode: one plus the
// number of records scoring strictly higher. Equal scores share a rank and
// the next lower score skips ahead (250, 250, 200 rank 1, 1, 3).
func RankOf(ctx context.Context, l ledger.Ledger, mode domain.GameMode, score int64) (int64, error) {
	higher, err := l.CountHigher(ctx, mode, score)
	if err != nil {
		return 0, fmt.Errorf("counting higher scores: %w", err)
	}
	return higher + 1, nil
}
