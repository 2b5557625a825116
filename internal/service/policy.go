package service

import (
	"context"
	"fmt"
	"time"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
)

// Decide applies the best-score rule to one candidate score.
//
// The candidate is stored only when the user has no record in mode yet or
// when it is strictly greater than the user's best. Either way the returned
// rank is where the candidate stands among all records of the mode.
//
// Decide must run inside ledger.Store.WithinKey for the same username and mode;
// otherwise two submissions can both read the same stale best.
func Decide(ctx context.Context, l ledger.Ledger, username string, mode domain.GameMode, candidate int64, today time.Time) (domain.Decision, error) {
	previous, found, err := l.FindBest(ctx, username, mode)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("finding best score: %w", err)
	}

	var previousBest *int64
	if found {
		previousBest = &previous
	}

	if found && candidate <= previous {
		rank, err := RankOf(ctx, l, mode, candidate)
		if err != nil {
			return domain.Decision{}, err
		}
		return domain.Decision{
			Accepted:     false,
			Rank:         rank,
			PreviousBest: previousBest,
		}, nil
	}

	id, err := l.Insert(ctx, username, candidate, mode, today)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("inserting score: %w", err)
	}

	rank, err := RankOf(ctx, l, mode, candidate)
	if err != nil {
		return domain.Decision{}, err
	}

	return domain.Decision{
		Accepted:     true,
		Rank:         rank,
		PreviousBest: previousBest,
		RecordID:     id,
	}, nil
}
