package ledger

import (
	"slices"

	"github.com/snake-arena/internal/domain"
)

// SortRecords orders records by score descending. The sort is stable, so
// callers pass records in insertion order to get insertion-order tie breaks.
func SortRecords(records []domain.ScoreRecord) {
	slices.SortStableFunc(records, func(a, b domain.ScoreRecord) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
}
