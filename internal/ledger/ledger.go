// Package ledger defines the storage capabilities the leaderboard core needs.
//
// Adapters live in the memory, postgres and redis packages. The core logic is
// identical for all of them; blocking and isolation are the adapter's business.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/snake-arena/internal/domain"
)

// Ledger is read/write access to the historical score records
type Ledger interface {
	// FindBest returns the highest score the user has in mode.
	// found is false when the user has no records in that mode.
	FindBest(ctx context.Context, username string, mode domain.GameMode) (best int64, found bool, err error)

	// CountHigher returns how many records in mode have a score strictly greater than score.
	CountHigher(ctx context.Context, mode domain.GameMode, score int64) (int64, error)

	// Insert appends a new immutable record and returns its ID.
	Insert(ctx context.Context, username string, score int64, mode domain.GameMode, date time.Time) (string, error)

	// List returns all records, or only those of *mode when mode is non-nil,
	// ordered by score descending. Equal scores keep insertion order.
	List(ctx context.Context, mode *domain.GameMode) ([]domain.ScoreRecord, error)
}

// Store is a Ledger that can serialize work per (username, mode).
//
// WithinKey runs fn with exclusive access for the key: no other WithinKey call
// for the same username and mode runs concurrently, and the Ledger handed to fn
// sees its own writes. Calls for different keys may run in parallel.
type Store interface {
	Ledger
	WithinKey(ctx context.Context, username string, mode domain.GameMode, fn func(Ledger) error) error
}

// TopLister is implemented by ledgers that can return the head of a mode's
// leaderboard without loading all of it. The order matches List.
type TopLister interface {
	Top(ctx context.Context, mode domain.GameMode, n int) ([]domain.ScoreRecord, error)
}

// Key returns the serialization key for a username and mode
func Key(username string, mode domain.GameMode) string {
	return fmt.Sprintf("%s:%s", mode, username)
}

// Today truncates t to its calendar date in UTC
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
