// Package memory provides in-process implementations of the storage
// interfaces. They are used for development, demos and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
	"github.com/snake-arena/internal/lock"
)

// ScoreLedger keeps score records in insertion order behind a RWMutex.
// Per-key serialization for submissions comes from a lock.KeyLock.
type ScoreLedger struct {
	mu      sync.RWMutex
	records []domain.ScoreRecord
	keys    *lock.KeyLock
	now     func() time.Time

	lockTimeout time.Duration
}

var (
	_ ledger.Store     = (*ScoreLedger)(nil)
	_ ledger.TopLister = (*ScoreLedger)(nil)
)

// NewScoreLedger creates an empty in-memory ledger
func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{
		keys: lock.NewKeyLock(),
		now:  time.Now,
	}
}

// SetLockTimeout bounds how long WithinKey waits for a busy key.
// Zero waits until the context ends.
func (l *ScoreLedger) SetLockTimeout(d time.Duration) {
	l.lockTimeout = d
}

// FindBest returns the user's highest score in mode
func (l *ScoreLedger) FindBest(ctx context.Context, username string, mode domain.GameMode) (int64, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var best int64
	found := false
	for _, r := range l.records {
		if r.Username != username || r.Mode != mode {
			continue
		}
		if !found || r.Score > best {
			best = r.Score
			found = true
		}
	}
	return best, found, nil
}

// CountHigher counts records in mode scoring strictly above score
func (l *ScoreLedger) CountHigher(ctx context.Context, mode domain.GameMode, score int64) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var count int64
	for _, r := range l.records {
		if r.Mode == mode && r.Score > score {
			count++
		}
	}
	return count, nil
}

// Insert appends a record
func (l *ScoreLedger) Insert(ctx context.Context, username string, score int64, mode domain.GameMode, date time.Time) (string, error) {
	record := domain.ScoreRecord{
		ID:        uuid.NewString(),
		Username:  username,
		Score:     score,
		Mode:      mode,
		Date:      ledger.Today(date),
		CreatedAt: l.now(),
	}

	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()

	return record.ID, nil
}

// List returns a sorted copy of the records, optionally filtered by mode
func (l *ScoreLedger) List(ctx context.Context, mode *domain.GameMode) ([]domain.ScoreRecord, error) {
	l.mu.RLock()
	out := make([]domain.ScoreRecord, 0, len(l.records))
	for _, r := range l.records {
		if mode != nil && r.Mode != *mode {
			continue
		}
		out = append(out, r)
	}
	l.mu.RUnlock()

	ledger.SortRecords(out)
	return out, nil
}

// Top returns the first n records of mode
func (l *ScoreLedger) Top(ctx context.Context, mode domain.GameMode, n int) ([]domain.ScoreRecord, error) {
	records, err := l.List(ctx, &mode)
	if err != nil {
		return nil, err
	}
	if len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// WithinKey runs fn while holding the (username, mode) lock. A wait that
// outlasts the lock timeout or ctx yields domain.ErrLockTimeout.
func (l *ScoreLedger) WithinKey(ctx context.Context, username string, mode domain.GameMode, fn func(ledger.Ledger) error) error {
	acquired := false
	err := l.keys.WithLockContext(ctx, ledger.Key(username, mode), l.lockTimeout, func() error {
		acquired = true
		return fn(l)
	})
	if err != nil && !acquired {
		return fmt.Errorf("%w: %w", domain.ErrLockTimeout, err)
	}
	return err
}

// Len returns the number of stored records
func (l *ScoreLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
