package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
)

// lock_not_available, raised when lock_timeout expires
const codeLockNotAvailable = "55P03"

// ScoreLedger is a ledger.Store backed by the scores table.
// WithinKey runs in a transaction holding a transaction-scoped advisory lock
// derived from the (username, mode) key.
type ScoreLedger struct {
	scoreQueries
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	logger      *slog.Logger
}

var (
	_ ledger.Store     = (*ScoreLedger)(nil)
	_ ledger.TopLister = (*ScoreLedger)(nil)
)

// NewScoreLedger creates a ledger on the repository's pool.
// A zero lockTimeout waits for the key lock until ctx is done.
func NewScoreLedger(repo *Repository, lockTimeout time.Duration, logger *slog.Logger) *ScoreLedger {
	return &ScoreLedger{
		scoreQueries: scoreQueries{q: repo.pool},
		pool:         repo.pool,
		lockTimeout:  lockTimeout,
		logger:       logger,
	}
}

// WithinKey runs fn inside a transaction that holds the key's advisory lock.
// The lock is released on commit or rollback.
func (l *ScoreLedger) WithinKey(ctx context.Context, username string, mode domain.GameMode, fn func(ledger.Ledger) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if l.lockTimeout > 0 {
		timeout := strconv.FormatInt(l.lockTimeout.Milliseconds(), 10) + "ms"
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return unavailable("setting lock timeout", err)
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, ledger.Key(username, mode)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
			return fmt.Errorf("%w: %s/%s", domain.ErrLockTimeout, mode, username)
		}
		return unavailable("acquiring key lock", err)
	}

	if err := fn(scoreQueries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("committing transaction", err)
	}
	return nil
}

// scoreQueries implements ledger.Ledger on any querier
type scoreQueries struct {
	q querier
}

func (s scoreQueries) FindBest(ctx context.Context, username string, mode domain.GameMode) (int64, bool, error) {
	var best *int64
	err := s.q.QueryRow(ctx,
		`SELECT MAX(score) FROM scores WHERE username = $1 AND mode = $2`,
		username, string(mode),
	).Scan(&best)
	if err != nil {
		return 0, false, unavailable("finding best score", err)
	}
	if best == nil {
		return 0, false, nil
	}
	return *best, true, nil
}

func (s scoreQueries) CountHigher(ctx context.Context, mode domain.GameMode, score int64) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM scores WHERE mode = $1 AND score > $2`,
		string(mode), score,
	).Scan(&count)
	if err != nil {
		return 0, unavailable("counting higher scores", err)
	}
	return count, nil
}

func (s scoreQueries) Insert(ctx context.Context, username string, score int64, mode domain.GameMode, date time.Time) (string, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO scores (username, score, mode, date) VALUES ($1, $2, $3, $4) RETURNING id`,
		username, score, string(mode), ledger.Today(date),
	).Scan(&id)
	if err != nil {
		return "", unavailable("inserting score", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// List orders by score then id; ids are assigned in insertion order.
func (s scoreQueries) List(ctx context.Context, mode *domain.GameMode) ([]domain.ScoreRecord, error) {
	query := `SELECT id, username, score, mode, date, created_at FROM scores`
	var args []any
	if mode != nil {
		query += ` WHERE mode = $1`
		args = append(args, string(*mode))
	}
	query += ` ORDER BY score DESC, id ASC`

	return s.queryRecords(ctx, query, args...)
}

// Top returns the first n records of mode using the (mode, score DESC) index
func (s scoreQueries) Top(ctx context.Context, mode domain.GameMode, n int) ([]domain.ScoreRecord, error) {
	return s.queryRecords(ctx,
		`SELECT id, username, score, mode, date, created_at FROM scores
		WHERE mode = $1 ORDER BY score DESC, id ASC LIMIT $2`,
		string(mode), n,
	)
}

func (s scoreQueries) queryRecords(ctx context.Context, query string, args ...any) ([]domain.ScoreRecord, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("listing scores", err)
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		var (
			id      int64
			rec     domain.ScoreRecord
			modeStr string
		)
		if err := rows.Scan(&id, &rec.Username, &rec.Score, &modeStr, &rec.Date, &rec.CreatedAt); err != nil {
			return nil, unavailable("scanning score", err)
		}
		rec.ID = strconv.FormatInt(id, 10)
		rec.Mode = domain.GameMode(modeStr)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating scores", err)
	}
	return records, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
}
