package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
)

// insertScript appends a record and maintains the per-mode indexes atomically.
//
// KEYS: sequence, mode sorted set, mode records hash, mode best-score hash
// ARGV: username, score, encoded record
var insertScript = redis.NewScript(`
local id = redis.call("INCR", KEYS[1])
redis.call("HSET", KEYS[3], id, ARGV[3])
redis.call("ZADD", KEYS[2], ARGV[2], id)
local best = redis.call("HGET", KEYS[4], ARGV[1])
if not best or tonumber(ARGV[2]) > tonumber(best) then
	redis.call("HSET", KEYS[4], ARGV[1], ARGV[2])
end
return id
`)

// storedRecord is the hash value of one score record; the ID is the hash field
type storedRecord struct {
	Username  string    `json:"username"`
	Score     int64     `json:"score"`
	Mode      string    `json:"mode"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoreLedger is a ledger.Store on Redis.
//
// Each mode has a sorted set of record IDs scored by points (used for
// counting), a hash of encoded records and a hash of per-user best scores.
// Scores must stay within float64 integer precision (2^53).
type ScoreLedger struct {
	client redis.Cmdable
	prefix string
	locker *Locker
	now    func() time.Time
	logger *slog.Logger
}

var (
	_ ledger.Store     = (*ScoreLedger)(nil)
	_ ledger.TopLister = (*ScoreLedger)(nil)
)

// NewScoreLedger creates a ledger under prefix. WithinKey takes a distributed
// lock through locker.
func NewScoreLedger(client redis.Cmdable, prefix string, locker *Locker, logger *slog.Logger) *ScoreLedger {
	return &ScoreLedger{
		client: client,
		prefix: prefix,
		locker: locker,
		now:    time.Now,
		logger: logger,
	}
}

func (l *ScoreLedger) seqKey() string {
	return fmt.Sprintf("%s:scores:seq", l.prefix)
}

func (l *ScoreLedger) scoresKey(mode domain.GameMode) string {
	return fmt.Sprintf("%s:mode:%s:scores", l.prefix, mode)
}

func (l *ScoreLedger) recordsKey(mode domain.GameMode) string {
	return fmt.Sprintf("%s:mode:%s:records", l.prefix, mode)
}

func (l *ScoreLedger) bestKey(mode domain.GameMode) string {
	return fmt.Sprintf("%s:mode:%s:best", l.prefix, mode)
}

func (l *ScoreLedger) lockKey(username string, mode domain.GameMode) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, ledger.Key(username, mode))
}

// FindBest reads the user's best from the mode's best-score hash
func (l *ScoreLedger) FindBest(ctx context.Context, username string, mode domain.GameMode) (int64, bool, error) {
	best, err := l.client.HGet(ctx, l.bestKey(mode), username).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("finding best score", err)
	}
	return best, true, nil
}

// CountHigher counts sorted-set members with a score strictly above score
func (l *ScoreLedger) CountHigher(ctx context.Context, mode domain.GameMode, score int64) (int64, error) {
	count, err := l.client.ZCount(ctx, l.scoresKey(mode), "("+strconv.FormatInt(score, 10), "+inf").Result()
	if err != nil {
		return 0, unavailable("counting higher scores", err)
	}
	return count, nil
}

// Insert stores a record and updates the mode indexes in one script call
func (l *ScoreLedger) Insert(ctx context.Context, username string, score int64, mode domain.GameMode, date time.Time) (string, error) {
	payload, err := json.Marshal(storedRecord{
		Username:  username,
		Score:     score,
		Mode:      string(mode),
		Date:      ledger.Today(date).Format(domain.DateLayout),
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}

	keys := []string{l.seqKey(), l.scoresKey(mode), l.recordsKey(mode), l.bestKey(mode)}
	id, err := insertScript.Run(ctx, l.client, keys, username, score, payload).Int64()
	if err != nil {
		return "", unavailable("inserting score", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// seqRecord is a decoded record with the insertion sequence from its ID
type seqRecord struct {
	seq int64
	rec domain.ScoreRecord
}

// List loads the records of one or all modes, sorted by score then insertion
func (l *ScoreLedger) List(ctx context.Context, mode *domain.GameMode) ([]domain.ScoreRecord, error) {
	modes := domain.AllModes
	if mode != nil {
		modes = []domain.GameMode{*mode}
	}

	var all []seqRecord
	for _, m := range modes {
		fields, err := l.client.HGetAll(ctx, l.recordsKey(m)).Result()
		if err != nil {
			return nil, unavailable("listing scores", err)
		}
		for id, raw := range fields {
			all = l.appendDecoded(all, m, id, raw)
		}
	}
	return sortRecords(all), nil
}

// Top reads only the records scoring at least the n-th best score, so ties
// at the cut are ordered by insertion like List.
func (l *ScoreLedger) Top(ctx context.Context, mode domain.GameMode, n int) ([]domain.ScoreRecord, error) {
	head, err := l.client.ZRevRangeWithScores(ctx, l.scoresKey(mode), int64(n-1), int64(n-1)).Result()
	if err != nil {
		return nil, unavailable("reading top scores", err)
	}
	floor := "-inf"
	if len(head) == 1 {
		floor = strconv.FormatFloat(head[0].Score, 'f', -1, 64)
	}

	ids, err := l.client.ZRangeByScore(ctx, l.scoresKey(mode), &redis.ZRangeBy{Min: floor, Max: "+inf"}).Result()
	if err != nil {
		return nil, unavailable("reading top scores", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := l.client.HMGet(ctx, l.recordsKey(mode), ids...).Result()
	if err != nil {
		return nil, unavailable("loading top records", err)
	}

	all := make([]seqRecord, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		all = l.appendDecoded(all, mode, ids[i], raw)
	}

	records := sortRecords(all)
	if len(records) > n {
		records = records[:n]
	}
	return records, nil
}

func (l *ScoreLedger) appendDecoded(all []seqRecord, mode domain.GameMode, id, raw string) []seqRecord {
	rec, err := decodeRecord(id, raw)
	if err != nil {
		l.logger.Warn("skipping undecodable score record",
			"mode", mode, "id", id, "error", err)
		return all
	}
	seq, _ := strconv.ParseInt(id, 10, 64)
	return append(all, seqRecord{seq: seq, rec: rec})
}

// sortRecords orders by insertion sequence, then stable-sorts by score
func sortRecords(all []seqRecord) []domain.ScoreRecord {
	slices.SortFunc(all, func(a, b seqRecord) int {
		return cmp.Compare(a.seq, b.seq)
	})

	records := make([]domain.ScoreRecord, len(all))
	for i, r := range all {
		records[i] = r.rec
	}
	ledger.SortRecords(records)
	return records
}

// WithinKey runs fn while holding the distributed lock for the key
func (l *ScoreLedger) WithinKey(ctx context.Context, username string, mode domain.GameMode, fn func(ledger.Ledger) error) error {
	release, err := l.locker.Acquire(ctx, l.lockKey(username, mode))
	if err != nil {
		return err
	}
	defer func() {
		// release must run even if ctx was cancelled
		if err := release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Error("failed to release score lock",
				"username", username, "mode", mode, "error", err)
		}
	}()

	return fn(l)
}

func decodeRecord(id, raw string) (domain.ScoreRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.ScoreRecord{}, err
	}
	date, err := time.Parse(domain.DateLayout, stored.Date)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	return domain.ScoreRecord{
		ID:        id,
		Username:  stored.Username,
		Score:     stored.Score,
		Mode:      domain.GameMode(stored.Mode),
		Date:      date,
		CreatedAt: stored.CreatedAt,
	}, nil
}
