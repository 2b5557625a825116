package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
	"github.com/snake-arena/internal/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store ledger.Store) *LeaderboardService {
	svc := NewLeaderboardService(store, testLogger())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 17, 45, 0, 0, time.UTC) }
	return svc
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []domain.ScoreRecord
	ranks   []int64
}

func (n *recordingNotifier) NotifyScoreAccepted(record domain.ScoreRecord, rank int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, record)
	n.ranks = append(n.ranks, rank)
}

// slowStore widens the window between reading the best score and inserting,
// so missing serialization would show up as duplicate accepts.
type slowStore struct {
	*memory.ScoreLedger
}

func (s slowStore) FindBest(ctx context.Context, username string, mode domain.GameMode) (int64, bool, error) {
	time.Sleep(200 * time.Microsecond)
	return s.ScoreLedger.FindBest(ctx, username, mode)
}

func (s slowStore) WithinKey(ctx context.Context, username string, mode domain.GameMode, fn func(ledger.Ledger) error) error {
	return s.ScoreLedger.WithinKey(ctx, username, mode, func(ledger.Ledger) error {
		return fn(s)
	})
}

// failingStore simulates an unreachable database
type failingStore struct{}

var errDown = fmt.Errorf("dial tcp 127.0.0.1:5432: %w", domain.ErrStorageUnavailable)

func (failingStore) FindBest(context.Context, string, domain.GameMode) (int64, bool, error) {
	return 0, false, errDown
}
func (failingStore) CountHigher(context.Context, domain.GameMode, int64) (int64, error) {
	return 0, errDown
}
func (failingStore) Insert(context.Context, string, int64, domain.GameMode, time.Time) (string, error) {
	return "", errDown
}
func (failingStore) List(context.Context, *domain.GameMode) ([]domain.ScoreRecord, error) {
	return nil, errDown
}
func (f failingStore) WithinKey(ctx context.Context, _ string, _ domain.GameMode, fn func(ledger.Ledger) error) error {
	return fn(f)
}

func TestLeaderboardService_SubmitScore(t *testing.T) {
	svc := newTestService(memory.NewScoreLedger())
	ctx := context.Background()

	result, err := svc.SubmitScore(ctx, "alice", domain.GameModeWalls, 100)
	require.NoError(t, err)
	accepted, ok := result.(domain.ScoreAccepted)
	require.True(t, ok, "expected ScoreAccepted, got %T", result)
	assert.Equal(t, int64(1), accepted.Rank)
	assert.Nil(t, accepted.PreviousBest)
	assert.Equal(t, "alice", accepted.Record.Username)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), accepted.Record.Date)

	result, err = svc.SubmitScore(ctx, "alice", domain.GameModeWalls, 50)
	require.NoError(t, err)
	rejected, ok := result.(domain.ScoreRejected)
	require.True(t, ok, "expected ScoreRejected, got %T", result)
	assert.Equal(t, int64(100), rejected.PreviousBest)
	assert.Contains(t, rejected.Message(), "best score is 100")

	result, err = svc.SubmitScore(ctx, "alice", domain.GameModeWalls, 200)
	require.NoError(t, err)
	accepted, ok = result.(domain.ScoreAccepted)
	require.True(t, ok)
	require.NotNil(t, accepted.PreviousBest)
	assert.Equal(t, int64(100), *accepted.PreviousBest)

	best, found, err := svc.GetUserBestScore(ctx, "alice", domain.GameModeWalls)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(200), best)

	walls := domain.GameModeWalls
	records, err := svc.GetLeaderboard(ctx, &walls)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(200), records[0].Score)
	assert.Equal(t, int64(100), records[1].Score)
}

func TestLeaderboardService_SubmitScoreValidation(t *testing.T) {
	svc := newTestService(memory.NewScoreLedger())
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, "alice", domain.GameModeWalls, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidScore)

	_, err = svc.SubmitScore(ctx, "alice", domain.GameMode("invalid-mode"), 10)
	assert.ErrorIs(t, err, domain.ErrInvalidMode)

	_, err = svc.SubmitScore(ctx, "", domain.GameModeWalls, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	bad := domain.GameMode("x")
	_, err = svc.GetLeaderboard(ctx, &bad)
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestLeaderboardService_StorageUnavailable(t *testing.T) {
	svc := newTestService(failingStore{})
	ctx := context.Background()

	result, err := svc.SubmitScore(ctx, "alice", domain.GameModeWalls, 10)
	assert.Nil(t, result, "no accept or reject when the ledger is down")
	assert.True(t, domain.IsUnavailable(err))

	_, err = svc.GetLeaderboard(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, _, err = svc.GetUserBestScore(ctx, "alice", domain.GameModeWalls)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = svc.RankOf(ctx, domain.GameModeWalls, 1)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestLeaderboardService_Notifier(t *testing.T) {
	svc := newTestService(memory.NewScoreLedger())
	n := &recordingNotifier{}
	svc.SetNotifier(n)
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, "a", domain.GameModeWalls, 10)
	require.NoError(t, err)
	_, err = svc.SubmitScore(ctx, "a", domain.GameModeWalls, 5)
	require.NoError(t, err)
	_, err = svc.SubmitScore(ctx, "b", domain.GameModeWalls, 20)
	require.NoError(t, err)

	require.Len(t, n.records, 2, "rejected scores are not announced")
	assert.Equal(t, "a", n.records[0].Username)
	assert.Equal(t, "b", n.records[1].Username)
	assert.Equal(t, []int64{1, 1}, n.ranks)
}

func TestLeaderboardService_RankOfAndTopN(t *testing.T) {
	svc := newTestService(memory.NewScoreLedger())
	ctx := context.Background()

	for i, s := range []int64{250, 200, 150, 100} {
		_, err := svc.SubmitScore(ctx, fmt.Sprintf("p%d", i), domain.GameModeWalls, s)
		require.NoError(t, err)
	}

	info, err := svc.RankOf(ctx, domain.GameModeWalls, 175)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Rank)

	_, err = svc.RankOf(ctx, domain.GameModeWalls, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidScore)

	top, err := svc.GetTopN(ctx, domain.GameModeWalls, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(250), top[0].Score)
	assert.Equal(t, int64(200), top[1].Score)

	empty, err := svc.GetTopN(ctx, domain.GameModePassThrough, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// listOnlyStore hides the memory ledger's Top method
type listOnlyStore struct {
	ledger.Store
}

// countingTopStore records how often the limit-aware path is used
type countingTopStore struct {
	*memory.ScoreLedger
	topCalls int
}

func (s *countingTopStore) Top(ctx context.Context, mode domain.GameMode, n int) ([]domain.ScoreRecord, error) {
	s.topCalls++
	return s.ScoreLedger.Top(ctx, mode, n)
}

func TestLeaderboardService_GetTopNUsesTopLister(t *testing.T) {
	ctx := context.Background()
	store := &countingTopStore{ScoreLedger: memory.NewScoreLedger()}
	fallback := listOnlyStore{memory.NewScoreLedger()}

	for _, svc := range []*LeaderboardService{newTestService(store), newTestService(fallback)} {
		for _, sub := range []struct {
			user  string
			score int64
		}{{"a", 200}, {"b", 250}, {"c", 200}, {"d", 100}} {
			_, err := svc.SubmitScore(ctx, sub.user, domain.GameModeWalls, sub.score)
			require.NoError(t, err)
		}

		top, err := svc.GetTopN(ctx, domain.GameModeWalls, 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "b", top[0].Username)
		assert.Equal(t, "a", top[1].Username, "ties at the cut keep insertion order")

		_, err = svc.GetTopN(ctx, domain.GameMode("maze"), 2)
		assert.ErrorIs(t, err, domain.ErrInvalidMode)
	}
	assert.Equal(t, 1, store.topCalls)
}

func TestLeaderboardService_AcceptedRecordCreatedAt(t *testing.T) {
	svc := newTestService(memory.NewScoreLedger())
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	result, err := svc.SubmitScore(context.Background(), "alice", domain.GameModeWalls, 120)
	require.NoError(t, err)

	accepted, ok := result.(domain.ScoreAccepted)
	require.True(t, ok)
	want := time.Date(2024, 3, 1, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, want, accepted.Record.CreatedAt)
	require.Len(t, notifier.records, 1)
	assert.Equal(t, want, notifier.records[0].CreatedAt)
}

func TestLeaderboardService_ConcurrentSubmissions(t *testing.T) {
	store := slowStore{memory.NewScoreLedger()}
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.SubmitScore(ctx, "alice", domain.GameModeWalls, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]domain.SubmitResult, 2)
	for i, score := range []int64{150, 200} {
		wg.Add(1)
		go func(i int, score int64) {
			defer wg.Done()
			r, err := svc.SubmitScore(ctx, "alice", domain.GameModeWalls, score)
			assert.NoError(t, err)
			results[i] = r
		}(i, score)
	}
	wg.Wait()

	best, _, err := svc.GetUserBestScore(ctx, "alice", domain.GameModeWalls)
	require.NoError(t, err)
	assert.Equal(t, int64(200), best)

	// 200 is always accepted; 150 only if it ran first.
	_, ok := results[1].(domain.ScoreAccepted)
	assert.True(t, ok)
	if acc, ok := results[0].(domain.ScoreAccepted); ok {
		require.NotNil(t, acc.PreviousBest)
		assert.Equal(t, int64(100), *acc.PreviousBest)
	}
}

// TestConcurrentSubmissionsNeverDoubleAcceptProperty fires identical and
// near-identical scores concurrently for one user and mode. With per-key
// serialization every stored score is unique and the accepted count matches
// the stored count.
func TestConcurrentSubmissionsNeverDoubleAcceptProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOfN(rapid.Int64Range(0, 8), 2, 16).Draw(t, "scores")
		store := slowStore{memory.NewScoreLedger()}
		svc := newTestService(store)
		ctx := context.Background()

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for _, s := range scores {
			wg.Add(1)
			go func(s int64) {
				defer wg.Done()
				r, err := svc.SubmitScore(ctx, "racer", domain.GameModeWalls, s)
				if err != nil {
					return
				}
				if _, ok := r.(domain.ScoreAccepted); ok {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}(s)
		}
		wg.Wait()

		walls := domain.GameModeWalls
		records, err := svc.GetLeaderboard(ctx, &walls)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(records) != accepted {
			t.Fatalf("stored %d records but accepted %d", len(records), accepted)
		}
		seen := make(map[int64]bool)
		var highest int64 = -1
		for _, r := range records {
			if seen[r.Score] {
				t.Fatalf("score %d stored twice", r.Score)
			}
			seen[r.Score] = true
		}
		for _, s := range scores {
			if s > highest {
				highest = s
			}
		}
		if records[0].Score != highest {
			t.Fatalf("best stored %d, want %d", records[0].Score, highest)
		}
	})
}

func TestSpectateService(t *testing.T) {
	players := memory.NewActivePlayers(domain.ActivePlayer{ID: "ap1", Username: "LivePlayer1", Mode: domain.GameModeWalls})
	svc := NewSpectateService(players, testLogger())
	ctx := context.Background()

	list, err := svc.ActivePlayers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	p, err := svc.Player(ctx, "ap1")
	require.NoError(t, err)
	assert.Equal(t, "LivePlayer1", p.Username)

	_, err = svc.Player(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	_, err = svc.Player(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
