package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/memory"
)

var today = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func decide(t *testing.T, l *memory.ScoreLedger, user string, mode domain.GameMode, score int64) domain.Decision {
	t.Helper()
	d, err := Decide(context.Background(), l, user, mode, score, today)
	require.NoError(t, err)
	return d
}

func TestDecide_FirstScoreAccepted(t *testing.T) {
	l := memory.NewScoreLedger()

	d := decide(t, l, "alice", domain.GameModeWalls, 100)

	assert.True(t, d.Accepted)
	assert.Equal(t, int64(1), d.Rank)
	assert.Nil(t, d.PreviousBest)
	assert.NotEmpty(t, d.RecordID)
	assert.Equal(t, 1, l.Len())
}

func TestDecide_MonotonicAcceptance(t *testing.T) {
	t.Run("increasing", func(t *testing.T) {
		l := memory.NewScoreLedger()
		assert.True(t, decide(t, l, "a", domain.GameModeWalls, 100).Accepted)

		d := decide(t, l, "a", domain.GameModeWalls, 200)
		assert.True(t, d.Accepted)
		require.NotNil(t, d.PreviousBest)
		assert.Equal(t, int64(100), *d.PreviousBest)

		best, _, err := l.FindBest(context.Background(), "a", domain.GameModeWalls)
		require.NoError(t, err)
		assert.Equal(t, int64(200), best)
	})

	t.Run("decreasing", func(t *testing.T) {
		l := memory.NewScoreLedger()
		assert.True(t, decide(t, l, "a", domain.GameModeWalls, 200).Accepted)
		assert.False(t, decide(t, l, "a", domain.GameModeWalls, 100).Accepted)
		assert.Equal(t, 1, l.Len())
	})
}

func TestDecide_EqualScoreRejected(t *testing.T) {
	l := memory.NewScoreLedger()

	first := decide(t, l, "a", domain.GameModeWalls, 150)
	second := decide(t, l, "a", domain.GameModeWalls, 150)

	assert.True(t, first.Accepted)
	assert.False(t, second.Accepted)
	require.NotNil(t, second.PreviousBest)
	assert.Equal(t, int64(150), *second.PreviousBest)
	assert.Equal(t, int64(1), second.Rank)
	assert.Equal(t, 1, l.Len())
}

func TestDecide_ZeroThenZeroRejected(t *testing.T) {
	l := memory.NewScoreLedger()

	assert.True(t, decide(t, l, "a", domain.GameModeWalls, 0).Accepted)
	assert.False(t, decide(t, l, "a", domain.GameModeWalls, 0).Accepted)
}

func TestRankOf_CompetitionRanking(t *testing.T) {
	l := memory.NewScoreLedger()
	ctx := context.Background()
	for i, s := range []int64{250, 200, 150} {
		_, err := l.Insert(ctx, string(rune('a'+i)), s, domain.GameModeWalls, today)
		require.NoError(t, err)
	}

	rank, err := RankOf(ctx, l, domain.GameModeWalls, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	_, err = l.Insert(ctx, "d", 250, domain.GameModeWalls, today)
	require.NoError(t, err)

	rank, err = RankOf(ctx, l, domain.GameModeWalls, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank, "tied scores share the top rank")

	rank, err = RankOf(ctx, l, domain.GameModeWalls, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rank, "next distinct score skips a rank")
}

func TestDecide_PerModeIsolation(t *testing.T) {
	l := memory.NewScoreLedger()

	assert.True(t, decide(t, l, "a", domain.GameModeWalls, 300).Accepted)
	d := decide(t, l, "a", domain.GameModePassThrough, 10)

	assert.True(t, d.Accepted)
	assert.Nil(t, d.PreviousBest)
	assert.Equal(t, int64(1), d.Rank)

	best, _, err := l.FindBest(context.Background(), "a", domain.GameModeWalls)
	require.NoError(t, err)
	assert.Equal(t, int64(300), best)
}

func TestDecide_PerUserIsolation(t *testing.T) {
	l := memory.NewScoreLedger()

	assert.True(t, decide(t, l, "a", domain.GameModeWalls, 300).Accepted)
	assert.True(t, decide(t, l, "b", domain.GameModeWalls, 100).Accepted)
	assert.False(t, decide(t, l, "b", domain.GameModeWalls, 50).Accepted)

	ctx := context.Background()
	bestA, _, err := l.FindBest(ctx, "a", domain.GameModeWalls)
	require.NoError(t, err)
	bestB, _, err := l.FindBest(ctx, "b", domain.GameModeWalls)
	require.NoError(t, err)
	assert.Equal(t, int64(300), bestA)
	assert.Equal(t, int64(100), bestB)
}

func TestDecide_Scenario(t *testing.T) {
	l := memory.NewScoreLedger()

	d := decide(t, l, "A", domain.GameModeWalls, 100)
	assert.True(t, d.Accepted)
	assert.Equal(t, int64(1), d.Rank)
	assert.Nil(t, d.PreviousBest)

	// 50 sits below A's own 100, so it would be second.
	d = decide(t, l, "A", domain.GameModeWalls, 50)
	assert.False(t, d.Accepted)
	assert.Equal(t, int64(2), d.Rank)
	require.NotNil(t, d.PreviousBest)
	assert.Equal(t, int64(100), *d.PreviousBest)

	d = decide(t, l, "B", domain.GameModeWalls, 200)
	assert.True(t, d.Accepted)
	assert.Equal(t, int64(1), d.Rank)

	rankA, err := RankOf(context.Background(), l, domain.GameModeWalls, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rankA)

	walls := domain.GameModeWalls
	records, err := l.List(context.Background(), &walls)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "B", records[0].Username)
	assert.Equal(t, int64(200), records[0].Score)
	assert.Equal(t, "A", records[1].Username)
	assert.Equal(t, int64(100), records[1].Score)
}

// TestDecideBestIsRunningMaxProperty checks that after any sequence of
// submissions the stored best equals the maximum submitted score and only
// strict improvements were persisted.
func TestDecideBestIsRunningMaxProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOfN(rapid.Int64Range(0, 1000), 1, 40).Draw(t, "scores")
		l := memory.NewScoreLedger()
		ctx := context.Background()

		var (
			best     int64 = -1
			accepted int
		)
		for _, s := range scores {
			d, err := Decide(ctx, l, "u", domain.GameModeWalls, s, today)
			if err != nil {
				t.Fatalf("decide: %v", err)
			}
			if d.Accepted != (s > best) {
				t.Fatalf("score %d against best %d: accepted=%v", s, best, d.Accepted)
			}
			if d.Accepted {
				best = s
				accepted++
			}
		}

		got, found, err := l.FindBest(ctx, "u", domain.GameModeWalls)
		if err != nil || !found {
			t.Fatalf("find best: found=%v err=%v", found, err)
		}
		if got != best {
			t.Fatalf("best = %d, want %d", got, best)
		}
		if l.Len() != accepted {
			t.Fatalf("ledger has %d records, want %d", l.Len(), accepted)
		}
	})
}

// TestRankIsOnePlusStrictlyHigherProperty compares RankOf against a direct
// count over random ledgers.
func TestRankIsOnePlusStrictlyHigherProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOfN(rapid.Int64Range(0, 20), 0, 30).Draw(t, "scores")
		query := rapid.Int64Range(0, 25).Draw(t, "query")
		l := memory.NewScoreLedger()
		ctx := context.Background()

		var higher int64
		for i, s := range scores {
			if _, err := l.Insert(ctx, string(rune('a'+i)), s, domain.GameModePassThrough, today); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if s > query {
				higher++
			}
		}
		// noise in another mode must not matter
		if _, err := l.Insert(ctx, "noise", 1000, domain.GameModeWalls, today); err != nil {
			t.Fatalf("insert: %v", err)
		}

		rank, err := RankOf(ctx, l, domain.GameModePassThrough, query)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		if rank != higher+1 {
			t.Fatalf("rank of %d = %d, want %d", query, rank, higher+1)
		}
	})
}
