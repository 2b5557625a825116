package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
	"github.com/snake-arena/internal/service"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestRedis starts a Redis container and returns a connected client.
// Skips the test if Docker is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() {
		_ = client.Close()
	})
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(client *redis.Client, wait time.Duration) *ScoreLedger {
	return NewScoreLedger(client, "test", NewLocker(client, 5*time.Second, wait), testLogger())
}

func TestScoreLedger(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	l := newTestLedger(client, time.Second)
	day := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	_, found, err := l.FindBest(ctx, "alice", domain.GameModeWalls)
	require.NoError(t, err)
	assert.False(t, found)

	firstID, err := l.Insert(ctx, "alice", 100, domain.GameModeWalls, day)
	require.NoError(t, err)
	_, err = l.Insert(ctx, "alice", 150, domain.GameModeWalls, day)
	require.NoError(t, err)
	_, err = l.Insert(ctx, "bob", 150, domain.GameModeWalls, day)
	require.NoError(t, err)
	_, err = l.Insert(ctx, "bob", 900, domain.GameModePassThrough, day)
	require.NoError(t, err)

	best, found, err := l.FindBest(ctx, "alice", domain.GameModeWalls)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(150), best)

	_, found, err = l.FindBest(ctx, "alice", domain.GameModePassThrough)
	require.NoError(t, err)
	assert.False(t, found)

	higher, err := l.CountHigher(ctx, domain.GameModeWalls, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), higher)

	higher, err = l.CountHigher(ctx, domain.GameModeWalls, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(0), higher)

	mode := domain.GameModeWalls
	records, err := l.List(ctx, &mode)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "alice", records[0].Username, "equal scores keep insertion order")
	assert.Equal(t, "bob", records[1].Username)
	assert.Equal(t, firstID, records[2].ID)
	assert.Equal(t, "2024-01-15", records[2].Date.Format(domain.DateLayout))

	all, err := l.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, domain.GameModePassThrough, all[0].Mode)
}

func TestScoreLedgerTop(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	l := newTestLedger(client, time.Second)
	day := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	// ids 1..8; the tie below is between ids "9" and "10", which sort the
	// other way round as strings
	for i := range 8 {
		_, err := l.Insert(ctx, fmt.Sprintf("filler%d", i), 1, domain.GameModeWalls, day)
		require.NoError(t, err)
	}
	for _, sub := range []struct {
		user  string
		score int64
	}{{"early", 50}, {"late", 50}, {"top", 80}} {
		_, err := l.Insert(ctx, sub.user, sub.score, domain.GameModeWalls, day)
		require.NoError(t, err)
	}

	top, err := l.Top(ctx, domain.GameModeWalls, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "early"}, usernames(top))

	all, err := l.Top(ctx, domain.GameModeWalls, 100)
	require.NoError(t, err)
	assert.Len(t, all, 11)

	empty, err := l.Top(ctx, domain.GameModePassThrough, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func usernames(records []domain.ScoreRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Username
	}
	return out
}

func TestBestOnlyMovesUp(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	l := newTestLedger(client, time.Second)

	_, err := l.Insert(ctx, "alice", 200, domain.GameModeWalls, time.Now())
	require.NoError(t, err)
	// a historical lower record never lowers the best
	_, err = l.Insert(ctx, "alice", 50, domain.GameModeWalls, time.Now())
	require.NoError(t, err)

	best, _, err := l.FindBest(ctx, "alice", domain.GameModeWalls)
	require.NoError(t, err)
	assert.Equal(t, int64(200), best)
}

func TestLockerTimeout(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, 5*time.Second, 100*time.Millisecond)

	release, err := locker.Acquire(ctx, "test:lock:a")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "test:lock:a")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	other, err := locker.Acquire(ctx, "test:lock:b")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, "test:lock:a")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLockerReleaseKeepsForeignLock(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, time.Second, time.Second)

	release, err := locker.Acquire(ctx, "test:lock:a")
	require.NoError(t, err)

	// the lock was lost and taken over by another holder
	require.NoError(t, client.Set(ctx, "test:lock:a", "other-token", time.Minute).Err())

	require.NoError(t, release(ctx))
	owner, err := client.Get(ctx, "test:lock:a").Result()
	require.NoError(t, err)
	assert.Equal(t, "other-token", owner)
}

func TestLockerExtendsTTLWhileHeld(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	locker := NewLocker(client, 150*time.Millisecond, 50*time.Millisecond)

	release, err := locker.Acquire(ctx, "test:lock:a")
	require.NoError(t, err)

	// well past the ttl, the holder still owns the key
	time.Sleep(500 * time.Millisecond)
	_, err = locker.Acquire(ctx, "test:lock:a")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "release is idempotent")
	exists, err := client.Exists(ctx, "test:lock:a").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestWithinKeySerializesSubmissions(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	l := newTestLedger(client, 5*time.Second)
	svc := service.NewLeaderboardService(l, testLogger())

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.SubmitScore(ctx, "alice", domain.GameModeWalls, 300)
			if !assert.NoError(t, err) {
				return
			}
			if _, ok := res.(domain.ScoreAccepted); ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	mode := domain.GameModeWalls
	records, err := l.List(ctx, &mode)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWithinKeyPropagatesError(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	l := newTestLedger(client, time.Second)

	err := l.WithinKey(ctx, "alice", domain.GameModeWalls, func(ledger.Ledger) error {
		return domain.ErrInvalidRequest
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	// lock was released
	err = l.WithinKey(ctx, "alice", domain.GameModeWalls, func(ledger.Ledger) error { return nil })
	assert.NoError(t, err)
}

func TestSessionStore(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	sessions := NewSessionStore(client, "test")

	require.NoError(t, sessions.Save(ctx, "tok", "42", time.Minute))
	userID, err := sessions.Lookup(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "42", userID)

	ttl, err := client.TTL(ctx, "test:session:tok").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, sessions.Delete(ctx, "tok"))
	_, err = sessions.Lookup(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
