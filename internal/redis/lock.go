package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/snake-arena/internal/domain"
)

const lockRetryInterval = 20 * time.Millisecond

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if it still holds our token
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a single-instance distributed mutex built on SET NX PX.
// While held, the lock's ttl is extended every ttl/3, so ttl only bounds how
// long a crashed holder blocks the key.
type Locker struct {
	client redis.Cmdable
	ttl    time.Duration
	wait   time.Duration
}

// NewLocker creates a locker. Acquire gives up after wait.
func NewLocker(client redis.Cmdable, ttl, wait time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl, wait: wait}
}

// Acquire blocks until key is locked, wait elapses or ctx is done.
// The returned function releases the lock.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrLockTimeout, ctxErr)
			}
			return nil, unavailable("acquiring lock", err)
		}
		if ok {
			stop := make(chan struct{})
			stopped := make(chan struct{})
			go l.keepAlive(context.WithoutCancel(ctx), key, token, stop, stopped)

			var once sync.Once
			return func(ctx context.Context) error {
				once.Do(func() {
					close(stop)
					<-stopped
				})
				return l.release(ctx, key, token)
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// keepAlive extends the lock until stop is closed or the lock is lost
func (l *Locker) keepAlive(ctx context.Context, key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
			if err == nil && held == 0 {
				return
			}
		}
	}
}

func (l *Locker) release(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable("releasing lock", err)
	}
	return nil
}
