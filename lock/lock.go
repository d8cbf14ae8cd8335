/*
Package lock keeps two return delay checks from running at the same time.

PURPOSE:
  The cron wrapper already skips a tick while the previous one runs in the
  same process. When several server instances share one database, the
  Redis lock extends that guarantee across processes.

IMPLEMENTATIONS:
  Local: in-process mutex, used when no Redis address is configured
  Redis: SET NX PX with a random token; release deletes only our token

SEE ALSO:
  - api/scheduler.go: Acquires the lock around every run
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock held by another run")

// Locker acquires a named run lock.
type Locker interface {
	// Acquire returns a release func, or ErrNotAcquired if the lock is taken.
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// =============================================================================
// LOCAL
// =============================================================================

// Local is an in-process Locker.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Acquire(_ context.Context) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, ErrNotAcquired
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}

// =============================================================================
// REDIS
// =============================================================================

// releaseScript deletes the key only if it still holds our token, so a run
// that outlived its TTL cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *log.Logger
}

// NewRedis creates a lock on key. ttl bounds how long a crashed holder
// blocks the next run; keep it below the schedule interval.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl, logger: log.Default()}
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: 0})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *Redis) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Int()
		if err != nil {
			return fmt.Errorf("release %s: %w", r.key, err)
		}
		if n == 0 {
			r.logger.Printf("[Lock] %s expired before release", r.key)
		}
		return nil
	}, nil
}
