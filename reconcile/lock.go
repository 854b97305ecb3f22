package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker provides cross-process single-flight for ticks. Acquire reports
// ok=false when another process holds the lock; release must be called
// once the tick finishes.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token, so a
// lock that expired and was taken by another process is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker is a SET NX PX lock with a random token per acquisition.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker builds a lock on key. ttl should be a little shorter than
// the tick interval so a crashed holder never blocks more than one tick.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
