// Package lock provides the pass lock that keeps processing passes from
// overlapping.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker grants exclusive access to a processing pass. TryLock does not
// block: ok is false when another holder has the lock.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu sync.Mutex
}

// NewLocal returns an in-process lock.
func NewLocal() *Local {
	return &Local{}
}

// TryLock acquires the lock if it is free.
func (l *Local) TryLock(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, true, nil
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL only when the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every instance pointed at the same Redis.
// While held, the key's TTL is extended every third of the TTL, so a pass
// may run longer than ttl; ttl only bounds how long a crashed holder keeps
// the lock.
type Redis struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	refresh time.Duration
}

// NewRedis returns a lock stored under key.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{client: client, key: key, ttl: ttl, refresh: ttl / 3}
}

// TryLock sets the key with NX and a random token.
func (r *Redis) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire pass lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// The pass context may already be cancelled. A failed delete
			// is left to the TTL.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{r.key}, token).Err()
		})
	}
	return release, true, nil
}

// keepAlive extends the lock until stop is closed or the token is gone.
// A failed extension is retried on the next tick; if it keeps failing the
// key expires and the conditional processed-flag claim still prevents a
// second dispatch.
func (r *Redis) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := extendScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int64()
		cancel()
		if err == nil && n == 0 {
			// Lost: expired and possibly taken by another instance.
			return
		}
	}
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
