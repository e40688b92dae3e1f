package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"insight-assistant-be/internal/repository/contract"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const lockPrefix = "assistant:lock:"

var (
	// both scripts act only while the key still carries the caller's token
	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// SessionLocker holds a per-session lease in Redis so only one API instance
// at a time mutates a session. The lease is renewed while held and expires
// on its own if the holder dies.
type SessionLocker struct {
	rdb   *goredis.Client
	lease time.Duration
	retry time.Duration
}

var _ contract.SessionLocker = (*SessionLocker)(nil)

func NewSessionLocker(rdb *goredis.Client, lease time.Duration) *SessionLocker {
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &SessionLocker{rdb: rdb, lease: lease, retry: 25 * time.Millisecond}
}

func lockKey(sessionID string) string {
	return lockPrefix + sessionID
}

func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	k := lockKey(sessionID)
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire session lock %s: %w", sessionID, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.renew(k, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{k}, token).Err(); err != nil {
				log.Printf("[WARN] Failed to release session lock %s: %v", sessionID, err)
			}
		})
	}, nil
}

func (l *SessionLocker) renew(key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := l.lease / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			kept, err := refreshScript.Run(ctx, l.rdb, []string{key}, token, l.lease.Milliseconds()).Int()
			cancel()
			if err != nil {
				log.Printf("[WARN] Failed to renew session lock %s: %v", key, err)
				continue
			}
			if kept == 0 {
				log.Printf("[WARN] Session lock %s was lost", key)
				return
			}
		}
	}
}
