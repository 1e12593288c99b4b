package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dds-registration/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ChargeLock is a short-lived per-payment lock held while a card charge is
// being prepared.
type ChargeLock struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger

	mu     sync.Mutex
	tokens map[string]string
}

func NewChargeLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *ChargeLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ChargeLock{Client: client, TTL: ttl, Logger: log, tokens: make(map[string]string)}
}

func lockKey(key string) string {
	return "payment_charge_lock:" + key
}

// Acquire returns false when somebody else holds the lock.
func (l *ChargeLock) Acquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, lockKey(key), token, l.TTL).Result()
	if err != nil {
		l.Logger.Error("REDIS", fmt.Sprintf("Failed to acquire lock %s: %v", key, err))
		return false, err
	}
	if !ok {
		l.Logger.Warn("REDIS", fmt.Sprintf("Lock %s already held", key))
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *ChargeLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.Client, []string{lockKey(key)}, token).Err(); err != nil && err != redis.Nil {
		l.Logger.Error("REDIS", fmt.Sprintf("Failed to release lock %s: %v", key, err))
		return err
	}
	return nil
}
