package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only if it still holds our token, so an
// instance whose lease expired cannot release someone else's lock.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore implements ports.LockStore with Redis SET NX leases.
type LockStore struct {
	client *goredis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// NewLockStore creates a new Redis-backed lock store.
func NewLockStore(client *goredis.Client) *LockStore {
	return &LockStore{
		client: client,
		prefix: "lock:",
		tokens: make(map[string]string),
	}
}

// TryLock acquires name for ttl. Returns false if another holder has it.
func (s *LockStore) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	result, err := s.client.SetArgs(ctx, s.prefix+name, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis lock acquire: %w", err)
	}
	if result != "OK" {
		return false, nil
	}

	s.mu.Lock()
	s.tokens[name] = token
	s.mu.Unlock()
	return true, nil
}

// Unlock releases name if this store still owns it.
func (s *LockStore) Unlock(ctx context.Context, name string) error {
	s.mu.Lock()
	token, ok := s.tokens[name]
	delete(s.tokens, name)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := unlockScript.Run(ctx, s.client, []string{s.prefix + name}, token).Err(); err != nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	return nil
}
