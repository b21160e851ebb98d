package accounts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceChecker reports whether an account currently has a live client.
type PresenceChecker interface {
	IsOnline(ctx context.Context, accountID string) (bool, error)
}

// PresenceTracker additionally records connect/disconnect signals.
type PresenceTracker interface {
	PresenceChecker
	SetOnline(ctx context.Context, accountID string) error
	Refresh(ctx context.Context, accountID string) error
	SetOffline(ctx context.Context, accountID string) error
}

// RedisPresence tracks online accounts with TTL keys so a crashed client
// falls offline on its own once refreshes stop.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

func presenceKey(accountID string) string {
	return fmt.Sprintf("presence:%s", accountID)
}

func (p *RedisPresence) SetOnline(ctx context.Context, accountID string) error {
	return p.rdb.Set(ctx, presenceKey(accountID), "1", p.ttl).Err()
}

// Refresh extends the presence TTL; used on heartbeats and gateway traffic.
func (p *RedisPresence) Refresh(ctx context.Context, accountID string) error {
	return p.rdb.Expire(ctx, presenceKey(accountID), p.ttl).Err()
}

func (p *RedisPresence) SetOffline(ctx context.Context, accountID string) error {
	return p.rdb.Del(ctx, presenceKey(accountID)).Err()
}

func (p *RedisPresence) IsOnline(ctx context.Context, accountID string) (bool, error) {
	n, err := p.rdb.Exists(ctx, presenceKey(accountID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryPresence is a process-local PresenceTracker for tests.
type MemoryPresence struct {
	mu     sync.Mutex
	online map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{online: make(map[string]struct{})}
}

func (m *MemoryPresence) SetOnline(ctx context.Context, accountID string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[accountID] = struct{}{}
	return nil
}

func (m *MemoryPresence) Refresh(ctx context.Context, accountID string) error {
	_ = ctx
	_ = accountID
	return nil
}

func (m *MemoryPresence) SetOffline(ctx context.Context, accountID string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, accountID)
	return nil
}

func (m *MemoryPresence) IsOnline(ctx context.Context, accountID string) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.online[accountID]
	return ok, nil
}
