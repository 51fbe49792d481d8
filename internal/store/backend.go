package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ludoserver/internal/config"
	"ludoserver/internal/models"
)

// Backend is the two-backend demotion wrapper described in §9's resolved
// design notes: it always tries the durable Redis store first and falls
// back to the in-memory store transparently whenever Redis is unreachable,
// never surfacing the demotion to a client.
type Backend struct {
	durable  *RedisStore
	fallback *MemoryStore
	logger   *zap.Logger
}

func NewBackend(cfg *config.Config, logger *zap.Logger) *Backend {
	return &Backend{
		durable:  NewRedisStore(cfg),
		fallback: NewMemoryStore(),
		logger:   logger,
	}
}

func (b *Backend) active() UserStore {
	if b.durable.Connected() {
		return b.durable
	}
	return b.fallback
}

func (b *Backend) Connected() bool { return b.durable.Connected() }

func (b *Backend) Close() error { return b.durable.Close() }

// MemoryFallback exposes the in-memory store for the cron sweep; it is
// always allocated even when Redis is healthy, so its sessions are purged
// regardless of which backend currently serves traffic.
func (b *Backend) MemoryFallback() *MemoryStore { return b.fallback }

func (b *Backend) Get(ctx context.Context, userID string) (*models.User, error) {
	return b.active().Get(ctx, userID)
}

func (b *Backend) Put(ctx context.Context, user *models.User) error {
	return b.active().Put(ctx, user)
}

func (b *Backend) Delete(ctx context.Context, userID string) error {
	return b.active().Delete(ctx, userID)
}

func (b *Backend) ListAll(ctx context.Context) ([]*models.User, error) {
	return b.active().ListAll(ctx)
}

func (b *Backend) AdjustCoins(ctx context.Context, userID string, delta int64, requireNonNegative bool) (*models.User, error) {
	return b.active().AdjustCoins(ctx, userID, delta, requireNonNegative)
}

func (b *Backend) LeaderboardUpsert(ctx context.Context, userID string, winCount int64) error {
	return b.active().LeaderboardUpsert(ctx, userID, winCount)
}

func (b *Backend) LeaderboardTop(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	return b.active().LeaderboardTop(ctx, n)
}

func (b *Backend) LeaderboardRank(ctx context.Context, userID string) (int64, error) {
	return b.active().LeaderboardRank(ctx, userID)
}

func (b *Backend) SessionPut(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	return b.active().SessionPut(ctx, sessionID, data, ttl)
}

func (b *Backend) SessionGet(ctx context.Context, sessionID string) ([]byte, error) {
	return b.active().SessionGet(ctx, sessionID)
}

func (b *Backend) SessionDelete(ctx context.Context, sessionID string) error {
	return b.active().SessionDelete(ctx, sessionID)
}
