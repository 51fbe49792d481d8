package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ludoserver/internal/config"
	"ludoserver/internal/models"
)

const (
	keyUser        = "user:%s"
	keyLeaderboard = "leaderboard:wins"
	keySession     = "session:%s"

	defaultSessionTTL = 3600 * time.Second
)

// RedisStore is the durable backend. Every write is write-through (profile
// and leaderboard); reads marshal/unmarshal a JSON blob per user, exactly
// the shape the teacher's wallet/session keys use.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg *config.Config) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Connected is a liveness probe; it never blocks long enough to stall a
// caller waiting to fall back to the in-memory store.
func (s *RedisStore) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := s.client.Ping(ctx).Result()
	return err == nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*models.User, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(keyUser, userID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get user: %w", err)
	}

	var u models.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("redis unmarshal user: %w", err)
	}
	return &u, nil
}

func (s *RedisStore) Put(ctx context.Context, user *models.User) error {
	user.LastUpdate = time.Now()

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("redis marshal user: %w", err)
	}

	if err := s.client.Set(ctx, fmt.Sprintf(keyUser, user.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis put user: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, fmt.Sprintf(keyUser, userID)).Err(); err != nil {
		return fmt.Errorf("redis delete user: %w", err)
	}
	s.client.ZRem(ctx, keyLeaderboard, userID)
	return nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]*models.User, error) {
	var (
		users  []*models.User
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "user:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan users: %w", err)
		}
		for _, k := range keys {
			data, err := s.client.Get(ctx, k).Result()
			if err != nil {
				continue
			}
			var u models.User
			if err := json.Unmarshal([]byte(data), &u); err != nil {
				continue
			}
			users = append(users, &u)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return users, nil
}

// adjustCoinsScript mirrors the teacher's lockBalanceScript/releaseBalanceScript
// pattern: read-modify-write a JSON user blob atomically inside Redis so two
// concurrent joins for the same user cannot both observe a sufficient balance.
var adjustCoinsScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local requireNonNegative = ARGV[2] == "true"

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("user not found")
	end

	local user = cjson.decode(data)
	local next_balance = user.coins + delta

	if requireNonNegative and next_balance < 0 then
		return redis.error_reply("insufficient coins")
	end

	user.coins = next_balance
	local updated = cjson.encode(user)
	redis.call("SET", key, updated)

	return updated
`)

func (s *RedisStore) AdjustCoins(ctx context.Context, userID string, delta int64, requireNonNegative bool) (*models.User, error) {
	key := fmt.Sprintf(keyUser, userID)

	res, err := adjustCoinsScript.Run(ctx, s.client, []string{key}, delta, requireNonNegative).Result()
	if err != nil {
		if err.Error() == "insufficient coins" {
			return nil, ErrInsufficientCoins
		}
		if err.Error() == "user not found" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis adjust coins: %w", err)
	}

	str, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("redis adjust coins: unexpected script result type")
	}

	var u models.User
	if err := json.Unmarshal([]byte(str), &u); err != nil {
		return nil, fmt.Errorf("redis unmarshal adjusted user: %w", err)
	}
	u.LastUpdate = time.Now()
	return &u, nil
}

func (s *RedisStore) LeaderboardUpsert(ctx context.Context, userID string, winCount int64) error {
	return s.client.ZAdd(ctx, keyLeaderboard, redis.Z{
		Score:  float64(winCount),
		Member: userID,
	}).Err()
}

func (s *RedisStore) LeaderboardTop(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}

	members, err := s.client.ZRevRangeWithScores(ctx, keyLeaderboard, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis leaderboard top: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		userID, _ := m.Member.(string)
		entry := models.LeaderboardEntry{
			UserID:   userID,
			WinCount: int64(m.Score),
			Rank:     int64(i + 1),
		}
		if u, err := s.Get(ctx, userID); err == nil {
			entry.UserName = u.UserName
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) LeaderboardRank(ctx context.Context, userID string) (int64, error) {
	rank, err := s.client.ZRevRank(ctx, keyLeaderboard, userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis leaderboard rank: %w", err)
	}
	return rank + 1, nil
}

func (s *RedisStore) SessionPut(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if err := s.client.Set(ctx, fmt.Sprintf(keySession, sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis session put: %w", err)
	}
	return nil
}

func (s *RedisStore) SessionGet(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(keySession, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis session get: %w", err)
	}
	return data, nil
}

func (s *RedisStore) SessionDelete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, fmt.Sprintf(keySession, sessionID)).Err(); err != nil {
		return fmt.Errorf("redis session delete: %w", err)
	}
	return nil
}
