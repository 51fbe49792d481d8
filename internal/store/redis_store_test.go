package store_test

import (
	"context"
	"testing"

	"ludoserver/internal/config"
	"ludoserver/internal/models"
	"ludoserver/internal/store"
)

func TestRedisStore(t *testing.T) {
	cfg := &config.Config{
		RedisHost: "localhost",
		RedisPort: "6379",
	}

	rs := store.NewRedisStore(cfg)
	defer rs.Close()

	if !rs.Connected() {
		t.Skip("redis not available")
	}

	ctx := context.Background()
	user := models.NewUser("redis-test-user", "Tester")

	if err := rs.Put(ctx, user); err != nil {
		t.Fatalf("put user: %v", err)
	}
	defer rs.Delete(ctx, user.UserID)

	got, err := rs.Get(ctx, user.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Coins != models.StartingCoins {
		t.Errorf("expected starting coins %d, got %d", models.StartingCoins, got.Coins)
	}

	updated, err := rs.AdjustCoins(ctx, user.UserID, -200, true)
	if err != nil {
		t.Fatalf("adjust coins: %v", err)
	}
	if updated.Coins != models.StartingCoins-200 {
		t.Errorf("expected %d coins after deduction, got %d", models.StartingCoins-200, updated.Coins)
	}

	if _, err := rs.AdjustCoins(ctx, user.UserID, -100000, true); err != store.ErrInsufficientCoins {
		t.Errorf("expected ErrInsufficientCoins, got %v", err)
	}

	if err := rs.LeaderboardUpsert(ctx, user.UserID, 5); err != nil {
		t.Fatalf("leaderboard upsert: %v", err)
	}
	rank, err := rs.LeaderboardRank(ctx, user.UserID)
	if err != nil {
		t.Fatalf("leaderboard rank: %v", err)
	}
	if rank < 1 {
		t.Errorf("expected a 1-based rank, got %d", rank)
	}
}
