package models

import "time"

// StartingCoins is credited to a user the first time their profile is created.
const StartingCoins = 1000

// User is the durable profile the settlement layer reads and credits.
type User struct {
	UserID           string    `json:"user_id" redis:"user_id"`
	UserName         string    `json:"user_name" redis:"user_name"`
	Coins            int64     `json:"coins" redis:"coins"`
	WinCount         int64     `json:"win_count" redis:"win_count"`
	LostCount        int64     `json:"lost_count" redis:"lost_count"`
	TotalGamesPlayed int64     `json:"total_games_played" redis:"total_games_played"`
	Level            int64     `json:"level" redis:"level"`
	CreatedAt        time.Time `json:"created_at" redis:"created_at"`
	LastUpdate       time.Time `json:"last_update" redis:"last_update"`
}

// NewUser creates a fresh profile with the starting balance.
func NewUser(userID, userName string) *User {
	now := time.Now()
	return &User{
		UserID:     userID,
		UserName:   userName,
		Coins:      StartingCoins,
		Level:      1,
		CreatedAt:  now,
		LastUpdate: now,
	}
}

// RecomputeLevel derives level from win_count, per the documented formula.
func (u *User) RecomputeLevel() {
	u.Level = 1 + u.WinCount/10
}

// LeaderboardEntry is one row of the win-sorted leaderboard.
type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	WinCount int64  `json:"win_count"`
	Rank     int64  `json:"rank"`
}
