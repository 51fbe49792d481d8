package models

// SettlementResult is one row of the game_over results array.
type SettlementResult struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	PeerID       int    `json:"peer_id"`
	PlayerRank   int    `json:"player_rank"`
	PlayerStatus int    `json:"player_status"`
	WinningCoin  int64  `json:"winning_coin"`
}
