package models

import "time"

// PlayerStatus mirrors the numeric statuses the wire protocol exposes.
type PlayerStatus int

const (
	PlayerPlaying PlayerStatus = 0
	PlayerWin     PlayerStatus = 1
	PlayerLeft    PlayerStatus = 2
	PlayerTimeout PlayerStatus = 3
)

// MaxTimeouts is the cumulative per-turn-timeout count at which a player is removed.
const MaxTimeouts = 3

// Player is one seat in a room's roster. PeerID is the seat's 0-based
// position at join time and never changes for the life of the room, even
// after the player LEFT or TIMEOUT — the roster is never compacted.
type Player struct {
	UserID          string       `json:"user_id"`
	UserName        string       `json:"user_name"`
	PeerID          int          `json:"peer_id"`
	Status          PlayerStatus `json:"status"`
	NumOfTimeout    int          `json:"numoftimeout"`
	JoinedAt        time.Time    `json:"joined_at"`
	TransportHandle string       `json:"-"`
}

func NewPlayer(userID, userName string, peerID int, transportHandle string) *Player {
	return &Player{
		UserID:          userID,
		UserName:        userName,
		PeerID:          peerID,
		Status:          PlayerPlaying,
		JoinedAt:        time.Now(),
		TransportHandle: transportHandle,
	}
}
