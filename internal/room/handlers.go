package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ludoserver/internal/models"
)

type graceFiredPayload struct {
	userID string
	handle string
}

func playerPublicList(live *models.Room) []models.PlayerPublic {
	out := make([]models.PlayerPublic, len(live.Players))
	for i, p := range live.Players {
		out[i] = models.PlayerPublic{
			PeerID:   p.PeerID,
			UserID:   p.UserID,
			UserName: p.UserName,
			Status:   int(p.Status),
		}
	}
	return out
}

func copyRoom(live *models.Room) *models.Room {
	cp := *live
	cp.Players = make([]*models.Player, len(live.Players))
	for i, p := range live.Players {
		pc := *p
		cp.Players[i] = &pc
	}
	cp.GameData.Moves = append([]models.Move(nil), live.GameData.Moves...)
	return &cp
}

func (r *Room) handleJoin(live *models.Room, player *models.Player) joinResult {
	if live.Status != models.RoomWaiting || len(live.Players) >= live.MaxPlayers {
		return joinResult{seated: false}
	}

	player.PeerID = len(live.Players)
	live.Players = append(live.Players, player)

	r.deps.Broadcaster.ToRoom(r.id, "player_joined", models.PlayerJoinedPayload{
		PeerID:      player.PeerID,
		UserName:    player.UserName,
		PlayerCount: len(live.Players),
		MaxPlayers:  live.MaxPlayers,
	})

	started := false
	if len(live.Players) == live.MaxPlayers {
		live.Status = models.RoomPlaying
		live.CurrentTurn = 0
		started = true
		r.deps.Broadcaster.ToRoom(r.id, "game_start", models.GameStartPayload{
			RoomID:        r.id,
			RoomCoin:      live.BetAmount,
			UserData:      playerPublicList(live),
			DiceAuditSeed: live.GameData.DiceAuditSeed,
		})
	}
	return joinResult{seated: true, roomStarted: started}
}

func (r *Room) handleDiceSend(live *models.Room, p models.DiceSendPayload) {
	if live.Status != models.RoomPlaying {
		return
	}
	cur := live.Players[live.CurrentTurn]
	if cur.PeerID != p.PeerID {
		return
	}
	live.GameData.LastDice = p.DiceFace
	live.GameData.Moves = append(live.GameData.Moves, models.Move{
		Kind:       models.MoveKindDice,
		PeerID:     p.PeerID,
		DiceFace:   p.DiceFace,
		RecordedAt: time.Now(),
	})
	r.deps.Broadcaster.ToRoomExcept(r.id, p.PeerID, "dice_recieved", models.DiceReceivedPayload{
		PeerID:   p.PeerID,
		DiceFace: p.DiceFace,
	})
	r.armTurnTimer()
}

func (r *Room) handleTokenSend(live *models.Room, p models.TokenSendPayload) {
	if live.Status != models.RoomPlaying {
		return
	}
	cur := live.Players[live.CurrentTurn]
	if cur.PeerID != p.PeerID {
		return
	}
	live.GameData.Moves = append(live.GameData.Moves, models.Move{
		Kind:       models.MoveKindToken,
		PeerID:     p.PeerID,
		TokenID:    p.TokenID,
		TokenValue: p.TokenValue,
		DiceFace:   live.GameData.LastDice,
		RecordedAt: time.Now(),
	})
	r.deps.Broadcaster.ToRoomExcept(r.id, p.PeerID, "token_recieved", models.TokenReceivedPayload{
		PeerID:     p.PeerID,
		TokenID:    p.TokenID,
		TokenValue: p.TokenValue,
		DiceFace:   live.GameData.LastDice,
	})
	r.armTurnTimer()
}

func (r *Room) handleTokenReset(live *models.Room, p models.TokenResetPayload) {
	if live.Status != models.RoomPlaying {
		return
	}
	r.deps.Broadcaster.ToRoomExcept(r.id, p.PeerID, "token_recieved", models.TokenReceivedPayload{
		PeerID:     p.PeerID,
		TokenID:    p.TokenID,
		TokenValue: p.TokenValue,
		DiceFace:   0,
	})
}

func (r *Room) handleChangeTurn(live *models.Room, p models.ChangeTurnPayload) {
	if live.Status != models.RoomPlaying {
		return
	}
	cur := live.Players[live.CurrentTurn]
	if cur.PeerID != p.PeerID {
		return
	}
	nextIdx, found := nextPlayingPeer(live)
	if !found {
		r.finishGame(live)
		return
	}
	live.CurrentTurn = nextIdx
	r.deps.Broadcaster.ToRoom(r.id, "turn_changed", live.Players[nextIdx].PeerID)
	r.armTurnTimer()
}

func (r *Room) handleWinGame(live *models.Room, p models.WinGamePayload) {
	if live.Status != models.RoomPlaying {
		return
	}
	winner := live.PlayerByPeerID(p.PeerID)
	if winner == nil || winner.Status != models.PlayerPlaying {
		return
	}
	winner.Status = models.PlayerWin
	r.deps.Broadcaster.ToRoomExcept(r.id, p.PeerID, "win_game", p.PeerID)

	remaining := live.PlayingCount()
	if remaining <= 1 {
		if remaining == 1 {
			for _, pl := range live.Players {
				if pl.Status == models.PlayerPlaying {
					pl.Status = models.PlayerWin
					r.deps.Broadcaster.ToRoom(r.id, "win_game", pl.PeerID)
				}
			}
		}
		r.finishGame(live)
		return
	}

	if live.Players[live.CurrentTurn].PeerID == p.PeerID {
		if nextIdx, found := nextPlayingPeer(live); found {
			live.CurrentTurn = nextIdx
		}
	}
	r.armTurnTimer()
}

func (r *Room) handleLeaveRoom(live *models.Room, p models.LeaveRoomPayload) {
	player := live.PlayerByPeerID(p.PeerID)
	if player == nil || player.Status == models.PlayerLeft {
		return
	}

	switch live.Status {
	case models.RoomWaiting:
		player.Status = models.PlayerLeft
		if live.ActiveCount() == 0 {
			r.destroyAfter(0)
		}

	case models.RoomPlaying:
		wasCurrent := live.Players[live.CurrentTurn].PeerID == p.PeerID
		player.Status = models.PlayerLeft
		active := live.ActiveCount()

		switch {
		case active <= 1:
			for _, pl := range live.Players {
				if pl.Status == models.PlayerPlaying || pl.Status == models.PlayerTimeout {
					pl.Status = models.PlayerWin
				}
			}
			r.finishGame(live)
		default:
			r.deps.Broadcaster.ToRoom(r.id, "leave_room", p)
			if wasCurrent {
				if nextIdx, found := nextPlayingPeer(live); found {
					live.CurrentTurn = nextIdx
					r.armTurnTimer()
				}
			}
		}

	case models.RoomFinished:
		// already settled; nothing to do
	}
}

func (r *Room) handleGetPreviousRoom(live *models.Room, req previousRoomRequest) previousRoomResult {
	player := live.PlayerByUserID(req.userID)
	if player == nil {
		return previousRoomResult{found: false}
	}
	player.TransportHandle = req.handle
	r.deps.Sessions.Bind(req.userID, req.handle)
	return previousRoomResult{found: true, room: copyRoom(live), peerID: player.PeerID}
}

func (r *Room) handleDisconnect(live *models.Room, userID string) {
	if live.Status != models.RoomPlaying {
		return
	}
	player := live.PlayerByUserID(userID)
	if player == nil || player.Status != models.PlayerPlaying {
		return
	}
	r.scheduleDisconnectGrace(userID, player.TransportHandle)
}

func (r *Room) handleGraceFired(live *models.Room, p graceFiredPayload) {
	delete(r.graceTimers, p.userID)

	if live.Status != models.RoomPlaying {
		return
	}
	player := live.PlayerByUserID(p.userID)
	if player == nil || player.TransportHandle != p.handle || player.Status != models.PlayerPlaying {
		return
	}

	// Grace expiry only marks TIMEOUT; it leaves numoftimeout and the turn
	// timer alone, so only turn-timer escalation can end the game.
	player.Status = models.PlayerTimeout
	r.deps.Broadcaster.ToRoom(r.id, "user_timeout", player.PeerID)
}

func (r *Room) handleTurnTimerFired(live *models.Room) {
	if live.Status != models.RoomPlaying {
		return
	}
	cur := live.Players[live.CurrentTurn]
	cur.NumOfTimeout++

	if cur.NumOfTimeout < models.MaxTimeouts {
		r.deps.Broadcaster.ToRoom(r.id, "user_timeout_counter", models.UserTimeoutCounterPayload{
			PeerID:       cur.PeerID,
			NumOfTimeout: cur.NumOfTimeout,
		})
		if nextIdx, found := nextPlayingPeer(live); found {
			live.CurrentTurn = nextIdx
		}
		r.armTurnTimer()
		return
	}

	cur.Status = models.PlayerTimeout
	r.deps.Broadcaster.ToRoom(r.id, "user_timeout", cur.PeerID)

	switch remaining := live.PlayingCount(); {
	case remaining == 1:
		for _, pl := range live.Players {
			if pl.Status == models.PlayerPlaying {
				pl.Status = models.PlayerWin
			}
		}
		r.disarmTurnTimer()
		r.scheduleDelayedSettle()
	case remaining == 0:
		r.finishGame(live)
	default:
		if nextIdx, found := nextPlayingPeer(live); found {
			live.CurrentTurn = nextIdx
		}
		r.armTurnTimer()
	}
}

func (r *Room) handleDelayedSettle(live *models.Room) {
	if live.Status == models.RoomFinished {
		return
	}
	r.finishGame(live)
}

// finishGame commits the FINISHED transition: disarm the turn timer and any
// pending grace timers, compute and apply settlement, announce game_over,
// and schedule room deletion.
func (r *Room) finishGame(live *models.Room) {
	live.Status = models.RoomFinished
	live.FinishedAt = time.Now()
	r.disarmTurnTimer()
	for userID, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, userID)
	}

	results := rankedResults(live)
	r.settle(results)
	r.deps.Broadcaster.ToRoom(r.id, "game_over", results)
	r.scheduleDestroy()
}

func (r *Room) settle(results []models.SettlementResult) {
	ctx := context.Background()
	for _, res := range results {
		user, err := r.deps.Store.Get(ctx, res.UserID)
		if err != nil {
			r.logger().Warn("settlement: user lookup failed", zap.String("user_id", res.UserID), zap.Error(err))
			continue
		}

		if res.WinningCoin > 0 {
			credited, err := r.deps.Store.AdjustCoins(ctx, res.UserID, res.WinningCoin, false)
			if err != nil {
				r.logger().Warn("settlement: credit failed", zap.String("user_id", res.UserID), zap.Error(err))
			} else {
				user = credited
			}
		}

		user.TotalGamesPlayed++
		if res.PlayerStatus == int(models.PlayerWin) {
			user.WinCount++
		} else {
			user.LostCount++
		}
		user.RecomputeLevel()

		if err := r.deps.Store.Put(ctx, user); err != nil {
			r.logger().Warn("settlement: persist failed", zap.String("user_id", res.UserID), zap.Error(err))
			continue
		}
		if err := r.deps.Store.LeaderboardUpsert(ctx, res.UserID, user.WinCount); err != nil {
			r.logger().Warn("settlement: leaderboard upsert failed", zap.String("user_id", res.UserID), zap.Error(err))
		}
	}
}
