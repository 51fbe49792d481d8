package room

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"ludoserver/internal/idgen"
	"ludoserver/internal/models"
	"ludoserver/internal/session"
	"ludoserver/internal/store"
)

// These are vars, not consts, so tests can shrink them instead of running
// the actual 30-second wall-clock timers.
var (
	TurnTimeout     = 30 * time.Second
	DisconnectGrace = 30 * time.Second
	WinSettleDelay  = 2 * time.Second
	DestroyDelay    = 10 * time.Second
)

const mailboxBuffer = 64

// Broadcaster is the outbound half of the transport, kept as an interface
// so this package never imports the websocket layer directly (the dispatch
// package wires the two together).
type Broadcaster interface {
	ToRoom(roomID, event string, payload interface{})
	ToRoomExcept(roomID string, exceptPeerID int, event string, payload interface{})
	ToHandle(handle, event string, payload interface{})
}

// Deps bundles the collaborators every room needs to act on the outside
// world without reaching for globals.
type Deps struct {
	Store       store.UserStore
	Sessions    *session.Registry
	Broadcaster Broadcaster
	Logger      *zap.Logger
}

type messageKind int

const (
	msgJoin messageKind = iota
	msgDiceSend
	msgTokenSend
	msgTokenReset
	msgChangeTurn
	msgWinGame
	msgLeaveRoom
	msgChat
	msgEmoji
	msgGift
	msgGetPreviousRoom
	msgDisconnect
	msgTimerFired
	msgGraceFired
	msgDelayedSettle
)

// roomMessage is the tagged variant every mailbox entry takes; exactly one
// of the payload fields is meaningful per kind.
type roomMessage struct {
	kind    messageKind
	payload interface{}
	reply   chan interface{}
}

type joinRequest struct {
	player *models.Player
}

type joinResult struct {
	seated      bool
	roomStarted bool
}

type previousRoomRequest struct {
	userID string
	handle string
}

type previousRoomResult struct {
	found  bool
	room   *models.Room
	peerID int
}

// Room owns one table. All mutation of its embedded models.Room happens on
// the run() goroutine; snap is the only state other goroutines may read,
// guarded by snapMu, and is refreshed at the end of every mailbox iteration
// that mutates state.
type Room struct {
	id       string
	code     string
	isFriend bool
	deps     Deps
	registry *Registry

	mailbox chan roomMessage

	snapMu sync.RWMutex
	snap   models.Room

	timerEpoch  int
	turnTimer   *time.Timer
	graceTimers map[string]*time.Timer // userID -> grace timer, survives across reconnects
}

func newRoom(roomID, hostUserID string, betAmount int64, maxPlayers int, isFriend bool, code string, deps Deps, registry *Registry) *Room {
	r := &Room{
		id:          roomID,
		code:        code,
		isFriend:    isFriend,
		deps:        deps,
		registry:    registry,
		mailbox:     make(chan roomMessage, mailboxBuffer),
		graceTimers: make(map[string]*time.Timer),
		snap: models.Room{
			RoomID:     roomID,
			HostUserID: hostUserID,
			BetAmount:  betAmount,
			MaxPlayers: maxPlayers,
			Status:     models.RoomWaiting,
			CreatedAt:  time.Now(),
			IsFriend:   isFriend,
			GameData: models.GameData{
				DiceAuditSeed: idgen.HexSeed(16),
			},
		},
	}
	go r.run()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) matches(betAmount int64, maxPlayers int) bool {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()

	return !r.isFriend &&
		r.snap.Status == models.RoomWaiting &&
		r.snap.BetAmount == betAmount &&
		r.snap.MaxPlayers == maxPlayers &&
		len(r.snap.Players) < r.snap.MaxPlayers
}

func (r *Room) isFriendCode(code string) bool {
	return r.isFriend && r.code == code
}

func (r *Room) Code() string { return r.code }

// Snapshot returns a defensive copy of the room's current public state.
func (r *Room) Snapshot() *models.Room {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()

	cp := r.snap
	cp.Players = make([]*models.Player, len(r.snap.Players))
	for i, p := range r.snap.Players {
		pc := *p
		cp.Players[i] = &pc
	}
	cp.GameData.Moves = append([]models.Move(nil), r.snap.GameData.Moves...)
	return &cp
}

// run is the sole goroutine permitted to mutate r.snap's live copy; it holds
// its own working copy (live) and republishes a defensive snapshot to snap
// after every message that can change room state (chat, emoji, gift and
// disconnect messages do not republish).
func (r *Room) run() {
	live := r.snap // local authoritative copy; only this goroutine touches it

	publish := func() {
		r.snapMu.Lock()
		r.snap = live
		r.snap.Players = make([]*models.Player, len(live.Players))
		for i, p := range live.Players {
			pc := *p
			r.snap.Players[i] = &pc
		}
		r.snap.GameData.Moves = append([]models.Move(nil), live.GameData.Moves...)
		r.snapMu.Unlock()
	}

	for msg := range r.mailbox {
		switch msg.kind {
		case msgJoin:
			req := msg.payload.(joinRequest)
			res := r.handleJoin(&live, req.player)
			publish()
			if msg.reply != nil {
				msg.reply <- res
			}
			if res.roomStarted {
				r.armTurnTimer()
			}

		case msgDiceSend:
			p := msg.payload.(models.DiceSendPayload)
			r.handleDiceSend(&live, p)
			publish()

		case msgTokenSend:
			p := msg.payload.(models.TokenSendPayload)
			r.handleTokenSend(&live, p)
			publish()

		case msgTokenReset:
			p := msg.payload.(models.TokenResetPayload)
			r.handleTokenReset(&live, p)
			publish()

		case msgChangeTurn:
			p := msg.payload.(models.ChangeTurnPayload)
			r.handleChangeTurn(&live, p)
			publish()

		case msgWinGame:
			p := msg.payload.(models.WinGamePayload)
			r.handleWinGame(&live, p)
			publish()

		case msgLeaveRoom:
			p := msg.payload.(models.LeaveRoomPayload)
			r.handleLeaveRoom(&live, p)
			publish()

		case msgChat:
			p := msg.payload.(models.UserChatPayload)
			r.deps.Broadcaster.ToRoom(r.id, "user_chat", p)

		case msgEmoji:
			p := msg.payload.(models.UserEmojiPayload)
			r.deps.Broadcaster.ToRoom(r.id, "user_emoji_id", p)

		case msgGift:
			p := msg.payload.(models.UserGiftPayload)
			r.deps.Broadcaster.ToRoom(r.id, "user_send_gift", p)

		case msgGetPreviousRoom:
			req := msg.payload.(previousRoomRequest)
			res := r.handleGetPreviousRoom(&live, req)
			publish()
			if msg.reply != nil {
				msg.reply <- res
			}

		case msgDisconnect:
			userID := msg.payload.(string)
			r.handleDisconnect(&live, userID)

		case msgTimerFired:
			epoch := msg.payload.(int)
			if epoch != r.timerEpoch {
				continue
			}
			r.handleTurnTimerFired(&live)
			publish()

		case msgGraceFired:
			p := msg.payload.(graceFiredPayload)
			r.handleGraceFired(&live, p)
			publish()

		case msgDelayedSettle:
			r.handleDelayedSettle(&live)
			publish()
		}
	}
}

func (r *Room) send(kind messageKind, payload interface{}) {
	r.mailbox <- roomMessage{kind: kind, payload: payload}
}

func (r *Room) sendSync(kind messageKind, payload interface{}) interface{} {
	reply := make(chan interface{}, 1)
	r.mailbox <- roomMessage{kind: kind, payload: payload, reply: reply}
	return <-reply
}

// Join attempts to seat player; the caller is responsible for coin
// deduction before calling Join and for crediting back if seated is false.
func (r *Room) Join(player *models.Player) (seated bool, started bool) {
	res := r.sendSync(msgJoin, joinRequest{player: player}).(joinResult)
	return res.seated, res.roomStarted
}

func (r *Room) DiceSend(p models.DiceSendPayload)     { r.send(msgDiceSend, p) }
func (r *Room) TokenSend(p models.TokenSendPayload)   { r.send(msgTokenSend, p) }
func (r *Room) TokenReset(p models.TokenResetPayload) { r.send(msgTokenReset, p) }
func (r *Room) ChangeTurn(p models.ChangeTurnPayload) { r.send(msgChangeTurn, p) }
func (r *Room) WinGame(p models.WinGamePayload)       { r.send(msgWinGame, p) }
func (r *Room) LeaveRoom(p models.LeaveRoomPayload)   { r.send(msgLeaveRoom, p) }
func (r *Room) Chat(p models.UserChatPayload)         { r.send(msgChat, p) }
func (r *Room) Emoji(p models.UserEmojiPayload)       { r.send(msgEmoji, p) }
func (r *Room) Gift(p models.UserGiftPayload)         { r.send(msgGift, p) }
func (r *Room) Disconnect(userID string)              { r.send(msgDisconnect, userID) }

func (r *Room) GetPreviousRoom(userID, handle string) (found bool, snapshot *models.Room, peerID int) {
	res := r.sendSync(msgGetPreviousRoom, previousRoomRequest{userID: userID, handle: handle}).(previousRoomResult)
	return res.found, res.room, res.peerID
}

func (r *Room) armTurnTimer() {
	r.timerEpoch++
	epoch := r.timerEpoch
	if r.turnTimer != nil {
		r.turnTimer.Stop()
	}
	r.turnTimer = time.AfterFunc(TurnTimeout, func() {
		r.send(msgTimerFired, epoch)
	})
}

func (r *Room) disarmTurnTimer() {
	r.timerEpoch++
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
}

func (r *Room) scheduleDisconnectGrace(userID, handle string) {
	if t, ok := r.graceTimers[userID]; ok {
		t.Stop()
	}
	r.graceTimers[userID] = time.AfterFunc(DisconnectGrace, func() {
		r.send(msgGraceFired, graceFiredPayload{userID: userID, handle: handle})
	})
}

func (r *Room) scheduleDelayedSettle() {
	time.AfterFunc(WinSettleDelay, func() {
		r.send(msgDelayedSettle, nil)
	})
}

func (r *Room) scheduleDestroy() {
	r.destroyAfter(DestroyDelay)
}

func (r *Room) destroyAfter(d time.Duration) {
	time.AfterFunc(d, func() {
		r.registry.Remove(r.id)
		close(r.mailbox)
	})
}

func (r *Room) logger() *zap.Logger {
	return r.deps.Logger.With(zap.String("room_id", r.id))
}

// nextPlayingPeer scans forward from (current+1) mod N for the first
// PLAYING player, per the turn-advancement algorithm.
func nextPlayingPeer(live *models.Room) (peerIdx int, found bool) {
	n := len(live.Players)
	if n == 0 {
		return 0, false
	}
	for i := 1; i <= n; i++ {
		idx := (live.CurrentTurn + i) % n
		if live.Players[idx].Status == models.PlayerPlaying {
			return idx, true
		}
	}
	return 0, false
}

func rankedResults(live *models.Room) []models.SettlementResult {
	players := make([]*models.Player, len(live.Players))
	copy(players, live.Players)

	sort.SliceStable(players, func(i, j int) bool {
		iWin := players[i].Status == models.PlayerWin
		jWin := players[j].Status == models.PlayerWin
		if iWin != jWin {
			return iWin
		}
		return false
	})

	results := make([]models.SettlementResult, len(players))
	winCount := 0
	for _, p := range players {
		if p.Status == models.PlayerWin {
			winCount++
		}
	}

	for i, p := range players {
		rank := i + 1
		coin := payout(live.MaxPlayers, live.BetAmount, p.Status, rank, winCount)
		results[i] = models.SettlementResult{
			UserID:       p.UserID,
			UserName:     p.UserName,
			PeerID:       p.PeerID,
			PlayerRank:   rank,
			PlayerStatus: int(p.Status),
			WinningCoin:  coin,
		}
	}
	return results
}

func payout(maxPlayers int, bet int64, status models.PlayerStatus, rank, winCount int) int64 {
	if status != models.PlayerWin {
		return 0
	}
	switch maxPlayers {
	case 2:
		if rank == 1 {
			return 2 * bet
		}
		return 0
	case 4:
		switch rank {
		case 1:
			return 3 * bet
		case 2:
			return bet
		default:
			return 0
		}
	default:
		return 0
	}
}
