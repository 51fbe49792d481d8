// Package dispatch wires the transport layer (internal/ws) to the domain
// layer (internal/room, internal/session, internal/store): it decodes each
// inbound frame into its typed payload and calls the matching handler,
// exactly the "parse at ingress into typed records" design note.
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"ludoserver/internal/config"
	"ludoserver/internal/idgen"
	"ludoserver/internal/models"
	"ludoserver/internal/room"
	"ludoserver/internal/session"
	"ludoserver/internal/store"
	"ludoserver/internal/ws"
)

// Dispatcher owns every collaborator a connected client can reach.
type Dispatcher struct {
	hub      *ws.Hub
	rooms    *room.Registry
	sessions *session.Registry
	users    store.UserStore
	cfg      *config.Config
	logger   *zap.Logger
}

func New(hub *ws.Hub, rooms *room.Registry, sessions *session.Registry, users store.UserStore, cfg *config.Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, rooms: rooms, sessions: sessions, users: users, cfg: cfg, logger: logger}
}

// ServeHTTP upgrades the request and runs the connection's read loop.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := d.hub.Serve(w, r, d.onMessage, d.onDisconnect); err != nil {
		d.logger.Warn("dispatch: websocket upgrade failed", zap.Error(err))
	}
}

func (d *Dispatcher) Hub() *ws.Hub          { return d.hub }
func (d *Dispatcher) Rooms() *room.Registry { return d.rooms }

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// emitError sends the generic client-directed failure channel for
// parse/internal issues that have no more specific event of their own.
func (d *Dispatcher) emitError(c *ws.Client, message string) {
	d.hub.ToHandle(c.Handle(), "error", models.ErrorPayload{Message: message})
}

func (d *Dispatcher) onMessage(c *ws.Client, frame ws.Frame) {
	switch frame.Type {
	case "add_user":
		d.handleAddUser(c, frame.Data)
	case "get_userdata":
		d.handleGetUserData(c, frame.Data)
	case "request_join":
		d.handleRequestJoin(c, frame.Data)
	case "friend_create_room":
		d.handleFriendCreateRoom(c, frame.Data)
	case "friend_join_room":
		d.handleFriendJoinRoom(c, frame.Data)
	case "dice_send":
		d.handleDiceSend(c, frame.Data)
	case "token_send":
		d.handleTokenSend(c, frame.Data)
	case "token_reset":
		d.handleTokenReset(c, frame.Data)
	case "change_turn":
		d.handleChangeTurn(c, frame.Data)
	case "win_game":
		d.handleWinGame(c, frame.Data)
	case "leave_room":
		d.handleLeaveRoom(c, frame.Data)
	case "user_chat":
		d.handleUserChat(c, frame.Data)
	case "user_emoji_id":
		d.handleUserEmoji(c, frame.Data)
	case "user_send_gift":
		d.handleUserGift(c, frame.Data)
	case "get_previous_room":
		d.handleGetPreviousRoom(c, frame.Data)
	case "remove_from_matchmaking":
		d.handleRemoveFromMatchmaking(c, frame.Data)
	default:
		d.logger.Warn("dispatch: unknown event type", zap.String("type", frame.Type))
		d.emitError(c, "unknown event type: "+frame.Type)
	}
}

func (d *Dispatcher) onDisconnect(c *ws.Client) {
	userID := c.UserID()
	d.sessions.Unbind(c.Handle())
	if userID == "" {
		return
	}
	if roomID := c.RoomID(); roomID != "" {
		if rm, ok := d.rooms.Get(roomID); ok {
			rm.Disconnect(userID)
		}
	}
}

func (d *Dispatcher) roomDeps() room.Deps {
	return room.Deps{Store: d.users, Sessions: d.sessions, Broadcaster: d.hub, Logger: d.logger}
}

func (d *Dispatcher) mintAuthToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": idgen.HexSeed(8),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(d.cfg.JWTSecret))
}

func (d *Dispatcher) handleAddUser(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.AddUserPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed add_user", zap.Error(err))
		d.emitError(c, "malformed add_user payload")
		return
	}

	ctx := context.Background()
	if _, err := d.users.Get(ctx, p.UserID); err != nil {
		user := models.NewUser(p.UserID, p.UserName)
		if err := d.users.Put(ctx, user); err != nil {
			d.logger.Warn("dispatch: persist new user failed", zap.String("user_id", p.UserID), zap.Error(err))
		}
	}

	c.SetUserID(p.UserID)
	d.sessions.Bind(p.UserID, c.Handle())

	token, err := d.mintAuthToken(p.UserID)
	if err != nil {
		d.logger.Warn("dispatch: mint auth token failed", zap.String("user_id", p.UserID), zap.Error(err))
		d.emitError(c, "internal error minting auth token")
		return
	}
	d.hub.ToHandle(c.Handle(), "auth_token", token)
}

func (d *Dispatcher) handleGetUserData(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.GetUserDataPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed get_userdata", zap.Error(err))
		d.emitError(c, "malformed get_userdata payload")
		return
	}

	ctx := context.Background()
	user, err := d.users.Get(ctx, p.UserID)
	if err != nil {
		user = models.NewUser(p.UserID, p.UserName)
		if err := d.users.Put(ctx, user); err != nil {
			d.logger.Warn("dispatch: persist new user failed", zap.String("user_id", p.UserID), zap.Error(err))
		}
	}

	d.hub.ToHandle(c.Handle(), "user_data", models.UserDataPayload{
		UserID:     user.UserID,
		UserName:   user.UserName,
		UserCoin:   user.Coins,
		NumOfWin:   user.WinCount,
		NumOfLose:  user.LostCount,
		UserLevel:  user.Level,
		TotalGames: user.TotalGamesPlayed,
	})
}

// deductAndSeat performs the coin-deduction-then-seat sequence shared by
// request_join, friend_create_room, and friend_join_room. On seating
// failure the deduction is reversed before the failure is surfaced.
func (d *Dispatcher) deductAndSeat(c *ws.Client, userID, userName string, betAmount int64, target *room.Room) {
	ctx := context.Background()

	user, err := d.users.Get(ctx, userID)
	if err != nil {
		user = models.NewUser(userID, userName)
		if err := d.users.Put(ctx, user); err != nil {
			d.logger.Warn("dispatch: persist new user failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	if user.Coins < betAmount {
		d.hub.ToHandle(c.Handle(), "insufficient_coins", models.InsufficientCoinsPayload{
			Required: betAmount,
			Current:  user.Coins,
		})
		return
	}

	if _, err := d.users.AdjustCoins(ctx, userID, -betAmount, true); err != nil {
		if err == store.ErrInsufficientCoins {
			d.hub.ToHandle(c.Handle(), "insufficient_coins", models.InsufficientCoinsPayload{
				Required: betAmount,
				Current:  user.Coins,
			})
		} else {
			d.logger.Warn("dispatch: coin deduction failed", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}

	// Enter the broadcast group before seating so this client also receives
	// the player_joined / game_start its own join triggers.
	d.hub.JoinRoom(c, target.ID())
	player := models.NewPlayer(userID, userName, 0, c.Handle())
	seated, _ := target.Join(player)
	if !seated {
		d.hub.LeaveRoom(c)
		if _, err := d.users.AdjustCoins(ctx, userID, betAmount, false); err != nil {
			d.logger.Warn("dispatch: coin refund failed", zap.String("user_id", userID), zap.Error(err))
		}
		d.hub.ToHandle(c.Handle(), "friend_error_response", models.FriendErrorResponsePayload{
			Message: "room is full",
		})
		return
	}

	c.SetUserID(userID)
	c.SetPeerID(player.PeerID)
	d.sessions.Bind(userID, c.Handle())
}

func (d *Dispatcher) handleRequestJoin(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.RequestJoinPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed request_join", zap.Error(err))
		d.emitError(c, "malformed request_join payload")
		return
	}

	// Refuse an unaffordable bet before any room is looked up or created.
	user, err := d.users.Get(context.Background(), p.UserID)
	if err != nil {
		user = models.NewUser(p.UserID, p.UserName)
	}
	if user.Coins < p.RoomCoinValue {
		d.hub.ToHandle(c.Handle(), "insufficient_coins", models.InsufficientCoinsPayload{
			Required: p.RoomCoinValue,
			Current:  user.Coins,
		})
		return
	}

	target, found := d.rooms.FindAvailable(p.RoomCoinValue, p.RoomPlayersSize)
	if !found {
		target = d.rooms.CreateRoom(p.UserID, p.RoomCoinValue, p.RoomPlayersSize, false, "", d.roomDeps())
	}
	d.deductAndSeat(c, p.UserID, p.UserName, p.RoomCoinValue, target)
}

func (d *Dispatcher) handleFriendCreateRoom(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.FriendCreateRoomPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed friend_create_room", zap.Error(err))
		d.emitError(c, "malformed friend_create_room payload")
		return
	}

	target := d.rooms.CreateRoom(p.UserID, p.RoomCoinValue, p.RoomPlayersSize, true, p.RoomCode, d.roomDeps())
	d.hub.ToHandle(c.Handle(), "friend_room_code", models.FriendRoomCodePayload{RoomCode: target.Code()})
	d.deductAndSeat(c, p.UserID, p.UserName, p.RoomCoinValue, target)
}

func (d *Dispatcher) handleFriendJoinRoom(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.FriendJoinRoomPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed friend_join_room", zap.Error(err))
		d.emitError(c, "malformed friend_join_room payload")
		return
	}

	target, found := d.rooms.FindByCode(p.RoomCode)
	if !found {
		d.hub.ToHandle(c.Handle(), "friend_error_response", models.FriendErrorResponsePayload{
			Message: "room not found",
		})
		return
	}
	d.deductAndSeat(c, p.UserID, p.UserName, target.Snapshot().BetAmount, target)
}

func (d *Dispatcher) handleDiceSend(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.DiceSendPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed dice_send", zap.Error(err))
		d.emitError(c, "malformed dice_send payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.DiceSend(p)
	}
}

func (d *Dispatcher) handleTokenSend(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.TokenSendPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed token_send", zap.Error(err))
		d.emitError(c, "malformed token_send payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.TokenSend(p)
	}
}

func (d *Dispatcher) handleTokenReset(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.TokenResetPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed token_reset", zap.Error(err))
		d.emitError(c, "malformed token_reset payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.TokenReset(p)
	}
}

func (d *Dispatcher) handleChangeTurn(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.ChangeTurnPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed change_turn", zap.Error(err))
		d.emitError(c, "malformed change_turn payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.ChangeTurn(p)
	}
}

func (d *Dispatcher) handleWinGame(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.WinGamePayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed win_game", zap.Error(err))
		d.emitError(c, "malformed win_game payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.WinGame(p)
	}
}

func (d *Dispatcher) handleLeaveRoom(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.LeaveRoomPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed leave_room", zap.Error(err))
		d.emitError(c, "malformed leave_room payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.LeaveRoom(p)
	}
	d.hub.LeaveRoom(c)
}

func (d *Dispatcher) handleUserChat(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.UserChatPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed user_chat", zap.Error(err))
		d.emitError(c, "malformed user_chat payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.Chat(p)
	}
}

func (d *Dispatcher) handleUserEmoji(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.UserEmojiPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed user_emoji_id", zap.Error(err))
		d.emitError(c, "malformed user_emoji_id payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.Emoji(p)
	}
}

func (d *Dispatcher) handleUserGift(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.UserGiftPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed user_send_gift", zap.Error(err))
		d.emitError(c, "malformed user_send_gift payload")
		return
	}
	if rm, ok := d.rooms.Get(p.RoomID); ok {
		rm.Gift(p)
	}
}

func (d *Dispatcher) handleGetPreviousRoom(c *ws.Client, data json.RawMessage) {
	p, err := decode[models.GetPreviousRoomPayload](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed get_previous_room", zap.Error(err))
		d.emitError(c, "malformed get_previous_room payload")
		return
	}

	rm, ok := d.rooms.Get(p.RoomID)
	if !ok {
		d.hub.ToHandle(c.Handle(), "room_not_found", models.RoomNotFoundPayload{RoomID: p.RoomID})
		return
	}

	found, snap, peerID := rm.GetPreviousRoom(p.UserID, c.Handle())
	if !found {
		d.hub.ToHandle(c.Handle(), "room_not_found", models.RoomNotFoundPayload{RoomID: p.RoomID})
		return
	}

	c.SetUserID(p.UserID)
	c.SetPeerID(peerID)
	d.hub.JoinRoom(c, p.RoomID)
	d.sessions.Bind(p.UserID, c.Handle())

	d.hub.ToHandle(c.Handle(), "previous_room_data", models.PreviousRoomDataPayload{
		RoomID:      snap.RoomID,
		PeerID:      peerID,
		BetAmount:   snap.BetAmount,
		MaxPlayers:  snap.MaxPlayers,
		CurrentTurn: snap.CurrentTurn,
		Players:     playerPublicList(snap),
		GameData:    snap.GameData,
	})
}

func (d *Dispatcher) handleRemoveFromMatchmaking(c *ws.Client, data json.RawMessage) {
	userID, err := decode[string](data)
	if err != nil {
		d.logger.Warn("dispatch: malformed remove_from_matchmaking", zap.Error(err))
		d.emitError(c, "malformed remove_from_matchmaking payload")
		return
	}

	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	if rm, ok := d.rooms.Get(roomID); ok {
		rm.LeaveRoom(models.LeaveRoomPayload{RoomID: roomID, PeerID: c.PeerID()})
	}
	d.hub.LeaveRoom(c)
	d.logger.Info("dispatch: removed from matchmaking", zap.String("user_id", userID), zap.String("room_id", roomID))
}

func playerPublicList(snap *models.Room) []models.PlayerPublic {
	out := make([]models.PlayerPublic, len(snap.Players))
	for i, p := range snap.Players {
		out[i] = models.PlayerPublic{
			PeerID:   p.PeerID,
			UserID:   p.UserID,
			UserName: p.UserName,
			Status:   int(p.Status),
		}
	}
	return out
}
