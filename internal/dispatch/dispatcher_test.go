package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ludoserver/internal/config"
	"ludoserver/internal/dispatch"
	"ludoserver/internal/models"
	"ludoserver/internal/room"
	"ludoserver/internal/session"
	"ludoserver/internal/store"
	"ludoserver/internal/ws"
)

// testServer wires a full dispatcher onto an httptest server so these tests
// drive it exactly the way a real client would, over an actual websocket
// connection, matching the teacher's habit of testing through the public
// surface rather than reaching into unexported handlers.
type testServer struct {
	srv   *httptest.Server
	rooms *room.Registry
	users store.UserStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	users := store.NewMemoryStore()
	rooms := room.NewRegistry()
	disp := dispatch.New(ws.NewHub(zap.NewNop()), rooms, session.NewRegistry(), users, &config.Config{JWTSecret: "test-secret"}, zap.NewNop())

	mux := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		disp.ServeHTTP(w, r)
	}))

	return &testServer{srv: mux, rooms: rooms, users: users}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame := ws.Frame{Type: eventType, Data: data}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// recvUntil reads frames off conn until it finds one of the given type,
// or the deadline elapses.
func recvUntil(t *testing.T, conn *websocket.Conn, want string, timeout time.Duration) ws.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		var frame ws.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("timed out waiting for frame %q: %v", want, err)
		}
		if frame.Type == want {
			return frame
		}
	}
}

func TestInsufficientCoinsRejectsJoin(t *testing.T) {
	ts := newTestServer(t)
	defer ts.srv.Close()

	conn := ts.dial(t)
	defer conn.Close()

	// A brand-new user starts with models.StartingCoins (1000); betting
	// more than that must be refused before any seat is taken.
	sendFrame(t, conn, "request_join", models.RequestJoinPayload{
		UserID:          "poor-user",
		UserName:        "Poor",
		RoomCoinValue:   models.StartingCoins + 1,
		RoomPlayersSize: 2,
	})

	frame := recvUntil(t, conn, "insufficient_coins", 2*time.Second)
	var payload models.InsufficientCoinsPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal insufficient_coins payload: %v", err)
	}
	if payload.Required != models.StartingCoins+1 || payload.Current != models.StartingCoins {
		t.Errorf("unexpected insufficient_coins payload: %+v", payload)
	}

	if ts.rooms.Count() != 0 {
		t.Errorf("expected no room to be created for a rejected join, got %d", ts.rooms.Count())
	}
}

func TestFriendRoomFullRejectsThirdJoinAndRefunds(t *testing.T) {
	ts := newTestServer(t)
	defer ts.srv.Close()

	host := ts.dial(t)
	defer host.Close()
	sendFrame(t, host, "friend_create_room", models.FriendCreateRoomPayload{
		UserID:          "host",
		UserName:        "Host",
		RoomCoinValue:   10,
		RoomPlayersSize: 2,
	})
	codeFrame := recvUntil(t, host, "friend_room_code", 2*time.Second)
	var codePayload models.FriendRoomCodePayload
	if err := json.Unmarshal(codeFrame.Data, &codePayload); err != nil {
		t.Fatalf("unmarshal friend_room_code: %v", err)
	}
	recvUntil(t, host, "player_joined", 2*time.Second)

	guest := ts.dial(t)
	defer guest.Close()
	sendFrame(t, guest, "friend_join_room", models.FriendJoinRoomPayload{
		UserID:   "guest",
		UserName: "Guest",
		RoomCode: codePayload.RoomCode,
	})
	recvUntil(t, guest, "game_start", 2*time.Second)

	// A third player hitting the same code must be turned away and
	// refunded — the room is already full.
	late := ts.dial(t)
	defer late.Close()
	sendFrame(t, late, "friend_join_room", models.FriendJoinRoomPayload{
		UserID:   "latecomer",
		UserName: "Late",
		RoomCode: codePayload.RoomCode,
	})
	errFrame := recvUntil(t, late, "friend_error_response", 2*time.Second)
	var errPayload models.FriendErrorResponsePayload
	if err := json.Unmarshal(errFrame.Data, &errPayload); err != nil {
		t.Fatalf("unmarshal friend_error_response: %v", err)
	}
	if errPayload.Message == "" {
		t.Errorf("expected a non-empty rejection message")
	}

	updated, err := ts.users.Get(context.Background(), "latecomer")
	if err != nil {
		t.Fatalf("get latecomer: %v", err)
	}
	if updated.Coins != models.StartingCoins {
		t.Errorf("expected latecomer's bet to be refunded in full, got balance %d", updated.Coins)
	}
}
