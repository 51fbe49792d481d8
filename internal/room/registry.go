// Package room implements the Room Registry, matchmaking, and the
// per-room state machine. Every Room is owned exclusively by its own
// mailbox goroutine; the Registry itself only tracks which *Room exists
// under which id and hands out references — it never reaches into a
// Room's fields directly.
package room

import (
	"sync"

	"github.com/google/uuid"

	"ludoserver/internal/idgen"
	"ludoserver/internal/models"
)

// Registry is the concurrency-safe map of room id to live Room, generalizing
// the teacher's unguarded activeGames map with an explicit mutex.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	order []string // insertion order, for earliest-open-first matchmaking
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

func (r *Registry) Get(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func (r *Registry) put(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room.ID()]; !exists {
		r.order = append(r.order, room.ID())
	}
	r.rooms[room.ID()] = room
}

// Remove deletes a room from the registry. Called only by the room's own
// destroy timer when it self-destructs.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, roomID)
	for i, id := range r.order {
		if id == roomID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// FindAvailable returns the first non-friend room matching exactly on
// betAmount and maxPlayers that still has a free seat, scanning in
// insertion order — earliest-open-first, no load balancing.
func (r *Registry) FindAvailable(betAmount int64, maxPlayers int) (*Room, bool) {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	for _, id := range ids {
		r.mu.RLock()
		room, ok := r.rooms[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if room.matches(betAmount, maxPlayers) {
			return room, true
		}
	}
	return nil, false
}

// FindByCode returns the friend room with the given room code, if any.
func (r *Registry) FindByCode(code string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range r.rooms {
		if room.isFriendCode(code) {
			return room, true
		}
	}
	return nil, false
}

// CreateRoom allocates a fresh Room, starts its mailbox goroutine, and
// registers it. code is empty for matchmade rooms.
func (r *Registry) CreateRoom(hostUserID string, betAmount int64, maxPlayers int, isFriend bool, code string, deps Deps) *Room {
	roomID := uuid.NewString()
	if isFriend && code == "" {
		code = newRoomCode()
	}

	room := newRoom(roomID, hostUserID, betAmount, maxPlayers, isFriend, code, deps, r)
	r.put(room)
	return room
}

// Snapshot returns a defensive shallow copy of all live rooms.
func (r *Registry) Snapshot() []*models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.Snapshot())
	}
	return out
}

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func newRoomCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = roomCodeAlphabet[idgen.Index(len(roomCodeAlphabet))]
	}
	return string(b)
}
