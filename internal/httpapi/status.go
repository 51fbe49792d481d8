// Package httpapi implements the small HTTP surface alongside the
// websocket transport: a liveness root and a /status probe, in the
// teacher's gin-handler style.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ludoserver/internal/room"
	"ludoserver/internal/store"
	"ludoserver/internal/ws"
)

type StatusHandler struct {
	rooms *room.Registry
	hub   *ws.Hub
	users store.UserStore
}

func NewStatusHandler(rooms *room.Registry, hub *ws.Hub, users store.UserStore) *StatusHandler {
	return &StatusHandler{rooms: rooms, hub: hub, users: users}
}

func (h *StatusHandler) Liveness(c *gin.Context) {
	c.String(http.StatusOK, "ludoserver is running")
}

func (h *StatusHandler) Status(c *gin.Context) {
	users, err := h.users.ListAll(c.Request.Context())
	userCount := 0
	if err == nil {
		userCount = len(users)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"rooms":       h.rooms.Count(),
		"users":       userCount,
		"connections": h.hub.ConnectionCount(),
	})
}
