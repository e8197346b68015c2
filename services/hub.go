package services

import (
	"log"
	"sync"
)

// Real-time event names shared by the websocket surface and broadcasts.
const (
	EventJoinedRoom   = "joinedRoom"
	EventMatchStarted = "matchStarted"
	EventMatchUpdated = "matchUpdated"
	EventError        = "error"
)

// Event is the wire envelope for every server→client message.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// RoomConn is the slice of a websocket connection the hub needs. The handler
// wraps the real connection with a write lock before registering it.
type RoomConn interface {
	WriteJSON(v interface{}) error
}

// Hub tracks room membership per match and fans state-change events out to
// every subscriber. Broadcasts happen while the per-match lock is held, so
// delivery within one room follows the server-side mutation order.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[RoomConn]string // conn → user id
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[RoomConn]string)}
}

// JoinRoom subscribes a connection to one match's updates.
func (h *Hub) JoinRoom(room string, conn RoomConn, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[RoomConn]string)
		h.rooms[room] = members
	}
	members[conn] = userID
}

// LeaveRoom unsubscribes a connection from one room.
func (h *Hub) LeaveRoom(room string, conn RoomConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(room, conn)
}

// LeaveAll removes a disconnected client from every room. Match state and
// armed timers are untouched: a disconnected player can still be timed out.
func (h *Hub) LeaveAll(conn RoomConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.rooms {
		h.dropLocked(room, conn)
	}
}

func (h *Hub) dropLocked(room string, conn RoomConn) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast delivers an event to every subscriber of a room. Write failures
// are logged and skipped; the read loop notices the dead connection and
// unregisters it.
func (h *Hub) Broadcast(room, event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, userID := range h.rooms[room] {
		if err := conn.WriteJSON(Event{Event: event, Data: payload}); err != nil {
			log.Printf("[HUB] write to %s in %s failed: %v", userID, room, err)
		}
	}
}

// RoomSize reports the subscriber count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
