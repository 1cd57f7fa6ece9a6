package ws

import "sync"

// Room names clients can join.
const (
	RoomFleetAll = "fleet:all"
	RoomAlerts   = "alerts"
)

// VehicleRoom returns the room for a single vehicle.
func VehicleRoom(vin string) string {
	return "vehicle:" + vin
}

// FleetRoom returns the room for a fleet; an empty id means the whole fleet.
func FleetRoom(fleetID string) string {
	if fleetID == "" {
		return RoomFleetAll
	}
	return "fleet:" + fleetID
}

// Hub tracks connections and their room memberships.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Connection]map[string]struct{}
	rooms map[string]map[*Connection]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*Connection]map[string]struct{}),
		rooms: make(map[string]map[*Connection]struct{}),
	}
}

// Add registers a connection with no rooms.
func (h *Hub) Add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		h.conns[c] = make(map[string]struct{})
	}
}

// Remove drops a connection from every room.
func (h *Hub) Remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.conns[c] {
		h.leaveLocked(c, room)
	}
	delete(h.conns, c)
}

// Join adds a registered connection to a room.
func (h *Hub) Join(c *Connection, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.conns[c]
	if !ok {
		return false
	}
	joined[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Connection]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	return true
}

// Leave removes a connection from a room.
func (h *Hub) Leave(c *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Connection, room string) {
	if joined, ok := h.conns[c]; ok {
		delete(joined, room)
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast queues msg once for every connection in any of the rooms and returns how many
// connections accepted it.
func (h *Hub) Broadcast(rooms []string, msg []byte) int {
	h.mu.RLock()
	targets := make(map[*Connection]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for c := range targets {
		if c.Send(msg) {
			delivered++
		}
	}
	return delivered
}

// Clients returns the number of registered connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomSize returns the number of members in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
