package service

import (
	"sort"
	"strings"
	"sync"
)

const roomKeySeparator = "-"

// RoomKey derives the chat room identifier for a pair of users: the two ids
// sorted lexicographically and joined, so both participants compute the
// same key no matter who initiates.
func RoomKey(userIDA, userIDB string) string {
	ids := []string{userIDA, userIDB}
	sort.Strings(ids)
	return strings.Join(ids, roomKeySeparator)
}

// RoomRouter subscribes connections to room broadcasts. Membership is
// transient: nothing is persisted, and a reconnecting client re-joins.
type RoomRouter struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

func NewRoomRouter() *RoomRouter {
	return &RoomRouter{
		rooms:  map[string]map[*Client]struct{}{},
		joined: map[*Client]map[string]struct{}{},
	}
}

// Join subscribes c to roomKey. Idempotent.
func (r *RoomRouter) Join(c *Client, roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomKey]; !ok {
		r.rooms[roomKey] = map[*Client]struct{}{}
	}
	r.rooms[roomKey][c] = struct{}{}
	if _, ok := r.joined[c]; !ok {
		r.joined[c] = map[string]struct{}{}
	}
	r.joined[c][roomKey] = struct{}{}
}

// Leave drops c from every room it joined.
func (r *RoomRouter) Leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomKey := range r.joined[c] {
		delete(r.rooms[roomKey], c)
		if len(r.rooms[roomKey]) == 0 {
			delete(r.rooms, roomKey)
		}
	}
	delete(r.joined, c)
}

// Broadcast delivers event to every connection joined to roomKey.
func (r *RoomRouter) Broadcast(roomKey, event string, payload any) {
	r.BroadcastExcept(roomKey, "", event, payload)
}

// BroadcastExcept skips the connection with the given id, used to avoid
// echoing typing indicators back at the sender.
func (r *RoomRouter) BroadcastExcept(roomKey, exceptConnID, event string, payload any) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.rooms[roomKey]))
	for c := range r.rooms[roomKey] {
		if exceptConnID != "" && c.ID == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Send(event, payload)
	}
}

// Members reports how many connections are joined to roomKey.
func (r *RoomRouter) Members(roomKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomKey])
}
