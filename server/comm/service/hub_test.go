package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	events []outEvent
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, v.(outEvent))
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) sent() []outEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outEvent(nil), f.events...)
}

func (f *fakeConn) eventNames() []string {
	names := []string{}
	for _, e := range f.sent() {
		names = append(names, e.Event)
	}
	return names
}

func (f *fakeConn) lastEvent(t *testing.T) outEvent {
	t.Helper()
	events := f.sent()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func TestAnnounceBroadcastsOnlineSet(t *testing.T) {
	hub := NewHub()
	connA, connB := &fakeConn{}, &fakeConn{}
	clientA, clientB := NewClient(connA), NewClient(connB)
	hub.Register(clientA)
	hub.Register(clientB)

	hub.Announce(clientA, "alice")

	for _, conn := range []*fakeConn{connA, connB} {
		last := conn.lastEvent(t)
		assert.Equal(t, "online-users", last.Event)
		assert.ElementsMatch(t, []string{"alice"}, last.Data)
	}
}

func TestUnregisterRemovesPresenceAndRooms(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	client := NewClient(conn)
	hub.Register(client)
	hub.Announce(client, "alice")
	hub.JoinRoom(client, "alice-bob")

	hub.Unregister(client)

	_, ok := hub.Presence().Lookup("alice")
	assert.False(t, ok)
	assert.Zero(t, hub.Rooms().Members("alice-bob"))
	assert.True(t, conn.closed)
}

func TestUnregisterStaleConnectionKeepsNewerAnnounce(t *testing.T) {
	hub := NewHub()
	oldConn, newConn := &fakeConn{}, &fakeConn{}
	oldClient, newClient := NewClient(oldConn), NewClient(newConn)
	hub.Register(oldClient)
	hub.Register(newClient)

	hub.Announce(oldClient, "alice")
	hub.Announce(newClient, "alice")

	// The stale disconnect must not evict the newer announce.
	hub.Unregister(oldClient)

	got, ok := hub.Presence().Lookup("alice")
	require.True(t, ok)
	assert.Same(t, newClient, got)

	last := newConn.lastEvent(t)
	assert.Equal(t, "online-users", last.Event)
	assert.ElementsMatch(t, []string{"alice"}, last.Data)
}

func TestToUserSkipsOfflineUser(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	client := NewClient(conn)
	hub.Register(client)
	hub.Announce(client, "alice")

	hub.ToUser("bob", "message-created", map[string]string{"id": "m1"})

	for _, e := range conn.sent() {
		assert.NotEqual(t, "message-created", e.Event)
	}
}

func TestToRoomReachesOnlyJoinedConnections(t *testing.T) {
	hub := NewHub()
	inRoom, outOfRoom := &fakeConn{}, &fakeConn{}
	clientIn, clientOut := NewClient(inRoom), NewClient(outOfRoom)
	hub.Register(clientIn)
	hub.Register(clientOut)
	hub.JoinRoom(clientIn, "alice-bob")

	hub.ToRoom("alice-bob", "message-created", map[string]string{"id": "m1"})

	assert.Contains(t, inRoom.eventNames(), "message-created")
	assert.NotContains(t, outOfRoom.eventNames(), "message-created")
}
