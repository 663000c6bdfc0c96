package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomKeyCommutative(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"alice", "bob", "alice-bob"},
		{"bob", "alice", "alice-bob"},
		{"u2", "u10", "u10-u2"},
		{"same", "same", "same-same"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RoomKey(tc.a, tc.b))
		assert.Equal(t, RoomKey(tc.a, tc.b), RoomKey(tc.b, tc.a))
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRoomRouter()
	c := NewClient(&fakeConn{})

	r.Join(c, "alice-bob")
	r.Join(c, "alice-bob")

	assert.Equal(t, 1, r.Members("alice-bob"))
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	r := NewRoomRouter()
	senderConn, peerConn := &fakeConn{}, &fakeConn{}
	sender, peer := NewClient(senderConn), NewClient(peerConn)
	r.Join(sender, "alice-bob")
	r.Join(peer, "alice-bob")

	r.BroadcastExcept("alice-bob", sender.ID, "typing-start", typingPayload{RoomKey: "alice-bob", UserID: "alice"})

	assert.Empty(t, senderConn.sent())
	assert.Contains(t, peerConn.eventNames(), "typing-start")
}

func TestLeaveDropsAllRooms(t *testing.T) {
	r := NewRoomRouter()
	c := NewClient(&fakeConn{})
	r.Join(c, "alice-bob")
	r.Join(c, "alice-carol")

	r.Leave(c)

	assert.Zero(t, r.Members("alice-bob"))
	assert.Zero(t, r.Members("alice-carol"))
}
