package service

// TypingNotifier relays ephemeral typing-state changes to a room, skipping
// the sender's own connection. Nothing is persisted and no server-side
// debounce is applied; clients emit stop-typing from their own idle timers.
type TypingNotifier struct {
	hub *Hub
}

func NewTypingNotifier(hub *Hub) *TypingNotifier {
	return &TypingNotifier{hub: hub}
}

type typingPayload struct {
	RoomKey string `json:"room_key"`
	UserID  string `json:"user_id"`
}

func (n *TypingNotifier) NotifyTyping(roomKey, userID, senderConnID string) {
	n.hub.ToRoomExcept(roomKey, senderConnID, "typing-start", typingPayload{RoomKey: roomKey, UserID: userID})
}

func (n *TypingNotifier) NotifyStopTyping(roomKey, userID, senderConnID string) {
	n.hub.ToRoomExcept(roomKey, senderConnID, "typing-stop", typingPayload{RoomKey: roomKey, UserID: userID})
}
