package service

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"matri_server/server/comm/domain"
	commonlog "matri_server/server/common/log"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// RealtimeService owns the event transport: one long-lived connection per
// client, one reader goroutine per connection.
type RealtimeService struct {
	hub    *Hub
	typing *TypingNotifier
	relay  *Relay
}

func NewRealtimeService(hub *Hub, typing *TypingNotifier, relay *Relay) *RealtimeService {
	return &RealtimeService{hub: hub, typing: typing, relay: relay}
}

type inEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// HandleWS upgrades the request and runs the connection's read loop until
// the transport closes. authUserID is the pre-validated identity from the
// identity gate; when present it overrides whatever the client announces.
func (s *RealtimeService) HandleWS(c *gin.Context, authUserID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := NewClient(conn)
	s.hub.Register(client)
	defer s.hub.Unregister(client)

	announcedUserID := ""
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env inEvent
		if err := json.Unmarshal(raw, &env); err != nil {
			commonlog.Debugf("event=ws_read status=skipped conn_id=%s error=%v", client.ID, err)
			continue
		}
		s.dispatch(client, env, authUserID, &announcedUserID)
	}
}

func (s *RealtimeService) dispatch(client *Client, env inEvent, authUserID string, announcedUserID *string) {
	switch env.Event {
	case "announce":
		var data struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}
		userID := strings.TrimSpace(data.UserID)
		if authUserID != "" {
			userID = authUserID
		}
		if userID == "" {
			return
		}
		*announcedUserID = userID
		s.hub.Announce(client, userID)

	case "join-room":
		var data struct {
			RoomKey string `json:"room_key"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.RoomKey == "" {
			return
		}
		s.hub.JoinRoom(client, data.RoomKey)

	case "typing-start", "typing-stop":
		var data struct {
			RoomKey string `json:"room_key"`
			UserID  string `json:"user_id"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.RoomKey == "" {
			return
		}
		userID := s.identity(authUserID, *announcedUserID, data.UserID)
		if env.Event == "typing-start" {
			s.typing.NotifyTyping(data.RoomKey, userID, client.ID)
		} else {
			s.typing.NotifyStopTyping(data.RoomKey, userID, client.ID)
		}

	case "call-initiate":
		var data struct {
			ToUserID   string          `json:"to_user_id"`
			FromUserID string          `json:"from_user_id"`
			Offer      json.RawMessage `json:"offer"`
			Kind       domain.CallKind `json:"kind"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ToUserID == "" {
			return
		}
		callerID := s.identity(authUserID, *announcedUserID, data.FromUserID)
		s.relay.Initiate(callerID, data.ToUserID, data.Offer, data.Kind)

	case "call-answer":
		var data struct {
			ToUserID string          `json:"to_user_id"`
			Answer   json.RawMessage `json:"answer"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ToUserID == "" {
			return
		}
		s.relay.Answer(s.identity(authUserID, *announcedUserID, ""), data.ToUserID, data.Answer)

	case "ice-candidate":
		var data struct {
			ToUserID  string          `json:"to_user_id"`
			Candidate json.RawMessage `json:"candidate"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ToUserID == "" {
			return
		}
		s.relay.RelayIceCandidate(s.identity(authUserID, *announcedUserID, ""), data.ToUserID, data.Candidate)

	case "call-terminate":
		var data struct {
			ToUserID string `json:"to_user_id"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ToUserID == "" {
			return
		}
		s.relay.Terminate(s.identity(authUserID, *announcedUserID, ""), data.ToUserID)

	case "call-declined":
		var data struct {
			ToUserID string `json:"to_user_id"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ToUserID == "" {
			return
		}
		s.relay.Decline(s.identity(authUserID, *announcedUserID, ""), data.ToUserID)

	default:
		commonlog.Debugf("event=ws_dispatch status=unknown conn_id=%s ws_event=%s", client.ID, env.Event)
	}
}

// identity picks the strongest available sender identity: the gate's, then
// the announced one, then whatever the payload claims.
func (s *RealtimeService) identity(authUserID, announcedUserID, claimed string) string {
	if authUserID != "" {
		return authUserID
	}
	if announcedUserID != "" {
		return announcedUserID
	}
	return strings.TrimSpace(claimed)
}
