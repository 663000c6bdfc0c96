package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	commonlog "matri_server/server/common/log"
)

// Conn is the write side of one transport session. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one live connection. Writes are serialized by a per-client
// mutex because fan-out happens from many goroutines at once.
type Client struct {
	ID   string
	conn Conn
	mu   sync.Mutex
}

func NewClient(conn Conn) *Client {
	return &Client{ID: uuid.NewString(), conn: conn}
}

type outEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Send delivers one event on this connection. Failures are advisory: a
// broken connection surfaces on its own read loop, so errors are only
// logged here.
func (c *Client) Send(event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(outEvent{Event: event, Data: data}); err != nil {
		commonlog.Debugf("event=ws_send status=failed conn_id=%s ws_event=%s error=%v", c.ID, event, err)
	}
}

func (c *Client) Close() {
	_ = c.conn.Close()
}

const commEventsChannel = "comm:events"

type hubEvent struct {
	Kind       string          `json:"kind"`
	RoomKey    string          `json:"room_key,omitempty"`
	UserID     string          `json:"user_id,omitempty"`
	ExceptConn string          `json:"except_conn,omitempty"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
}

// Hub is the fan-out engine: it tracks every live connection, owns the
// presence registry and the room router, and dispatches events to rooms,
// users, or everyone. With a Redis client attached, events go through
// pub/sub so several instances converge; without one, dispatch stays local.
type Hub struct {
	presence *Presence
	rooms    *RoomRouter

	mu    sync.RWMutex
	conns map[*Client]struct{}

	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
}

func NewHub() *Hub {
	return &Hub{
		presence: NewPresence(),
		rooms:    NewRoomRouter(),
		conns:    map[*Client]struct{}{},
	}
}

func (h *Hub) Presence() *Presence { return h.presence }
func (h *Hub) Rooms() *RoomRouter  { return h.rooms }

func (h *Hub) UseRedis(client *redis.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
}

func (h *Hub) StartRedisSubscriber(ctx context.Context) error {
	h.mu.Lock()
	if h.redis == nil {
		h.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if h.redisSub != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := h.redis.Subscribe(subCtx, commEventsChannel)
	h.redisSub = sub
	h.subCancel = cancel
	h.mu.Unlock()

	go h.consumeEvents(subCtx, sub)
	return nil
}

func (h *Hub) StopRedisSubscriber() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
}

// Register adds a freshly upgraded connection. Identity arrives later via
// Announce.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// Unregister tears a connection down: presence entry (if still owned by
// this connection), room subscriptions, and the connection itself. A
// presence change re-broadcasts the online set.
func (h *Hub) Unregister(c *Client) {
	userID, removed := h.presence.Disconnect(c)
	h.rooms.Leave(c)

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.Close()

	if removed {
		commonlog.Infof("event=presence action=disconnect user_id=%s conn_id=%s", userID, c.ID)
		h.broadcastOnlineSet()
	}
}

// Announce binds the user identity to the connection (last writer wins)
// and broadcasts the new online set to every connection.
func (h *Hub) Announce(c *Client, userID string) {
	h.presence.Announce(userID, c)
	commonlog.Infof("event=presence action=announce user_id=%s conn_id=%s", userID, c.ID)
	h.broadcastOnlineSet()
}

func (h *Hub) JoinRoom(c *Client, roomKey string) {
	h.rooms.Join(c, roomKey)
}

func (h *Hub) broadcastOnlineSet() {
	h.ToAll("online-users", h.presence.OnlineSet())
}

// ToRoom delivers one event to every connection joined to roomKey.
func (h *Hub) ToRoom(roomKey, event string, payload any) {
	if h.publish(hubEvent{Kind: "to_room", RoomKey: roomKey, Event: event}, payload) {
		return
	}
	h.rooms.Broadcast(roomKey, event, payload)
}

// ToRoomExcept is ToRoom minus the originating connection, used for typing
// indicators.
func (h *Hub) ToRoomExcept(roomKey, exceptConnID, event string, payload any) {
	if h.publish(hubEvent{Kind: "to_room", RoomKey: roomKey, ExceptConn: exceptConnID, Event: event}, payload) {
		return
	}
	h.rooms.BroadcastExcept(roomKey, exceptConnID, event, payload)
}

// ToUser delivers one event to the user's current connection, if any. An
// offline user is silently skipped; there is no durable queue.
func (h *Hub) ToUser(userID, event string, payload any) {
	if h.publish(hubEvent{Kind: "to_user", UserID: userID, Event: event}, payload) {
		return
	}
	h.toUserLocal(userID, event, payload)
}

// ToAll delivers one event to every live connection.
func (h *Hub) ToAll(event string, payload any) {
	if h.publish(hubEvent{Kind: "to_all", Event: event}, payload) {
		return
	}
	h.toAllLocal(event, payload)
}

func (h *Hub) toUserLocal(userID, event string, payload any) {
	if c, ok := h.presence.Lookup(userID); ok {
		c.Send(event, payload)
	}
}

func (h *Hub) toAllLocal(event string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Send(event, payload)
	}
}

// publish hands the event to Redis pub/sub. It reports false when Redis is
// not configured or the publish failed, in which case the caller falls back
// to local dispatch.
func (h *Hub) publish(event hubEvent, payload any) bool {
	h.mu.RLock()
	redisClient := h.redis
	h.mu.RUnlock()
	if redisClient == nil {
		return false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	event.Payload = raw
	b, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if err := redisClient.Publish(context.Background(), commEventsChannel, b).Err(); err != nil {
		commonlog.Errorf("event=comm_hub action=publish status=failed kind=%s ws_event=%s error=%v", event.Kind, event.Event, err)
		return false
	}
	return true
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var event hubEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		var payload any
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			continue
		}
		switch event.Kind {
		case "to_room":
			if event.ExceptConn != "" {
				h.rooms.BroadcastExcept(event.RoomKey, event.ExceptConn, event.Event, payload)
			} else {
				h.rooms.Broadcast(event.RoomKey, event.Event, payload)
			}
		case "to_user":
			h.toUserLocal(event.UserID, event.Event, payload)
		case "to_all":
			h.toAllLocal(event.Event, payload)
		}
	}
}
