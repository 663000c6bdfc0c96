package service

import (
	"encoding/json"

	"matri_server/server/comm/domain"
	commonlog "matri_server/server/common/log"
)

// Relay forwards call-signaling events between two users, addressed by
// identity through the presence registry. It holds no call state and
// enforces no state machine; an event for an offline user is dropped, the
// caller's client is expected to time out locally.
type Relay struct {
	presence *Presence
}

func NewRelay(presence *Presence) *Relay {
	return &Relay{presence: presence}
}

func (r *Relay) forward(toUserID, event string, payload any) {
	c, ok := r.presence.Lookup(toUserID)
	if !ok {
		commonlog.Debugf("event=call_relay action=forward status=dropped ws_event=%s to_user_id=%s", event, toUserID)
		return
	}
	c.Send(event, payload)
}

func (r *Relay) Initiate(callerID, calleeID string, offer json.RawMessage, kind domain.CallKind) {
	r.forward(calleeID, "call-incoming", map[string]any{
		"from_user_id": callerID,
		"offer":        offer,
		"kind":         kind,
	})
}

func (r *Relay) Answer(calleeID, callerID string, answer json.RawMessage) {
	r.forward(callerID, "call-accepted", map[string]any{"answer": answer})
}

func (r *Relay) RelayIceCandidate(fromID, toID string, candidate json.RawMessage) {
	r.forward(toID, "ice-candidate", map[string]any{"candidate": candidate})
}

func (r *Relay) Terminate(fromID, toID string) {
	r.forward(toID, "call-terminate", map[string]string{"from_user_id": fromID})
}

func (r *Relay) Decline(calleeID, callerID string) {
	r.forward(callerID, "call-declined", map[string]string{"from_user_id": calleeID})
}
