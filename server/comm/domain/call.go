package domain

import "fmt"

type CallKind string

const (
	CallKindAudio CallKind = "audio"
	CallKindVideo CallKind = "video"
)

type CallState string

const (
	CallIdle      CallState = "idle"
	CallOffering  CallState = "offering"
	CallRinging   CallState = "ringing"
	CallConnected CallState = "connected"
	CallDeclined  CallState = "declined"
	CallEnded     CallState = "ended"
)

// callTransitions is the set of legal state changes for one call attempt.
// A terminate is legal from any live state, so it is handled separately.
var callTransitions = map[CallState][]CallState{
	CallIdle:     {CallOffering},
	CallOffering: {CallRinging},
	CallRinging:  {CallConnected, CallDeclined},
}

// CallSession is the ephemeral state of one call attempt. The relay never
// stores these; clients (and relay tests) use it to enforce legal
// transitions.
type CallSession struct {
	CallerID string
	CalleeID string
	Kind     CallKind
	State    CallState
}

func NewCallSession(callerID, calleeID string, kind CallKind) *CallSession {
	return &CallSession{CallerID: callerID, CalleeID: calleeID, Kind: kind, State: CallIdle}
}

// Transition advances the session to next, rejecting anything outside the
// state machine. Ending is always allowed while the call is live.
func (s *CallSession) Transition(next CallState) error {
	if next == CallEnded {
		if s.State == CallEnded || s.State == CallDeclined {
			return fmt.Errorf("call already over in state %q", s.State)
		}
		s.State = CallEnded
		return nil
	}
	for _, allowed := range callTransitions[s.State] {
		if allowed == next {
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal call transition %q -> %q", s.State, next)
}

// Over reports whether the call attempt reached a terminal state.
func (s *CallSession) Over() bool {
	return s.State == CallEnded || s.State == CallDeclined
}
