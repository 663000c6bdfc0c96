package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallHappyPath(t *testing.T) {
	s := NewCallSession("alice", "bob", CallKindVideo)
	require.Equal(t, CallIdle, s.State)

	for _, next := range []CallState{CallOffering, CallRinging, CallConnected, CallEnded} {
		require.NoError(t, s.Transition(next))
	}
	assert.True(t, s.Over())
}

func TestCallDeclined(t *testing.T) {
	s := NewCallSession("alice", "bob", CallKindAudio)
	require.NoError(t, s.Transition(CallOffering))
	require.NoError(t, s.Transition(CallRinging))
	require.NoError(t, s.Transition(CallDeclined))
	assert.True(t, s.Over())

	// A declined call cannot be ended or revived.
	assert.Error(t, s.Transition(CallEnded))
	assert.Error(t, s.Transition(CallConnected))
}

func TestCallEndedFromAnyLiveState(t *testing.T) {
	for _, live := range []CallState{CallIdle, CallOffering, CallRinging, CallConnected} {
		s := &CallSession{State: live}
		assert.NoError(t, s.Transition(CallEnded), "from %s", live)
		assert.True(t, s.Over())
	}
}

func TestCallIllegalTransitions(t *testing.T) {
	cases := []struct {
		from CallState
		to   CallState
	}{
		{CallIdle, CallRinging},
		{CallIdle, CallConnected},
		{CallOffering, CallConnected},
		{CallOffering, CallDeclined},
		{CallConnected, CallRinging},
		{CallEnded, CallOffering},
		{CallEnded, CallEnded},
	}
	for _, tc := range cases {
		s := &CallSession{State: tc.from}
		assert.Error(t, s.Transition(tc.to), "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.from, s.State)
	}
}
