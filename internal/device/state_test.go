package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateStarting, true},
		{StateIdle, StateActive, false},
		{StateIdle, StateCancelling, false},
		{StateStarting, StateAwaitingBestAP, true},
		{StateAwaitingBestAP, StateAssociating, true},
		{StateAwaitingBestAP, StateConfiguringIP, false},
		{StateAssociating, StateAssociating, true},
		{StateAssociating, StateConfiguringIP, true},
		{StateNegotiatingKey, StateAssociating, true},
		{StateNegotiatingKey, StateActive, false},
		{StateConfiguringIP, StateActive, true},
		{StateActive, StateCancelling, true},
		{StateActive, StateAssociating, false},
		{StateCancelling, StateIdle, true},
		{StateCancelling, StateFailed, false},
		{StateFailed, StateStarting, true},
		{StateFailed, StateActive, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEveryActivatingStateCanCancel(t *testing.T) {
	for s := StateIdle; s <= StateFailed; s++ {
		if !s.Activating() || s == StateCancelling {
			continue
		}
		assert.True(t, s.CanTransition(StateCancelling), "%s", s)
		assert.True(t, s.CanTransition(StateFailed), "%s", s)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting best ap", StateAwaitingBestAP.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "key-requested", EventKeyRequested.String())
}

func TestScanAllowed(t *testing.T) {
	assert.True(t, StateIdle.scanAllowed())
	assert.True(t, StateNegotiatingKey.scanAllowed())
	assert.False(t, StateAssociating.scanAllowed())
	assert.False(t, StateConfiguringIP.scanAllowed())
}

func TestTransitionPublishes(t *testing.T) {
	f := newFixture(t, nil, fastConfig())
	assert.False(t, f.dev.transition(StateActive))
	assert.Equal(t, 0, f.events.count(EventStateChanged))

	assert.True(t, f.dev.transition(StateStarting))
	assert.True(t, f.dev.transition(StateStarting))
	assert.Equal(t, 1, f.events.count(EventStateChanged))
	assert.Equal(t, StateStarting, f.dev.State())
}
