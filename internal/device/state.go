package device

import (
	"fmt"
	"slices"
)

// State is the activation state of a Device.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateAwaitingBestAP
	StateAdHocCreate
	StateAssociating
	StateNegotiatingKey
	StateConfiguringIP
	StateActive
	StateCancelling
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAwaitingBestAP:
		return "awaiting best ap"
	case StateAdHocCreate:
		return "creating ad-hoc"
	case StateAssociating:
		return "associating"
	case StateNegotiatingKey:
		return "negotiating key"
	case StateConfiguringIP:
		return "configuring ip"
	case StateActive:
		return "active"
	case StateCancelling:
		return "cancelling"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Activating reports whether an activation worker is working towards Active.
func (s State) Activating() bool {
	switch s {
	case StateStarting, StateAwaitingBestAP, StateAdHocCreate, StateAssociating,
		StateNegotiatingKey, StateConfiguringIP, StateCancelling:
		return true
	}
	return false
}

// scanAllowed reports whether a hardware scan may reconfigure the radio.
func (s State) scanAllowed() bool {
	switch s {
	case StateIdle, StateFailed, StateAwaitingBestAP, StateNegotiatingKey, StateActive:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateIdle:           {StateStarting},
	StateStarting:       {StateAwaitingBestAP, StateCancelling, StateFailed},
	StateAwaitingBestAP: {StateAdHocCreate, StateAssociating, StateNegotiatingKey, StateCancelling, StateFailed},
	StateAdHocCreate:    {StateConfiguringIP, StateAwaitingBestAP, StateCancelling, StateFailed},
	StateAssociating:    {StateNegotiatingKey, StateConfiguringIP, StateAssociating, StateAwaitingBestAP, StateCancelling, StateFailed},
	StateNegotiatingKey: {StateAssociating, StateAwaitingBestAP, StateCancelling, StateFailed},
	StateConfiguringIP:  {StateActive, StateAssociating, StateNegotiatingKey, StateAwaitingBestAP, StateCancelling, StateFailed},
	StateActive:         {StateIdle, StateStarting, StateCancelling, StateFailed},
	StateCancelling:     {StateIdle},
	StateFailed:         {StateIdle, StateStarting},
}

// CanTransition reports whether to is a legal successor of s.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}
