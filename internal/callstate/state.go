// Package callstate turns the platform's telephony state into normalized call
// events. It hides the two platform listener generations behind a single
// Source and owns the one live registration through Manager.
package callstate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownState is returned when a call state string cannot be parsed.
var ErrUnknownState = errors.New("unknown call state")

// State is the raw call state reported by the platform.
type State string

const (
	// StateIdle means no call is ringing or in progress.
	StateIdle State = "IDLE"
	// StateRinging means an incoming call is ringing.
	StateRinging State = "RINGING"
	// StateOffHook means a call is dialing, active or on hold.
	StateOffHook State = "OFFHOOK"
)

// ParseState converts a case-insensitive state name into a State.
// "off_hook" and "off-hook" are accepted as aliases of "offhook".
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle":
		return StateIdle, nil
	case "ringing":
		return StateRinging, nil
	case "offhook", "off_hook", "off-hook":
		return StateOffHook, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
}

// Event is the normalized two-valued call signal.
type Event int

const (
	// EventInactive means no call requires playback to pause.
	EventInactive Event = iota
	// EventActive means a call is ringing or off-hook.
	EventActive
)

// String returns a readable name for the event.
func (e Event) String() string {
	if e == EventActive {
		return "ACTIVE"
	}
	return "INACTIVE"
}

// Normalize maps a platform state to an Event. Ringing and off-hook are
// active; idle and any state the platform may add later are inactive.
func Normalize(s State) Event {
	switch s {
	case StateRinging, StateOffHook:
		return EventActive
	default:
		return EventInactive
	}
}
