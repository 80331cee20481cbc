package callstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		state    State
		expected Event
	}{
		{StateRinging, EventActive},
		{StateOffHook, EventActive},
		{StateIdle, EventInactive},
		{State("CONFERENCE"), EventInactive},
		{State(""), EventInactive},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.state))
		})
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		input    string
		expected State
	}{
		{"idle", StateIdle},
		{"IDLE", StateIdle},
		{"Ringing", StateRinging},
		{"offhook", StateOffHook},
		{"off_hook", StateOffHook},
		{" off-hook ", StateOffHook},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseState(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("unknown state", func(t *testing.T) {
		_, err := ParseState("dialing")
		assert.ErrorIs(t, err, ErrUnknownState)
	})
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "ACTIVE", EventActive.String())
	assert.Equal(t, "INACTIVE", EventInactive.String())
}
