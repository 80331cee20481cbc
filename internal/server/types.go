// Package server provides the HTTP control API for the simulated device.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// UpdateSettingRequest is the HTTP request body for changing a setting.
type UpdateSettingRequest struct {
	// Value is the new setting value.
	Value *bool `json:"value" validate:"required"`
}

// SettingResponse is the HTTP response for a single setting.
type SettingResponse struct {
	// Key is the setting key.
	Key string `json:"key"`
	// Value is the current setting value.
	Value bool `json:"value"`
}

// SettingsResponse is the HTTP response listing every setting.
type SettingsResponse struct {
	// Settings maps setting keys to their current values.
	Settings map[string]bool `json:"settings"`
}

// UpdatePermissionRequest is the HTTP request body for granting or
// revoking the read-phone-state permission.
type UpdatePermissionRequest struct {
	// Granted is the new grant.
	Granted *bool `json:"granted" validate:"required"`
}

// PermissionResponse is the HTTP response describing the permission.
type PermissionResponse struct {
	// Permission is the permission name.
	Permission string `json:"permission"`
	// Granted is the current grant.
	Granted bool `json:"granted"`
}

// UpdateCallStateRequest is the HTTP request body for driving the
// simulated telephony state.
type UpdateCallStateRequest struct {
	// State is one of "idle", "ringing" or "offhook".
	State string `json:"state" validate:"required,max=16"`
	// Number is the optional incoming number shown to legacy listeners.
	Number string `json:"number" validate:"omitempty,max=32"`
}

// CallStateResponse is the HTTP response after a call state change.
type CallStateResponse struct {
	// State is the platform call state.
	State string `json:"state"`
	// Event is the normalized call event.
	Event string `json:"event"`
}

// LifecycleResponse is the HTTP response after a host lifecycle change.
type LifecycleResponse struct {
	// Active reports whether the host is in the foreground.
	Active bool `json:"active"`
	// Changed is false when the host was already in the requested state.
	Changed bool `json:"changed"`
}

// PlaybackResponse is the HTTP response describing playback state.
type PlaybackResponse struct {
	// Paused reports whether any pause condition is active.
	Paused bool `json:"paused"`
	// Conditions lists the active pause conditions.
	Conditions []string `json:"conditions"`
	// HostActive reports whether the host is in the foreground.
	HostActive bool `json:"host_active"`
	// Monitoring is the auto-pause engine state.
	Monitoring string `json:"monitoring"`
	// CallState is the current platform call state.
	CallState string `json:"call_state"`
}

// DecisionMessage is the websocket message sent for every pause decision.
type DecisionMessage struct {
	// Type is always "decision".
	Type string `json:"type"`
	// Key names the pause condition.
	Key string `json:"key"`
	// Active reports whether the condition requires pausing.
	Active bool `json:"active"`
	// Paused is the overall playback state after the decision.
	Paused bool `json:"paused"`
	// At is when the decision was made.
	At time.Time `json:"at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
