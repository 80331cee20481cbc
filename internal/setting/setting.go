// Package setting stores the boolean user preferences the auto-pause
// engine reads, and exposes each as a change-notifying stream.
package setting

// Setting identifies one boolean preference and the value it has until the
// user changes it.
type Setting struct {
	Key     string
	Default bool
}

var (
	// PlayInBackground keeps playback running while the app is not visible.
	PlayInBackground = Setting{Key: "play_in_background", Default: false}
	// AutoPauseDuringCalls pauses playback while a phone call is ringing
	// or in progress.
	AutoPauseDuringCalls = Setting{Key: "auto_pause_during_calls", Default: false}
)

// Known returns the settings the application declares.
func Known() []Setting {
	return []Setting{PlayInBackground, AutoPauseDuringCalls}
}
