package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	// Device simulation
	mux.HandleFunc("GET /settings", h.ListSettings)
	mux.HandleFunc("PUT /settings/{key}", h.UpdateSetting)
	mux.HandleFunc("PUT /permission", h.UpdatePermission)
	mux.HandleFunc("PUT /call-state", h.UpdateCallState)
	mux.HandleFunc("POST /lifecycle/foreground", h.Foreground)
	mux.HandleFunc("POST /lifecycle/background", h.Background)

	// Playback
	mux.HandleFunc("GET /playback", h.GetPlayback)
	mux.HandleFunc("GET /events", h.Events)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
