package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/maauso/callpause/internal/callstate"
	"github.com/maauso/callpause/internal/host"
	"github.com/maauso/callpause/internal/permission"
	"github.com/maauso/callpause/internal/playback"
	"github.com/maauso/callpause/internal/setting"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 5 * time.Second
	// eventBuffer is the number of decisions queued per websocket client.
	eventBuffer = 32
)

// Deps are the components the handlers drive and report on.
type Deps struct {
	Settings   *setting.Store
	Permission *permission.Toggle
	Phone      *callstate.Simulator
	Host       *host.Service
	Playback   *playback.Controller
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	deps      Deps
	validator *validator.Validate
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithCheckOrigin sets the origin check for websocket upgrades.
func WithCheckOrigin(fn func(r *http.Request) bool) HandlerOption {
	return func(h *Handlers) {
		h.upgrader.CheckOrigin = fn
	}
}

// AllowOrigins returns an origin check accepting requests without an
// Origin header and those whose origin is listed. "*" accepts any origin.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		deps:      deps,
		validator: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListSettings handles GET /settings requests.
func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: h.deps.Settings.All()})
}

// UpdateSetting handles PUT /settings/{key} requests.
func (h *Handlers) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "setting key is required", "MISSING_SETTING_KEY")
		return
	}

	var req UpdateSettingRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.deps.Settings.Set(r.Context(), key, *req.Value); err != nil {
		if errors.Is(err, setting.ErrUnknownSetting) {
			writeError(w, http.StatusNotFound, "setting not found", "SETTING_NOT_FOUND")
			return
		}
		h.logger.Error("failed to update setting",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to persist setting", "SETTING_PERSIST_FAILED")
		return
	}

	h.logger.Info("setting updated",
		slog.String("key", key),
		slog.Bool("value", *req.Value),
	)
	writeJSON(w, http.StatusOK, SettingResponse{Key: key, Value: *req.Value})
}

// UpdatePermission handles PUT /permission requests.
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	var req UpdatePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.deps.Permission.Set(*req.Granted)
	h.logger.Info("permission updated",
		slog.String("permission", permission.ReadPhoneState),
		slog.Bool("granted", *req.Granted),
	)
	writeJSON(w, http.StatusOK, PermissionResponse{
		Permission: permission.ReadPhoneState,
		Granted:    h.deps.Permission.Granted(r.Context()),
	})
}

// UpdateCallState handles PUT /call-state requests.
func (h *Handlers) UpdateCallState(w http.ResponseWriter, r *http.Request) {
	var req UpdateCallStateRequest
	if !h.decode(w, r, &req) {
		return
	}

	state, err := callstate.ParseState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_CALL_STATE")
		return
	}

	h.deps.Phone.SetState(state, req.Number)
	h.logger.Info("call state changed", slog.String("state", string(state)))
	writeJSON(w, http.StatusOK, CallStateResponse{
		State: string(state),
		Event: callstate.Normalize(state).String(),
	})
}

// Foreground handles POST /lifecycle/foreground requests.
func (h *Handlers) Foreground(w http.ResponseWriter, r *http.Request) {
	changed := h.deps.Host.Foreground()
	writeJSON(w, http.StatusOK, LifecycleResponse{Active: h.deps.Host.Active(), Changed: changed})
}

// Background handles POST /lifecycle/background requests.
func (h *Handlers) Background(w http.ResponseWriter, r *http.Request) {
	changed := h.deps.Host.Background()
	writeJSON(w, http.StatusOK, LifecycleResponse{Active: h.deps.Host.Active(), Changed: changed})
}

// GetPlayback handles GET /playback requests.
func (h *Handlers) GetPlayback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PlaybackResponse{
		Paused:     h.deps.Playback.Paused(),
		Conditions: h.deps.Playback.Conditions(),
		HostActive: h.deps.Host.Active(),
		Monitoring: string(h.deps.Host.EngineState()),
		CallState:  string(h.deps.Phone.State()),
	})
}

// Events handles GET /events requests by upgrading to a websocket and
// streaming every subsequent pause decision as a DecisionMessage.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	decisions, cancel := h.deps.Playback.Subscribe(eventBuffer)
	defer cancel()

	// The client sends nothing; reading detects when it goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("event stream opened", slog.String("remote_addr", r.RemoteAddr))
	for {
		select {
		case <-closed:
			h.logger.Debug("event stream closed", slog.String("remote_addr", r.RemoteAddr))
			return
		case d, ok := <-decisions:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(DecisionMessage{
				Type:   "decision",
				Key:    d.Key,
				Active: d.Active,
				Paused: d.Paused,
				At:     d.At,
			}); err != nil {
				h.logger.Debug("event stream write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// decode reads and validates a JSON request body, writing the error
// response itself when it returns false.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
