package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/callpause/internal/autopause"
	"github.com/maauso/callpause/internal/callstate"
	"github.com/maauso/callpause/internal/host"
	"github.com/maauso/callpause/internal/permission"
	"github.com/maauso/callpause/internal/playback"
	"github.com/maauso/callpause/internal/setting"
)

// mockStorage implements storage.Storage for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorage) Save(ctx context.Context, key string, data io.Reader) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, opts ...setting.Option) (*Handlers, Deps) {
	t.Helper()
	logger := testLogger()

	store := setting.NewStore(setting.Known(), append([]setting.Option{setting.WithLogger(logger)}, opts...)...)
	perm := permission.NewToggle(true)
	phone := callstate.NewSimulator()
	manager := callstate.NewManager(callstate.NewSource(phone, 33, 0), logger)
	engine := autopause.NewEngine(manager, perm,
		autopause.WithIdentityScope(permission.NewProcessIdentity("callpause", "test-client")),
		autopause.WithLogger(logger),
	)
	player := playback.NewController(logger)
	svc := host.NewService(store, engine, player.OnDecision, logger)
	t.Cleanup(svc.Stop)

	deps := Deps{
		Settings:   store,
		Permission: perm,
		Phone:      phone,
		Host:       svc,
		Playback:   player,
	}
	return NewHandlers(deps, logger), deps
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func boolPtr(b bool) *bool { return &b }

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestListSettings(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()
	h.ListSettings(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SettingsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, map[string]bool{
		"play_in_background":      false,
		"auto_pause_during_calls": false,
	}, resp.Settings)
}

func TestUpdateSetting_Success(t *testing.T) {
	h, deps := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	rec := doJSON(t, router, http.MethodPut, "/settings/auto_pause_during_calls", UpdateSettingRequest{Value: boolPtr(true)})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SettingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "auto_pause_during_calls", resp.Key)
	assert.True(t, resp.Value)

	v, err := deps.Settings.Get(setting.AutoPauseDuringCalls.Key)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestUpdateSetting_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	rec := doJSON(t, router, http.MethodPut, "/settings/dark_mode", UpdateSettingRequest{Value: boolPtr(true)})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SETTING_NOT_FOUND", decodeError(t, rec).Code)
}

func TestUpdateSetting_InvalidJSON(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	req := httptest.NewRequest(http.MethodPut, "/settings/play_in_background", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestUpdateSetting_MissingValue(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	rec := doJSON(t, router, http.MethodPut, "/settings/play_in_background", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestUpdateSetting_PersistFailure(t *testing.T) {
	backend := new(mockStorage)
	backend.On("Save", mock.Anything, setting.DefaultSnapshotKey, mock.Anything).Return(errors.New("disk full"))

	h, deps := newTestHandlers(t, setting.WithPersistence(backend, setting.DefaultSnapshotKey))
	router := NewRouter(h, testLogger(), DefaultConfig())

	rec := doJSON(t, router, http.MethodPut, "/settings/play_in_background", UpdateSettingRequest{Value: boolPtr(true)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "SETTING_PERSIST_FAILED", decodeError(t, rec).Code)

	// The value stays in effect for the running process.
	v, err := deps.Settings.Get(setting.PlayInBackground.Key)
	require.NoError(t, err)
	assert.True(t, v)
	backend.AssertExpectations(t)
}

func TestUpdatePermission(t *testing.T) {
	h, deps := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPut, "/permission", strings.NewReader(`{"granted":false}`))
	rec := httptest.NewRecorder()
	h.UpdatePermission(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp PermissionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, permission.ReadPhoneState, resp.Permission)
	assert.False(t, resp.Granted)
	assert.False(t, deps.Permission.Granted(context.Background()))
}

func TestUpdatePermission_MissingGranted(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPut, "/permission", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.UpdatePermission(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestUpdateCallState(t *testing.T) {
	tests := []struct {
		name      string
		state     string
		wantState string
		wantEvent string
	}{
		{name: "ringing", state: "ringing", wantState: "RINGING", wantEvent: "ACTIVE"},
		{name: "off hook", state: "offhook", wantState: "OFFHOOK", wantEvent: "ACTIVE"},
		{name: "idle", state: "idle", wantState: "IDLE", wantEvent: "INACTIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newTestHandlers(t)

			rec := doJSON(t, http.HandlerFunc(h.UpdateCallState), http.MethodPut, "/call-state", UpdateCallStateRequest{State: tt.state})

			assert.Equal(t, http.StatusOK, rec.Code)

			var resp CallStateResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantState, resp.State)
			assert.Equal(t, tt.wantEvent, resp.Event)
			assert.Equal(t, tt.wantState, string(deps.Phone.State()))
		})
	}
}

func TestUpdateCallState_Invalid(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := doJSON(t, http.HandlerFunc(h.UpdateCallState), http.MethodPut, "/call-state", UpdateCallStateRequest{State: "dialing"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CALL_STATE", decodeError(t, rec).Code)
}

func TestLifecycle(t *testing.T) {
	h, deps := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	steps := []struct {
		path        string
		wantActive  bool
		wantChanged bool
	}{
		{path: "/lifecycle/foreground", wantActive: true, wantChanged: true},
		{path: "/lifecycle/foreground", wantActive: true, wantChanged: false},
		{path: "/lifecycle/background", wantActive: false, wantChanged: true},
		{path: "/lifecycle/background", wantActive: false, wantChanged: false},
	}

	for _, step := range steps {
		rec := doJSON(t, router, http.MethodPost, step.path, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LifecycleResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, step.wantActive, resp.Active, step.path)
		assert.Equal(t, step.wantChanged, resp.Changed, step.path)
	}
	assert.False(t, deps.Host.Active())
}

func getPlayback(t *testing.T, router http.Handler) PlaybackResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodGet, "/playback", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PlaybackResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRouter_Integration(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	// Test health endpoint
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, key := range []string{"play_in_background", "auto_pause_during_calls"} {
		rec = doJSON(t, router, http.MethodPut, "/settings/"+key, UpdateSettingRequest{Value: boolPtr(true)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/lifecycle/foreground", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return getPlayback(t, router).Monitoring == string(autopause.StateEnabled)
	}, time.Second, 5*time.Millisecond)

	rec = doJSON(t, router, http.MethodPut, "/call-state", UpdateCallStateRequest{State: "offhook"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return getPlayback(t, router).Paused
	}, time.Second, 5*time.Millisecond)

	resp := getPlayback(t, router)
	assert.Equal(t, []string{autopause.ConditionKey}, resp.Conditions)
	assert.True(t, resp.HostActive)
	assert.Equal(t, "OFFHOOK", resp.CallState)

	// Leaving the foreground ends the condition.
	rec = doJSON(t, router, http.MethodPost, "/lifecycle/background", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = getPlayback(t, router)
	assert.False(t, resp.Paused)
	assert.Empty(t, resp.Conditions)
	assert.False(t, resp.HostActive)
	assert.Equal(t, string(autopause.StateDisabled), resp.Monitoring)
}

func dialEvents(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func TestEvents_StreamsDecisions(t *testing.T) {
	h, deps := newTestHandlers(t)
	srv := httptest.NewServer(NewRouter(h, testLogger(), DefaultConfig()))
	defer srv.Close()

	conn := dialEvents(t, srv)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return deps.Playback.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	deps.Playback.OnDecision(true, "auto_pause_ongoing_call")
	deps.Playback.OnDecision(false, "auto_pause_ongoing_call")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first, second DecisionMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, "decision", first.Type)
	assert.Equal(t, "auto_pause_ongoing_call", first.Key)
	assert.True(t, first.Active)
	assert.True(t, first.Paused)
	assert.False(t, first.At.IsZero())

	assert.False(t, second.Active)
	assert.False(t, second.Paused)
}

func TestEvents_UnsubscribesOnClose(t *testing.T) {
	h, deps := newTestHandlers(t)
	srv := httptest.NewServer(NewRouter(h, testLogger(), DefaultConfig()))
	defer srv.Close()

	conn := dialEvents(t, srv)
	require.Eventually(t, func() bool {
		return deps.Playback.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return deps.Playback.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEvents_RejectsPlainHTTP(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(h, testLogger(), DefaultConfig())

	rec := doJSON(t, router, http.MethodGet, "/events", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Test with a foreign origin
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/settings/play_in_background", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	// Create a handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestAllowOrigins(t *testing.T) {
	check := AllowOrigins([]string{"https://example.com"})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	assert.True(t, check(req), "no origin")

	req.Header.Set("Origin", "https://example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, AllowOrigins([]string{"*"})(req))
}

func TestEvents_RejectsForeignOrigin(t *testing.T) {
	_, deps := newTestHandlers(t)
	h := NewHandlers(deps, testLogger(), WithCheckOrigin(AllowOrigins([]string{"https://example.com"})))
	srv := httptest.NewServer(NewRouter(h, testLogger(), DefaultConfig()))
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, header)

	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, deps.Playback.Subscribers())
}
