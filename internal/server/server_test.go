package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokyabdulrahman/prayer-notify/internal/api"
	"github.com/smokyabdulrahman/prayer-notify/internal/cache"
	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/geo"
	"github.com/smokyabdulrahman/prayer-notify/internal/notify"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notify/internal/service"
	"github.com/smokyabdulrahman/prayer-notify/internal/state"
	"github.com/smokyabdulrahman/prayer-notify/internal/testutil"
	"github.com/smokyabdulrahman/prayer-notify/internal/widget"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// 2024-03-10 13:00 in Baghdad.
var now = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

type stubAPI struct {
	mu  sync.Mutex
	err error
}

func (a *stubAPI) respond() (*api.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &api.Response{
		Code: 200,
		Data: api.Data{
			Timings: api.Timings{
				"Fajr": "05:03", "Sunrise": "06:20", "Dhuhr": "12:10",
				"Asr": "15:45", "Maghrib": "18:30", "Isha": "19:50",
			},
			Date: api.DateInfo{Gregorian: api.GregorianDate{Date: "10-03-2024"}},
			Meta: api.Meta{Timezone: "Asia/Baghdad"},
		},
	}, nil
}

func (a *stubAPI) FetchByCoordinates(context.Context, time.Time, float64, float64, int, int) (*api.Response, error) {
	return a.respond()
}

func (a *stubAPI) FetchByCity(context.Context, time.Time, string, string, int, int) (*api.Response, error) {
	return a.respond()
}

type stubNotifier struct {
	mu      sync.Mutex
	pending []notify.Scheduled
}

func (n *stubNotifier) RequestPermission(context.Context) (bool, error) { return true, nil }

func (n *stubNotifier) Schedule(_ context.Context, r notify.Request) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := r.Title
	n.pending = append(n.pending, notify.Scheduled{ID: id, Tag: r.Tag, Title: r.Title, FireAt: r.FireAt})
	return id, nil
}

func (n *stubNotifier) Cancel(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, p := range n.pending {
		if p.ID == id {
			n.pending = append(n.pending[:i], n.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (n *stubNotifier) List(context.Context) ([]notify.Scheduled, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Scheduled(nil), n.pending...), nil
}

type fixture struct {
	router http.Handler
	state  *state.State
	svc    *service.Service
	api    *stubAPI
}

func newFixture(t *testing.T, prefs config.Config) *fixture {
	t.Helper()
	kv := testutil.NewTestStore(t)
	clock := func() time.Time { return now }
	st := state.New(prefs)
	stub := &stubAPI{}
	bridge := widget.NewBridge(nil)
	svc := service.New(service.Deps{
		State:  st,
		API:    stub,
		Cache:  cache.New(kv),
		Sync:   notify.NewSynchronizer(kv, &stubNotifier{}, notify.WithClock(clock)),
		Bridge: bridge,
		Detect: func(context.Context) (*geo.Location, error) {
			return nil, errors.New("offline")
		},
		Now: clock,
	})
	return &fixture{
		router: New(svc, st, bridge).Handler(),
		state:  st,
		svc:    svc,
		api:    stub,
	}
}

func baghdad() config.Config {
	return config.Config{Latitude: 33.3152, Longitude: 44.3661}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, baghdad())
	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSchedule_UnavailableBeforeRefresh(t *testing.T) {
	f := newFixture(t, baghdad())
	w := f.do(t, http.MethodGet, "/api/schedule", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.state.SetBanner("Could not load prayer times.")
	w = f.do(t, http.MethodGet, "/api/next", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Could not load prayer times.")
}

func TestRefreshThenRead(t *testing.T) {
	f := newFixture(t, baghdad())

	w := f.do(t, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decode[prayer.Schedule](t, w)
	assert.Equal(t, "2024-03-10", s.DateKey)
	assert.Len(t, s.Prayers, 6)

	w = f.do(t, http.MethodGet, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]json.RawMessage](t, w)
	assert.Contains(t, body, "schedule")
	assert.Contains(t, body, "label")

	w = f.do(t, http.MethodGet, "/api/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	next := decode[prayer.NextPrayer](t, w)
	assert.Equal(t, prayer.Asr, next.Name)

	w = f.do(t, http.MethodGet, "/api/widget", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[widget.Payload](t, w)
	assert.Equal(t, "Asr", p.NextPrayer)
	assert.Equal(t, "Asia/Baghdad", p.Timezone)
}

func TestRefresh_UpstreamFailure(t *testing.T) {
	f := newFixture(t, baghdad())
	f.api.err = errors.New("connection refused")

	w := f.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRefresh_LocationUnavailable(t *testing.T) {
	f := newFixture(t, config.Config{})
	w := f.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPreferences_GetRedactsPassword(t *testing.T) {
	prefs := baghdad()
	prefs.RedisPassword = "hunter2"
	f := newFixture(t, prefs)

	w := f.do(t, http.MethodGet, "/api/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestPreferences_Update(t *testing.T) {
	f := newFixture(t, baghdad())
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/refresh", nil).Code)

	w := f.do(t, http.MethodPut, "/api/preferences", map[string]string{"time_format": "12h"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[config.Config](t, w)
	assert.Equal(t, "12h", got.TimeFormat)

	asr, ok := f.state.Schedule().Entry(prayer.Asr)
	require.True(t, ok)
	assert.Equal(t, "3:45 PM", asr.DisplayTime)
}

func TestPreferences_UpdateInvalid(t *testing.T) {
	f := newFixture(t, baghdad())

	w := f.do(t, http.MethodPut, "/api/preferences", map[string]string{"time_format": "13h"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/preferences", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/preferences", bytes.NewBufferString("[1,2]"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t, baghdad())
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/refresh", nil).Code)

	w := f.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Enabled bool               `json:"enabled"`
		Pending []notify.Scheduled `json:"pending"`
	}](t, w)
	assert.False(t, body.Enabled)
	assert.Empty(t, body.Pending)

	w = f.do(t, http.MethodPut, "/api/preferences", map[string]string{"notifications": "true"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[struct {
		Enabled bool               `json:"enabled"`
		Pending []notify.Scheduled `json:"pending"`
	}](t, w)
	assert.True(t, body.Enabled)
	// Asr, Maghrib and Isha are still ahead at 13:00.
	assert.Len(t, body.Pending, 3)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, baghdad())
	req := httptest.NewRequest(http.MethodOptions, "/api/schedule", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(service.ErrUpstream))
	assert.Equal(t, http.StatusConflict, statusFor(service.ErrSuperseded))
	assert.Equal(t, http.StatusForbidden, statusFor(notify.ErrPermissionDenied))
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.New("bad value")))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t, baghdad())
	srv := New(f.svc, f.state, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
