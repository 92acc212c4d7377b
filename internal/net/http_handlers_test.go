package net

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"decharge/gateway/internal/hub"
	"decharge/gateway/internal/ingest"
	"decharge/gateway/internal/model"
	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/store"
	"decharge/gateway/logging"
	ingestlog "decharge/gateway/logging/ingestion"
	"decharge/gateway/logging/sinks"
)

func newTestHandler(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	s := store.New([]model.MarketplaceItem{{ID: "vip-pass", Inventory: 150}})
	h := hub.New(s, hub.Config{})
	svc := ingest.New(s, h, ingest.Config{})
	handler := NewHTTPHandler(HTTPHandlerConfig{
		Store:    s,
		Ingester: svc,
		Now:      func() time.Time { return time.UnixMilli(1234) },
	})
	return handler, s
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", resp.Body.String(), err)
	}
	return payload
}

func TestHealth(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(t, handler, http.MethodGet, "/api/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	payload := decode(t, resp)
	require.Equal(t, "ok", payload["status"])
	require.Equal(t, float64(1234), payload["time"])
}

func TestIngestSessionStartThenListSessions(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(t, handler, http.MethodPost, "/ingest", `{"type":"session_start","stationId":"stat-a","driver":"Ada","vehicleModel":"X","energyDeliveredKwh":1.0,"pointsEarned":100}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	payload := decode(t, resp)
	require.Equal(t, true, payload["ok"])
	sessionID, ok := payload["sessionId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, sessionID)

	resp = do(t, handler, http.MethodGet, "/api/sessions", "")
	var body struct {
		Sessions []model.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	require.Equal(t, sessionID, body.Sessions[0].ID)
	require.Equal(t, "stat-a", body.Sessions[0].StationID)
	require.Equal(t, model.SessionCharging, body.Sessions[0].Status)
	require.Equal(t, 1.0, body.Sessions[0].EnergyDeliveredKwh)
	require.Equal(t, 100.0, body.Sessions[0].PointsEarned)
}

func TestIngestUnknownSessionIs404(t *testing.T) {
	handler, s := newTestHandler(t)

	resp := do(t, handler, http.MethodPost, "/ingest", `{"type":"session_update","sessionId":"ghost","stationId":"a","energyDeliveredKwh":1,"pointsEarned":1}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	require.Equal(t, "session_not_found", decode(t, resp)["error"])

	s.View(func(r store.Reader) {
		require.Zero(t, r.RecentEventCount())
	})
}

func TestIngestUnknownItemIs404(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(t, handler, http.MethodPost, "/ingest", `{"type":"points_purchase","itemId":"nope","wallet":"W","points":5}`)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Equal(t, "item_not_found", decode(t, resp)["error"])
}

func TestIngestValidationErrorShape(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := do(t, handler, http.MethodPost, "/ingest", `{"type":"points_purchase","itemId":"vip-pass","wallet":"W","points":-1}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	payload := decode(t, resp)
	require.Equal(t, "invalid_payload", payload["error"])
	details, ok := payload["details"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, details, "formErrors")
	fieldErrors, ok := details["fieldErrors"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, fieldErrors, "points")
}

func TestIngestTerminalSessionIs409(t *testing.T) {
	handler, _ := newTestHandler(t)

	payload := decode(t, do(t, handler, http.MethodPost, "/ingest", `{"type":"session_start","stationId":"a"}`))
	id := payload["sessionId"].(string)
	resp := do(t, handler, http.MethodPost, "/ingest", fmt.Sprintf(`{"type":"session_complete","sessionId":%q}`, id))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, handler, http.MethodPost, "/ingest", fmt.Sprintf(`{"type":"session_complete","sessionId":%q}`, id))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, "session_terminal", decode(t, resp)["error"])
}

func TestSessionsLimit(t *testing.T) {
	handler, s := newTestHandler(t)
	for i := 0; i < 5; i++ {
		s.UpsertSession(model.Session{ID: fmt.Sprintf("s%d", i), UpdatedAt: int64(i)})
	}

	resp := do(t, handler, http.MethodGet, "/api/sessions?limit=2", "")
	var body struct {
		Sessions []model.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 2)
	require.Equal(t, "s4", body.Sessions[0].ID)

	for _, bad := range []string{"0", "201", "abc"} {
		resp := do(t, handler, http.MethodGet, "/api/sessions?limit="+bad, "")
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", bad, resp.Code)
		}
		require.Equal(t, "invalid_query", decode(t, resp)["error"])
	}
}

func TestCollectionEndpoints(t *testing.T) {
	handler, s := newTestHandler(t)
	s.EnsureStation("a")
	s.UpsertWorldPlot(model.WorldPlot{RegionKey: "r"})

	cases := map[string]string{
		"/api/stations":    "stations",
		"/api/marketplace": "items",
		"/api/world":       "plots",
		"/api/events":      "events",
	}
	for path, key := range cases {
		resp := do(t, handler, http.MethodGet, path, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
		if _, ok := decode(t, resp)[key].([]any); !ok {
			t.Fatalf("%s: expected %s array, got %s", path, key, resp.Body.String())
		}
	}
}

func TestEventsReturnsLastHundred(t *testing.T) {
	handler, s := newTestHandler(t)
	for i := 0; i < 150; i++ {
		s.AppendEvent(proto.StationStatus{Payload: model.Station{ID: fmt.Sprint(i)}})
	}

	resp := do(t, handler, http.MethodGet, "/api/events", "")
	var body struct {
		Events proto.EventList `json:"events"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Events, 100)
	require.Equal(t, "50", body.Events[0].(proto.StationStatus).Payload.ID)
	require.Equal(t, "149", body.Events[99].(proto.StationStatus).Payload.ID)
}

func TestBootstrapAndDashboard(t *testing.T) {
	handler, _ := newTestHandler(t)
	do(t, handler, http.MethodPost, "/ingest", `{"type":"station_status","stationId":"a","status":"online","utilizationPercent":33.33}`)

	resp := do(t, handler, http.MethodGet, "/api/bootstrap", "")
	event, err := proto.Decode(resp.Body.Bytes())
	require.NoError(t, err)
	snapshot := event.(proto.Bootstrap).Payload
	require.Len(t, snapshot.Stations, 1)
	require.Len(t, snapshot.Marketplace, 1)
	require.Len(t, snapshot.RecentEvents, 1)
	require.NotNil(t, snapshot.Dashboard)

	resp = do(t, handler, http.MethodGet, "/api/dashboard", "")
	var dashboard model.Dashboard
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &dashboard))
	require.Equal(t, 1, dashboard.Network.StationCount)
	require.Equal(t, 33.3, dashboard.Network.AvgUtilizationPercent)
	require.Equal(t, 150, dashboard.Economy.MarketplaceInventory)
}

func TestCORSPreflight(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/ingest", nil)
	req.Header.Set("Origin", "http://viewer.local")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "http://viewer.local", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestIngestEventsCarryRequestID(t *testing.T) {
	memory := sinks.NewMemorySink()
	publisher := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		memory.Write(event)
	})
	s := store.New(nil)
	h := hub.New(s, hub.Config{})
	handler := NewHTTPHandler(HTTPHandlerConfig{
		Store:    s,
		Ingester: ingest.New(s, h, ingest.Config{Publisher: publisher}),
	})

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"type":"station_status","stationId":"a","status":"online"}`))
	req.Header.Set("X-Request-ID", "req-42")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "req-42", resp.Header().Get("X-Request-ID"))

	generated := do(t, handler, http.MethodPost, "/ingest", `{"type":"station_status","stationId":"a","status":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, generated.Code)
	generatedID := generated.Header().Get("X-Request-ID")
	require.NotEmpty(t, generatedID)

	events := memory.ByType(ingestlog.EventAccepted)
	require.Len(t, events, 1)
	require.Equal(t, "req-42", events[0].RequestID)
	rejected := memory.ByType(ingestlog.EventRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, generatedID, rejected[0].RequestID)
}
