package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"decharge/gateway/internal/net/proto"
	"decharge/gateway/internal/telemetry"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunServesAndShutsDown(t *testing.T) {
	env := map[string]string{"HOST": "127.0.0.1", "PORT": "0"}
	console := &lockedBuffer{}
	ready := make(chan string, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			Logger:  telemetry.Discard(),
			Getenv:  func(key string) string { return env[key] },
			Console: console,
			Ready:   func(addr string) { ready <- addr },
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("gateway exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not become ready")
	}
	base := "http://" + addr

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	event, err := proto.Decode(frame)
	require.NoError(t, err)
	require.Len(t, event.(proto.Bootstrap).Payload.Marketplace, 4)

	resp, err := http.Post(base+"/ingest", "application/json", strings.NewReader(`{"type":"station_status","stationId":"a","status":"online"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	event, err = proto.Decode(frame)
	require.NoError(t, err)
	require.Equal(t, proto.TypeStationStatus, event.Type())

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), `gateway_ingest_total{outcome="accepted",type="station_status"} 1`)
	require.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(base + "/api/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	require.Equal(t, "ok", health["status"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shut down")
	}

	require.Contains(t, console.String(), "lifecycle.gateway_started")
	require.Contains(t, console.String(), "lifecycle.gateway_stopped")
}

func TestRunRejectsBadConfigFile(t *testing.T) {
	env := map[string]string{"GATEWAY_CONFIG": t.TempDir() + "/missing.yaml"}
	err := Run(context.Background(), Config{
		Logger: telemetry.Discard(),
		Getenv: func(key string) string { return env[key] },
	})
	require.ErrorContains(t, err, "failed to load config")
}
