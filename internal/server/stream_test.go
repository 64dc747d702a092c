package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
)

func makeRequest(origin string) *http.Request {
	r, _ := http.NewRequest("GET", "/ws/stream", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginChecking(t *testing.T) {
	tests := []struct {
		name      string
		origins   []string
		reqOrigin string
		want      bool
	}{
		{"allow localhost:3000", nil, "http://localhost:3000", true},
		{"allow localhost:5173", nil, "http://localhost:5173", true},
		{"block localhost:8080 by default", nil, "http://localhost:8080", false},
		{"block external by default", nil, "https://evil.example.com", false},
		{"wildcard allows anything", []string{"*"}, "https://example.com", true},
		{"explicit allow match", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"explicit allow mismatch", []string{"https://app.example.com"}, "https://evil.com", false},
		{"case-insensitive origin", []string{"https://App.Example.Com"}, "https://app.example.com", true},
		{"no origin header allowed", nil, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			up := newUpgrader(tc.origins)
			got := up.CheckOrigin(makeRequest(tc.reqOrigin))
			if got != tc.want {
				t.Errorf("origin=%q, allowed=%v: got %v, want %v", tc.reqOrigin, tc.origins, got, tc.want)
			}
		})
	}
}

// newStreamServer logs to a no-op logger: the stream goroutines may outlive the test.
func newStreamServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	engine, err := analytics.NewEngine(ml.DefaultDetectorOptions())
	require.NoError(t, err)
	cfg := createTestConfig()
	cfg.Server.StreamIntervalSeconds = 1
	s := NewServer(cfg, engine, nil, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func streamURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/stream" + query
}

func TestStreamPushesReportsWithAdvancingSeed(t *testing.T) {
	_, ts := newStreamServer(t)
	url := streamURL(ts, "?days=2&samples_per_day=24&seed=7")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var first StreamMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, StreamTypeReport, first.Type)
	assert.Equal(t, 0, first.Tick)
	assert.Equal(t, int64(7), first.Seed)
	require.NotNil(t, first.Report)
	assert.Equal(t, 48, first.Report.Samples)

	var second StreamMessage
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 1, second.Tick)
	assert.Equal(t, int64(8), second.Seed)
}

func TestStreamRejectsBadParameters(t *testing.T) {
	_, ts := newStreamServer(t)
	url := streamURL(ts, "?days=0")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShutdownClosesOpenStreams(t *testing.T) {
	s, ts := newStreamServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(ts, "?days=1&samples_per_day=24&seed=1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var first StreamMessage
	require.NoError(t, conn.ReadJSON(&first))

	require.NoError(t, s.Shutdown(context.Background()))

	// A tick may already be in flight; the close frame follows it.
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(ts, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGRPCHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	g := newGRPCServer(zap.NewNop())
	go g.Serve(lis)
	defer g.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := grpc_health_v1.NewHealthClient(conn)
	for _, svc := range []string{"", HealthServiceName} {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: svc})
		require.NoError(t, err)
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
	}
}
