package probe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplinkd/uplink/internal/probe"
)

func healthServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProberCheckStatuses(t *testing.T) {
	tests := []struct {
		name        string
		httpStatus  int
		body        string
		wantHealthy bool
	}{
		{
			name:        "healthy",
			httpStatus:  http.StatusOK,
			body:        `{"status":"healthy","service":"internal-api"}`,
			wantHealthy: true,
		},
		{
			name:        "online",
			httpStatus:  http.StatusOK,
			body:        `{"status":"online"}`,
			wantHealthy: true,
		},
		{
			name:        "initializing counts as healthy",
			httpStatus:  http.StatusOK,
			body:        `{"status":"initializing"}`,
			wantHealthy: true,
		},
		{
			name:        "unhealthy status",
			httpStatus:  http.StatusOK,
			body:        `{"status":"unhealthy"}`,
			wantHealthy: false,
		},
		{
			name:        "unknown status",
			httpStatus:  http.StatusOK,
			body:        `{"status":"degraded"}`,
			wantHealthy: false,
		},
		{
			name:        "server error",
			httpStatus:  http.StatusInternalServerError,
			body:        `{"status":"healthy"}`,
			wantHealthy: false,
		},
		{
			name:        "not found",
			httpStatus:  http.StatusNotFound,
			body:        `{"detail":"Not Found"}`,
			wantHealthy: false,
		},
		{
			name:        "malformed body",
			httpStatus:  http.StatusOK,
			body:        `{"status":`,
			wantHealthy: false,
		},
		{
			name:        "empty body",
			httpStatus:  http.StatusOK,
			body:        ``,
			wantHealthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := healthServer(t, tt.httpStatus, tt.body)

			p, err := probe.New(srv.URL, "")
			require.NoError(t, err)

			assert.Equal(t, tt.wantHealthy, p.Check(context.Background()))
		})
	}
}

func TestProberTargetResolution(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		path    string
		want    string
	}{
		{
			name:    "default path",
			baseURL: "http://localhost:8181",
			path:    "",
			want:    "http://localhost:8181/api/health",
		},
		{
			name:    "explicit path",
			baseURL: "http://localhost:8181",
			path:    "/internal/health",
			want:    "http://localhost:8181/internal/health",
		},
		{
			name:    "base path is replaced, not joined",
			baseURL: "http://localhost:8181/ignored",
			path:    "/api/health",
			want:    "http://localhost:8181/api/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := probe.New(tt.baseURL, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Target())
		})
	}
}

func TestProberInvalidBaseURL(t *testing.T) {
	_, err := probe.New("://not-a-url", "")
	require.Error(t, err)
}

func TestProberUnreachableHost(t *testing.T) {
	// Grab a port that is guaranteed closed.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := probe.New(url, "", probe.WithTimeout(500*time.Millisecond))
	require.NoError(t, err)

	assert.False(t, p.Check(context.Background()))
}

func TestProberRetryOnTransportError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			// Kill the connection mid-flight to force a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := probe.New(srv.URL, "",
		probe.WithDiagnosticsHint(func() bool { return true }),
	)
	require.NoError(t, err)

	assert.True(t, p.Check(context.Background()), "single retry recovers the probe")
	assert.Equal(t, int64(2), calls.Load())
}

func TestProberNoRetryWithoutDiagnosticsHint(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	t.Cleanup(srv.Close)

	p, err := probe.New(srv.URL, "")
	require.NoError(t, err)

	assert.False(t, p.Check(context.Background()))
	assert.Equal(t, int64(1), calls.Load(), "retry only fires on diagnostics surfaces")
}

func TestProberNoRetryOnTimeout(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	p, err := probe.New(srv.URL, "",
		probe.WithTimeout(50*time.Millisecond),
		probe.WithDiagnosticsHint(func() bool { return true }),
	)
	require.NoError(t, err)

	assert.False(t, p.Check(context.Background()))
	assert.Equal(t, int64(1), calls.Load(), "a timed-out probe already spent its budget")
}

func TestProberRequestHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := probe.New(srv.URL, "")
	require.NoError(t, err)

	assert.True(t, p.Check(context.Background()))
}

func TestProberContextCancelled(t *testing.T) {
	srv := healthServer(t, http.StatusOK, `{"status":"healthy"}`)

	p, err := probe.New(srv.URL, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, p.Check(ctx))
}
