package settings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplinkd/uplink/internal/settings"
)

func TestHTTPProviderGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		switch r.URL.Path {
		case "/api/settings/DISCONNECT_SCREEN_ENABLED":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"key":"DISCONNECT_SCREEN_ENABLED","value":"true"}`))
		case "/api/settings/MISSING":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"setting not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	provider, err := settings.NewHTTPProvider(srv.URL)
	require.NoError(t, err)

	value, err := provider.Get(context.Background(), "DISCONNECT_SCREEN_ENABLED")
	require.NoError(t, err)
	assert.Equal(t, "true", value)

	_, err = provider.Get(context.Background(), "MISSING")
	require.ErrorIs(t, err, settings.ErrNotFound)

	_, err = provider.Get(context.Background(), "BROKEN")
	require.Error(t, err)
	assert.NotErrorIs(t, err, settings.ErrNotFound)
}

func TestHTTPProviderSet(t *testing.T) {
	type received struct {
		path string
		body map[string]any
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got <- received{path: r.URL.Path, body: body}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	provider, err := settings.NewHTTPProvider(srv.URL)
	require.NoError(t, err)

	err = provider.Set(context.Background(), "DISCONNECT_SCREEN_DELAY", "30s",
		map[string]string{"category": "features"},
	)
	require.NoError(t, err)

	r := <-got
	assert.Equal(t, "/api/settings/DISCONNECT_SCREEN_DELAY", r.path)
	assert.Equal(t, "30s", r.body["value"])
	assert.Equal(t, map[string]any{"category": "features"}, r.body["metadata"])
}

func TestHTTPProviderSetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	provider, err := settings.NewHTTPProvider(srv.URL)
	require.NoError(t, err)

	err = provider.Set(context.Background(), "k", "v", nil)
	require.Error(t, err)
}

func TestHTTPProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	provider, err := settings.NewHTTPProvider(url)
	require.NoError(t, err)

	_, err = provider.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestHTTPProviderInvalidBaseURL(t *testing.T) {
	_, err := settings.NewHTTPProvider("://nope")
	require.Error(t, err)
}
