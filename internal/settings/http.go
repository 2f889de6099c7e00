package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPProvider reads and writes settings through the service's settings API.
type HTTPProvider struct {
	baseURL *url.URL
	client  *http.Client
}

// HTTPProviderOption configures an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient sets the HTTP client used for settings requests.
func WithHTTPClient(client *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.client = client
	}
}

// NewHTTPProvider creates a provider targeting the settings API at baseURL.
func NewHTTPProvider(baseURL string, opts ...HTTPProviderOption) (*HTTPProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid settings base URL: %w", err)
	}

	p := &HTTPProvider{
		baseURL: u,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// settingPayload is the wire format of a single setting.
type settingPayload struct {
	Key      string            `json:"key,omitempty"`
	Value    string            `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// settingURL resolves the API URL for a key against the base URL.
func (p *HTTPProvider) settingURL(key string) string {
	ref := &url.URL{Path: "/api/settings/" + url.PathEscape(key)}
	return p.baseURL.ResolveReference(ref).String()
}

// Get fetches the value for key from the settings API.
func (p *HTTPProvider) Get(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.settingURL(key), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build settings request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("settings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("settings API returned status %d for key %s", resp.StatusCode, key)
	}

	var payload settingPayload
	if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr != nil {
		return "", fmt.Errorf("failed to decode setting %s: %w", key, decodeErr)
	}

	return payload.Value, nil
}

// Set stores value under key via the settings API.
func (p *HTTPProvider) Set(ctx context.Context, key, value string, metadata map[string]string) error {
	body, err := json.Marshal(settingPayload{Value: value, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.settingURL(key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build settings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("settings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("settings API returned status %d for key %s", resp.StatusCode, key)
	}

	return nil
}

var _ Provider = (*HTTPProvider)(nil)
