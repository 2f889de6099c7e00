// Package probe implements the pull-based health prober.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Default probe timing constants.
const (
	// DefaultTimeout bounds a regular probe request.
	DefaultTimeout = 10 * time.Second

	// DefaultRetryTimeout bounds the single immediate retry after a
	// transport error. Shorter than the regular timeout so the combined
	// worst case stays bounded.
	DefaultRetryTimeout = 5 * time.Second

	// DefaultPath is the canonical health endpoint path.
	DefaultPath = "/api/health"
)

// Statuses the remote side may report that count as healthy.
// "initializing" is deliberately healthy: a service mid-startup must not
// trip the disconnect overlay.
var healthyStatuses = map[string]bool{
	"healthy":      true,
	"online":       true,
	"initializing": true,
}

// healthResponse is the expected probe response body.
type healthResponse struct {
	Status string `json:"status"`
}

// Prober issues time-boxed GET requests against the service health endpoint
// and reduces the outcome to a single boolean. It never returns an error:
// every failure mode reads as "unhealthy".
type Prober struct {
	target       string
	client       *http.Client
	timeout      time.Duration
	retryTimeout time.Duration
	logger       *slog.Logger

	// diagnosticsHint reports whether the host client currently sits on a
	// diagnostics surface, where a single fast retry on transport errors
	// is worth the extra request.
	diagnosticsHint func() bool
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout sets the regular probe timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		p.timeout = timeout
	}
}

// WithRetryTimeout sets the timeout for the immediate retry.
func WithRetryTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		p.retryTimeout = timeout
	}
}

// WithLogger sets the logger for the prober.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		p.logger = logger
	}
}

// WithDiagnosticsHint installs the diagnostics-surface hint.
func WithDiagnosticsHint(hint func() bool) Option {
	return func(p *Prober) {
		p.diagnosticsHint = hint
	}
}

// WithTransport sets a custom HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Prober) {
		p.client.Transport = rt
	}
}

// New creates a Prober for the health endpoint at path under baseURL.
// An empty path falls back to DefaultPath.
func New(baseURL, path string, opts ...Option) (*Prober, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid probe base URL: %w", err)
	}
	if path == "" {
		path = DefaultPath
	}

	p := &Prober{
		target:          base.ResolveReference(&url.URL{Path: path}).String(),
		client:          &http.Client{},
		timeout:         DefaultTimeout,
		retryTimeout:    DefaultRetryTimeout,
		logger:          slog.Default(),
		diagnosticsHint: func() bool { return false },
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Target returns the fully resolved probe URL.
func (p *Prober) Target() string {
	return p.target
}

// Check probes the health endpoint once and reports whether the service
// answered healthy. On a generic transport error (not a timeout) while the
// diagnostics hint is set, it performs exactly one immediate retry with the
// shorter timeout before giving up.
func (p *Prober) Check(ctx context.Context) bool {
	ok, err := p.request(ctx, p.timeout)
	if err == nil {
		return ok
	}

	if p.diagnosticsHint() && isTransportError(err) {
		p.logger.DebugContext(ctx, "probe transport error, retrying once",
			slog.String("target", p.target),
			slog.String("error", err.Error()),
		)
		ok, err = p.request(ctx, p.retryTimeout)
		if err == nil {
			return ok
		}
	}

	p.logger.DebugContext(ctx, "health probe failed",
		slog.String("target", p.target),
		slog.String("error", err.Error()),
	)
	return false
}

// request performs a single bounded GET against the probe target.
func (p *Prober) request(ctx context.Context, timeout time.Duration) (bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.target, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// A reachable but failing endpoint is a clean negative verdict,
		// not a transport error eligible for retry.
		return false, nil
	}

	var body healthResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr != nil {
		// Malformed body counts as a failed probe.
		return false, nil
	}

	return healthyStatuses[body.Status], nil
}

// isTransportError reports whether err is a generic network failure rather
// than a timeout. Timeouts already consumed their full budget; retrying
// them would double the worst-case latency for no new information.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return false
	}
	return true
}
