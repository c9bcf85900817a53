package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPConfig describes a model server reached over HTTP.
type HTTPConfig struct {
	URL               string // endpoint accepting one request frame per POST
	HealthURL         string // optional; polled until it reports ready
	HandshakeAttempts int
	PollInterval      time.Duration
	Client            *http.Client
	Logger            *slog.Logger
}

// HTTPTransport posts each frame to a model server. The server serializes on
// its own lock; the Gateway still admits one request at a time.
type HTTPTransport struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// DialHTTP waits for the model server to report ready and returns a transport.
func DialHTTP(ctx context.Context, cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if cfg.HandshakeAttempts <= 0 {
		cfg.HandshakeAttempts = 120
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &HTTPTransport{url: cfg.URL, client: client, logger: logger}
	if cfg.HealthURL != "" {
		if err := t.waitReady(ctx, cfg.HealthURL, cfg.HandshakeAttempts, cfg.PollInterval); err != nil {
			return nil, err
		}
	}
	logger.Info("Inference backend ready", "url", cfg.URL)
	return t, nil
}

func (t *HTTPTransport) waitReady(ctx context.Context, healthURL string, attempts int, interval time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, message, err := t.poll(ctx, healthURL)
		switch {
		case err != nil:
			lastErr = err
			t.logger.Debug("Backend health poll failed", "attempt", attempt, "error", err)
		case status == statusReady:
			return nil
		case status == statusError:
			return &Error{Kind: KindBackend, Op: "handshake", Message: message}
		default:
			t.logger.Info("Inference backend loading", "status", status, "attempt", attempt)
		}

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return &Error{Kind: KindTimeout, Op: "handshake", Message: "startup cancelled", Err: ctx.Err()}
		}
	}
	return &Error{Kind: KindUnavailable, Op: "handshake", Message: fmt.Sprintf("backend not ready after %d polls", attempts), Err: lastErr}
}

func (t *HTTPTransport) poll(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxFrameSize)).Decode(&body); err != nil {
		return "", "", fmt.Errorf("failed to decode health status: %w", err)
	}
	return body.Status, body.Message, nil
}

// RoundTrip posts frame and returns the response body.
func (t *HTTPTransport) RoundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(frame))
	if err != nil {
		return nil, unavailable("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFrameSize))
	if err != nil {
		return nil, unavailable("failed to read response", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, unavailable(fmt.Sprintf("model server returned %s", resp.Status), nil)
	}
	return bytes.TrimRight(body, "\r\n"), nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// IsHTTPURL reports whether target looks like an http(s) endpoint.
func IsHTTPURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}
