package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Scout defaults.
const (
	DefaultScoutURL     = "http://127.0.0.1:8000/perceive"
	DefaultScoutTarget  = "https://scrapeme.live/shop"
	DefaultScoutTimeout = 60 * time.Second
)

// ScoutConfig configures the crawler service client.
type ScoutConfig struct {
	URL     string // crawler endpoint
	Target  string // site the crawler browses
	Timeout time.Duration
	Client  *http.Client
}

// Scout asks an external crawler service to browse a site and report what
// it learned about the query.
type Scout struct {
	url    string
	target string
	client *http.Client
}

type perceiveRequest struct {
	URL   string `json:"url"`
	Query string `json:"query"`
}

type perceiveResponse struct {
	Knowledge string `json:"knowledge"`
}

// NewScout creates a web_scout skill.
func NewScout(cfg ScoutConfig) *Scout {
	if cfg.URL == "" {
		cfg.URL = DefaultScoutURL
	}
	if cfg.Target == "" {
		cfg.Target = DefaultScoutTarget
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultScoutTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Scout{url: cfg.URL, target: cfg.Target, client: client}
}

func (*Scout) Name() string { return WebScout }

func (*Scout) Description() string {
	return "Browses live sites through the crawler service"
}

// Execute posts the query to the crawler and returns its knowledge.
func (s *Scout) Execute(ctx context.Context, in Input) (Output, error) {
	body, err := json.Marshal(perceiveRequest{URL: s.target, Query: in.Query})
	if err != nil {
		return Output{}, fmt.Errorf("failed to encode crawler request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Output{}, fmt.Errorf("failed to create crawler request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("crawler request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Output{}, fmt.Errorf("crawler returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out perceiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Output{}, fmt.Errorf("failed to decode crawler response: %w", err)
	}
	if strings.TrimSpace(out.Knowledge) == "" {
		return Output{}, ErrNoData
	}
	return Output{Data: out.Knowledge, Source: "crawler"}, nil
}
