package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const restMaxRetries = 3

// RESTConfig configures a REST API tool handler.
type RESTConfig struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	APIKey  string            `json:"api_key,omitempty"`
}

// RESTHandler calls an external HTTP endpoint with the tool arguments as a
// JSON body. Transient failures (network errors, 5xx) are retried with
// exponential backoff; 4xx responses fail immediately.
type RESTHandler struct {
	cfg    RESTConfig
	client *http.Client
}

// NewRESTHandler creates a REST tool handler. client may be nil to use a
// default.
func NewRESTHandler(cfg RESTConfig, client *http.Client) *RESTHandler {
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTHandler{cfg: cfg, client: client}
}

// Execute implements Handler.
func (h *RESTHandler) Execute(ctx context.Context, args map[string]any) (any, error) {
	var result any

	operation := func() error {
		var body io.Reader
		if len(args) > 0 && h.cfg.Method != http.MethodGet {
			payload, err := json.Marshal(args)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("marshal args: %w", err))
			}
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, h.cfg.Method, h.cfg.URL, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range h.cfg.Headers {
			req.Header.Set(k, v)
		}
		if h.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(data)))
		}

		if err := json.Unmarshal(data, &result); err != nil {
			result = string(data)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), restMaxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return result, nil
}

// WebSearchHandler is a stand-in search tool. It returns a structured empty
// result set; wiring a real search API is a deployment concern.
type WebSearchHandler struct{}

// Execute implements Handler.
func (h *WebSearchHandler) Execute(_ context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		query, _ = args["q"].(string)
	}
	return map[string]any{
		"query":   query,
		"results": []any{},
	}, nil
}
