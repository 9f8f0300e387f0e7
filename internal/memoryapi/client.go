// Package memoryapi talks to the hosted memory and knowledge-graph service.
package memoryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"companion.app/relay/internal/model"
)

const maxErrorBody = 4 << 10

var ErrMissingMemoryID = errors.New("memory api returned no memory id")

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("memory api %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("memory api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("memory api base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("memory api base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// CreateMemory stores a finished conversation. Any non-2xx answer fails.
func (c *Client) CreateMemory(ctx context.Context, req model.CreateMemoryRequest) (*model.Memory, error) {
	var memory model.Memory
	if err := c.do(ctx, http.MethodPost, "/memories", req, &memory); err != nil {
		return nil, err
	}
	if memory.ID == "" {
		return nil, ErrMissingMemoryID
	}

	slog.DebugContext(ctx, "memory created",
		"memory_id", memory.ID,
		"entities", len(memory.Entities))
	return &memory, nil
}

func (c *Client) UpdateKnowledgeGraph(ctx context.Context, update model.GraphUpdate) error {
	if update.Empty() {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/knowledge-graph/update", update, nil)
}

// FindEntity looks an entity up by name. A 404 means it does not exist.
func (c *Client) FindEntity(ctx context.Context, name string) (*model.Entity, bool, error) {
	var entity model.Entity
	err := c.do(ctx, http.MethodGet, "/knowledge-graph/entities/"+url.PathEscape(name), nil, &entity)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &entity, true, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	slog.DebugContext(ctx, "memory api call completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
