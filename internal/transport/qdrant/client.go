package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/domain"
	"github.com/embedhq/codevec/internal/metrics"
)

// Client talks to the Qdrant REST API. It implements the four store
// primitives the vectorstore manager needs (usecase/vectorstore.Store):
// list-collections, create-collection, create-payload-index and single-point
// upsert. Requests are single-shot: no retries, no circuit breaking.
//
// The underlying http.Client is safe for concurrent use, so one Client may be
// shared across goroutines.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *zap.Logger
}

// Config holds the Qdrant connection settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a Qdrant REST client. No network I/O happens here.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ListCollections returns the names of all collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.do(ctx, opListCollections, http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, err
	}
	names := make([]string, len(result.Collections))
	for i, col := range result.Collections {
		names[i] = col.Name
	}
	return names, nil
}

// CreateCollection creates a collection with the given vector parameters.
func (c *Client) CreateCollection(ctx context.Context, name string, params domain.VectorParams) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     params.Size,
			"distance": string(params.Distance),
		},
	}
	path := "/collections/" + url.PathEscape(name)
	return c.do(ctx, opCreateCollection, http.MethodPut, path, body, nil)
}

// CreateFieldIndex creates a payload index on a dot-path field. The
// collection must already exist.
func (c *Client) CreateFieldIndex(ctx context.Context, collection string, index domain.PayloadIndex) error {
	body := map[string]any{
		"field_name":   index.FieldPath,
		"field_schema": string(index.Type),
	}
	path := "/collections/" + url.PathEscape(collection) + "/index"
	return c.do(ctx, opCreateFieldIndex, http.MethodPut, path, body, nil)
}

// UpsertPoint writes exactly one point, waiting for the write to be applied.
// An existing point with the same id is replaced wholesale.
func (c *Client) UpsertPoint(ctx context.Context, collection string, point domain.Point) error {
	body := map[string]any{
		"points": []map[string]any{
			{
				"id":      point.ID,
				"vector":  point.Vector,
				"payload": point.Payload,
			},
		},
	}
	path := "/collections/" + url.PathEscape(collection) + "/points?wait=true"
	return c.do(ctx, opUpsertPoint, http.MethodPut, path, body, nil)
}

// HealthCheck verifies the service responds and the key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.ListCollections(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// envelope is the Qdrant REST response wrapper. Result is decoded lazily
// because its shape depends on the endpoint; Status carries the server error
// message on failures (a bare "ok" string on success).
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.VectorStoreRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.VectorStoreRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: read response: %w: %w", op, domain.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.VectorStoreRequestsTotal.WithLabelValues(op, "error").Inc()
		msg := serverMessage(data)
		return &APIError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: msg,
			Err:     classifyStatus(resp.StatusCode, msg),
		}
	}

	metrics.VectorStoreRequestsTotal.WithLabelValues(op, "success").Inc()
	metrics.VectorStoreRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
	c.logger.Debug("Qdrant request completed",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))

	if result != nil {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", op, err)
		}
	}
	return nil
}

// serverMessage extracts the error text from a Qdrant failure body, falling
// back to the raw body when the shape is unexpected.
func serverMessage(data []byte) string {
	var env struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if json.Unmarshal(data, &env) == nil && env.Status.Error != "" {
		return env.Status.Error
	}
	return strings.TrimSpace(string(data))
}
