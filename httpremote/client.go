package httpremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/velmie/syncbox"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxErrorBody = 512
	notConfiguredMsg    = "backend not configured (endpoint empty)"
)

// ClientConfig defines how the Client reaches the remote.
type ClientConfig struct {
	// Endpoint is the full URL of the apply endpoint, e.g.
	// https://api.example.com/sync/apply.
	Endpoint string
	// APIKey is sent as both apikey and bearer token when set.
	APIKey     string
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is not provided.
	Timeout time.Duration
	// MaxErrorBody caps how much of an error response ends up in a Result.
	MaxErrorBody int
}

func (c ClientConfig) withDefaults() ClientConfig {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.MaxErrorBody <= 0 {
		c.MaxErrorBody = defaultMaxErrorBody
	}

	return c
}

// ClientOption configures a Client.
type ClientOption func(*ClientConfig)

// WithAPIKey sets the key sent in the apikey and Authorization headers.
func WithAPIKey(key string) ClientOption {
	return func(c *ClientConfig) {
		c.APIKey = key
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// Client is a syncbox.Remote backed by an HTTP endpoint. Any non-2xx
// response, transport error or timeout is reported as a failed Result.
type Client struct {
	cfg ClientConfig
}

var _ syncbox.BatchRemote = (*Client)(nil)

// NewClient constructs a Client posting to endpoint. An empty endpoint yields
// a Client that fails every delivery with "backend not configured".
func NewClient(endpoint string, opts ...ClientOption) *Client {
	cfg := ClientConfig{Endpoint: endpoint}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{cfg: cfg.withDefaults()}
}

// Apply implements syncbox.Remote.
func (c *Client) Apply(ctx context.Context, env syncbox.Envelope, preview syncbox.RequestPreview) syncbox.Result {
	if c.cfg.Endpoint == "" {
		return syncbox.Result{Message: notConfiguredMsg}
	}
	body, err := json.Marshal(env)
	if err != nil {
		return syncbox.Result{Message: fmt.Sprintf("HTTP error: encode envelope: %v", err)}
	}

	req, err := c.newRequest(ctx, c.cfg.Endpoint, body)
	if err != nil {
		return syncbox.Result{Message: fmt.Sprintf("HTTP error: %v", err)}
	}
	req.Header.Set(headerIdempotencyKey, env.OpID)
	req.Header.Set(headerDeviceID, env.DeviceID)
	req.Header.Set(headerPreviewMethod, preview.Method)
	req.Header.Set(headerPreviewPath, preview.Path)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return syncbox.Result{Message: fmt.Sprintf("HTTP error: %v", err)}
	}
	defer resp.Body.Close()

	text := c.readBody(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return syncbox.Result{OK: true, Message: "HTTP " + resp.Status}
	}
	if text == "" {
		return syncbox.Result{Message: "HTTP " + resp.Status}
	}

	return syncbox.Result{Message: fmt.Sprintf("HTTP %s: %s", resp.Status, text)}
}

// ApplyBatch delivers several envelopes in one request to the batch
// endpoint. When that endpoint is unavailable or answers with an unexpected
// shape it falls back to delivering each envelope in order with Apply.
// Results are returned in input order.
func (c *Client) ApplyBatch(ctx context.Context, deliveries []Delivery) []syncbox.Result {
	if len(deliveries) == 0 {
		return nil
	}
	if c.cfg.Endpoint == "" {
		out := make([]syncbox.Result, len(deliveries))
		for i := range out {
			out[i] = syncbox.Result{Message: notConfiguredMsg}
		}
		return out
	}

	if results, ok := c.tryBatch(ctx, deliveries); ok {
		return results
	}

	out := make([]syncbox.Result, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, c.Apply(ctx, d.Envelope, d.Preview))
	}

	return out
}

func (c *Client) tryBatch(ctx context.Context, deliveries []Delivery) ([]syncbox.Result, bool) {
	body, err := json.Marshal(batchRequest{Ops: deliveries})
	if err != nil {
		return nil, false
	}

	req, err := c.newRequest(ctx, batchURL(c.cfg.Endpoint), body)
	if err != nil {
		return nil, false
	}
	req.Header.Set(headerBatchCount, strconv.Itoa(len(deliveries)))

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}
	var decoded batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false
	}
	if len(decoded.Results) != len(deliveries) {
		return nil, false
	}

	return decoded.Results, true
}

func (c *Client) newRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	if c.cfg.APIKey != "" {
		req.Header.Set(headerAPIKey, c.cfg.APIKey)
		req.Header.Set(headerAuthorization, "Bearer "+c.cfg.APIKey)
	}

	return req, nil
}

func (c *Client) readBody(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, int64(c.cfg.MaxErrorBody)))
	return strings.TrimSpace(string(raw))
}

func batchURL(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/") + "-batch"
}
