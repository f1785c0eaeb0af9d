// Package httpclient sends CLI commands to the arena API and decodes its
// response envelope.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codearena/internal/cli/command"

	"github.com/google/uuid"
)

const (
	traceIDHeader = "X-Trace-Id"
	maxBodyBytes  = 8 << 20
)

// Envelope mirrors the service's {code, message, data, trace_id} body.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

// Reply is one API round trip. Envelope is nil when the body is not an envelope.
type Reply struct {
	StatusCode int
	Duration   time.Duration
	TraceID    string
	Body       []byte
	Envelope   *Envelope
}

// OK reports a 2xx status with a zero envelope code.
func (r Reply) OK() bool {
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return false
	}
	return r.Envelope == nil || r.Envelope.Code == 0
}

// Client talks to one arena-service base URL.
type Client struct {
	baseURL string
	timeout time.Duration
	token   func() string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration, token func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		token:   token,
		http:    &http.Client{},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

// Send executes a built command request. Every request carries a fresh trace
// id so a failing call can be found in the service logs.
func (c *Client) Send(ctx context.Context, spec command.RequestSpec) (Reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, c.baseURL+spec.Path, body)
	if err != nil {
		return Reply{}, fmt.Errorf("build %s %s: %w", spec.Method, spec.Path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(traceIDHeader, uuid.NewString())
	for name, value := range spec.Headers {
		if value != "" {
			req.Header.Set(name, value)
		}
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{Duration: time.Since(started)}, fmt.Errorf("%s %s: %w", spec.Method, spec.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	reply := Reply{
		StatusCode: resp.StatusCode,
		Duration:   time.Since(started),
		TraceID:    resp.Header.Get(traceIDHeader),
		Body:       raw,
	}
	if err != nil {
		return reply, fmt.Errorf("read response body: %w", err)
	}
	var env Envelope
	if json.Unmarshal(raw, &env) == nil && (env.Message != "" || env.Data != nil) {
		reply.Envelope = &env
		if reply.TraceID == "" {
			reply.TraceID = env.TraceID
		}
	}
	return reply, nil
}
