package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shivramiyer22/rideshare-sub001/task"
)

// maxResponseBytes caps how much of an agent response is read.
const maxResponseBytes = 16 << 20

// ErrorBody is the body agents return with a non-2xx status.
type ErrorBody struct {
	Error string `json:"error"`
}

// RemoteError is returned when an agent answers with a non-2xx status.
type RemoteError struct {
	Task       task.Name
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("agent %s: status %d: %s", e.Task, e.StatusCode, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for agent calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCodec sets the request and preferred response codec.
func WithCodec(codec Codec) Option {
	return func(c *Client) { c.codec = codec }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Add(key, value) }
}

// Client calls remote agent services. Each task is served at
// POST {base}/{task}; the request body is the task input and a 2xx
// response body is the task output, both in the negotiated codec.
type Client struct {
	base    *url.URL
	http    *http.Client
	codec   Codec
	logger  *slog.Logger
	headers http.Header
}

// NewClient creates a client for the agents served under baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("pricing/agent: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("pricing/agent: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{},
		codec:   JSONCodec{},
		logger:  slog.Default(),
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Func returns a task.Func that calls the named agent.
func (c *Client) Func(name task.Name) task.Func {
	return func(ctx context.Context, in task.Input) (task.Payload, error) {
		return c.Call(ctx, name, in)
	}
}

// Register binds every named task in reg to this client. With no names,
// all four pipeline tasks are registered.
func (c *Client) Register(reg *task.Registry, names ...task.Name) {
	if len(names) == 0 {
		names = task.Names()
	}
	for _, name := range names {
		reg.Register(name, c.Func(name))
	}
}

// Call invokes one agent. Cancelling ctx aborts the request.
func (c *Client) Call(ctx context.Context, name task.Name, in task.Input) (task.Payload, error) {
	kind, ok := task.ExpectedKind(name)
	if !ok {
		return nil, fmt.Errorf("pricing/agent: unknown task %q", name)
	}

	body, err := c.codec.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("pricing/agent: encode %s input: %w", name, err)
	}

	endpoint := c.base.JoinPath(string(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pricing/agent: build request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", c.codec.ContentType())
	req.Header.Set("Accept", c.codec.ContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pricing/agent: call %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("pricing/agent: read %s response: %w", name, err)
	}
	codec := CodecForContentType(resp.Header.Get("Content-Type"))

	c.logger.Debug("agent call",
		slog.String("task", string(name)),
		slog.Int("status", resp.StatusCode),
		slog.String("codec", codec.Name()),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Task: name, StatusCode: resp.StatusCode, Message: errorMessage(codec, data)}
	}

	out, _ := task.NewPayload(kind)
	if err := codec.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("pricing/agent: decode %s output: %w", name, err)
	}
	return out, nil
}

func errorMessage(codec Codec, data []byte) string {
	var eb ErrorBody
	if err := codec.Unmarshal(data, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "no error body"
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

// IsRemote reports whether err came from an agent's non-2xx answer.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
