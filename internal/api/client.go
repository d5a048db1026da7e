// Package api is the gateway to the comment service. Every call goes through Client.Do,
// which authorizes it, encodes the body, and turns failures into typed errors.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"commenthub/internal/metrics"
	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 64 * 1024
)

// TokenSource hands out an access token that is valid for at least the next request
type TokenSource interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// AuthMode says whether a request carries a bearer token
type AuthMode int

const (
	// AuthNone never attaches a token
	AuthNone AuthMode = iota
	// AuthRequired aborts before any network activity when no token can be obtained
	AuthRequired
	// AuthOptional attaches a token when the session has one
	AuthOptional
)

// Request describes one exchange with the comment service
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        Body
	ContentType string // overrides the body's content type when set
	Auth        AuthMode
	BearerToken string // used as-is instead of asking the TokenSource
}

// Client handles HTTP API communication
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	metrics    metrics.Recorder
	userAgent  string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit paces outgoing requests; rps <= 0 disables pacing
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics reports every exchange to r
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithUserAgent
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTokenSource sets where authorized calls get their token
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// NewClient creates a new API client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		metrics:   metrics.Noop{},
		userAgent: "commenthub/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource wires the session manager in after construction
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the service root all paths are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req and decodes a JSON response into out (which may be nil)
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	bearer, err := c.authorize(ctx, req)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.NewNetworkError("request cancelled while waiting for rate limiter", err)
		}
	}

	var (
		bodyReader  io.Reader
		contentType = "application/json"
	)
	if req.Body != nil {
		r, ct, err := req.Body.encode()
		if err != nil {
			return models.NewProtocolError(models.ErrCodeInvalidInput, "failed to encode request body", err)
		}
		bodyReader, contentType = r, ct
	}
	if req.ContentType != "" {
		contentType = req.ContentType
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return models.NewProtocolError(models.ErrCodeInvalidInput, "failed to create request", err)
	}

	requestID, ok := logger.RequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		c.metrics.RecordRequest(req.Method, 0, latency)
		return models.NewNetworkError(fmt.Sprintf("request to %s failed", req.Path), err)
	}
	defer resp.Body.Close()

	logger.HTTP(req.Method, req.Path, resp.StatusCode, int(latency.Milliseconds()))
	c.metrics.RecordRequest(req.Method, resp.StatusCode, latency)

	return decodeResponse(resp, out)
}

func (c *Client) authorize(ctx context.Context, req Request) (string, error) {
	if req.BearerToken != "" {
		return req.BearerToken, nil
	}
	switch req.Auth {
	case AuthRequired:
		if c.tokens == nil {
			return "", models.NewAuthError(models.ErrCodeUnauthorized, "authentication required", models.ErrAuthRequired)
		}
		tok, err := c.tokens.GetValidAccessToken(ctx)
		if err != nil {
			logger.WithFields(map[string]interface{}{"path": req.Path}).WithError(err).Warn("failed to get access token")
			return "", models.NewAuthError(models.ErrCodeUnauthorized, "authentication required", err)
		}
		return tok, nil
	case AuthOptional:
		if c.tokens == nil {
			return "", nil
		}
		tok, err := c.tokens.GetValidAccessToken(ctx)
		if errors.Is(err, models.ErrNoAccessToken) {
			return "", nil
		}
		if err != nil {
			return "", models.NewAuthError(models.ErrCodeUnauthorized, "authentication required", err)
		}
		return tok, nil
	default:
		return "", nil
	}
}

// decodeResponse converts non-2xx responses into typed errors and decodes JSON bodies.
// Bodies that are not JSON (e.g. 204) leave out untouched.
func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		msg := errorMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return &models.AppError{
				Kind:       models.KindAuthentication,
				Code:       models.ErrCodeUnauthorized,
				Message:    msg,
				StatusCode: resp.StatusCode,
			}
		}
		return models.NewServerError(resp.StatusCode, msg)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return models.NewProtocolError(models.ErrCodeDecode, "failed to decode response", err)
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body: either
// {detail|message|error: "..."} or field validation errors {field: ["..."]}.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var eb models.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Text() != "" {
		return eb.Text()
	}

	var fields map[string][]string
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(fields[name], " ")))
	}
	return strings.Join(parts, "; ")
}
