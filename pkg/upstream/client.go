// Package upstream performs single fetches against remote HTTP data sources.
//
// A Client is built once at startup from static configuration (base URL,
// credentials, timeout) and is safe for concurrent use. Every fetch validates
// the query shape and credentials before any network I/O, applies a bounded
// per-call timeout, makes exactly one HTTP attempt and classifies failures
// into the toolerr taxonomy.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 16 << 20
)

// AuthMode selects how a credential is attached to outgoing requests.
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthBearer
	AuthQueryParam
)

// Auth describes the credential a source needs.
type Auth struct {
	Mode       AuthMode
	Param      string // query parameter name for AuthQueryParam
	Credential string
	Required   bool
	Name       string // human-readable credential name used in errors
}

// Query is one logical request against the source. Key holds the identifying
// value (search term, accession, DOI ...) and must be non-empty.
type Query struct {
	Path    string
	Method  string
	Params  url.Values
	Body    any
	Key     string
	KeyName string
}

// Client fetches from a single upstream source.
type Client struct {
	name      string
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	auth      Auth
	defaults  url.Values
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every network call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAuth attaches a credential policy.
func WithAuth(a Auth) Option {
	return func(c *Client) { c.auth = a }
}

// WithDefaultParams adds query parameters sent with every request.
func WithDefaultParams(v url.Values) Option {
	return func(c *Client) {
		for k, vals := range v {
			for _, val := range vals {
				if val != "" {
					c.defaults.Add(k, val)
				}
			}
		}
	}
}

// WithRateLimit paces requests to at most rps per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the source called name rooted at baseURL.
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:      name,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		timeout:   defaultTimeout,
		defaults:  url.Values{},
		userAgent: "biobroker/1.0",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the source name.
func (c *Client) Name() string { return c.name }

// Fetch performs the request and returns the raw response body.
func (c *Client) Fetch(ctx context.Context, q Query) ([]byte, error) {
	if err := c.check(q); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, toolerr.Wrap(toolerr.UpstreamTimeout, err, "%s: timed out waiting for request slot", c.name)
		}
	}

	req, err := c.newRequest(ctx, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	c.logger.Debug("upstream fetch",
		"source", c.name,
		"path", q.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, toolerr.Upstream(resp.StatusCode, "%s: not found", c.name)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, toolerr.Upstream(resp.StatusCode, "%s returned %s%s", c.name, http.StatusText(resp.StatusCode), snippet(body))
	}
	return body, nil
}

// FetchJSON fetches and decodes a JSON body into out.
func (c *Client) FetchJSON(ctx context.Context, q Query, out any) error {
	body, err := c.Fetch(ctx, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return toolerr.Wrap(toolerr.UpstreamError, err, "%s: malformed JSON response", c.name)
	}
	return nil
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var te *toolerr.Error
	return errors.As(err, &te) && te.Kind == toolerr.UpstreamError && te.Status == http.StatusNotFound
}

func (c *Client) check(q Query) error {
	if strings.TrimSpace(q.Path) == "" {
		return toolerr.New(toolerr.InvalidQuery, "%s: empty endpoint path", c.name)
	}
	if strings.TrimSpace(q.Key) == "" {
		name := q.KeyName
		if name == "" {
			name = "identifying parameter"
		}
		return toolerr.New(toolerr.InvalidQuery, "%s: %s must not be empty", c.name, name)
	}
	if c.auth.Required && strings.TrimSpace(c.auth.Credential) == "" {
		name := c.auth.Name
		if name == "" {
			name = "credential"
		}
		return toolerr.New(toolerr.MissingCredential, "%s %s is not configured", c.name, name)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, q Query) (*http.Request, error) {
	params := url.Values{}
	for k, v := range c.defaults {
		params[k] = append([]string(nil), v...)
	}
	for k, v := range q.Params {
		params[k] = append([]string(nil), v...)
	}
	if c.auth.Mode == AuthQueryParam && c.auth.Credential != "" {
		params.Set(c.auth.Param, c.auth.Credential)
	}

	target := c.baseURL + "/" + strings.TrimLeft(q.Path, "/")
	if enc := params.Encode(); enc != "" {
		target += "?" + enc
	}

	method := q.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if q.Body != nil {
		data, err := json.Marshal(q.Body)
		if err != nil {
			return nil, toolerr.Wrap(toolerr.InvalidQuery, err, "%s: encode request body", c.name)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.InvalidQuery, err, "%s: build request", c.name)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, application/xml;q=0.9, */*;q=0.8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth.Mode == AuthBearer && c.auth.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.auth.Credential)
	}
	return req, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return toolerr.Wrap(toolerr.UpstreamTimeout, err, "%s did not respond within %s", c.name, c.timeout)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return toolerr.Wrap(toolerr.UpstreamTimeout, err, "%s did not respond within %s", c.name, c.timeout)
	}
	return toolerr.Wrap(toolerr.UpstreamError, err, "%s: connection failed", c.name)
}

const snippetLength = 200

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", normalize.Truncate(s, snippetLength))
}
