// Package transport is the authenticated HTTP layer used to reach the remote
// job service.
//
// A Client issues one request per call and never retries. Responses with a
// non-2xx status are logged and reported as a nil body with a nil error, so
// callers decide whether an empty answer is fatal. Network failures surface
// as errors.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Header names shared with the callers building requests.
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderCacheControl  = "cache-control"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Params are query parameters appended to the target URL.
type Params map[string]string

// Headers are request headers.
type Headers map[string]string

// Client performs HTTP calls against hosts given per request.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client with a 5 minute request timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: 5 * time.Minute},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, host, path string, params Params, headers Headers) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, host, path, params, headers, nil)
}

// Post issues a POST request with the given body.
func (c *Client) Post(ctx context.Context, host, path string, params Params, headers Headers, body []byte) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, host, path, params, headers, body)
}

// Put issues a PUT request with the given body.
func (c *Client) Put(ctx context.Context, host, path string, params Params, headers Headers, body []byte) ([]byte, error) {
	return c.Do(ctx, http.MethodPut, host, path, params, headers, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, host, path string, params Params, headers Headers) ([]byte, error) {
	return c.Do(ctx, http.MethodDelete, host, path, params, headers, nil)
}

// Do performs a single request.
//
// The returned body is nil with a nil error when the server answered with a
// non-2xx status; the status is logged at error level.
func (c *Client) Do(ctx context.Context, method, host, path string, params Params, headers Headers, body []byte) ([]byte, error) {
	target := BuildURL(host, path, params)
	c.logger.Debug("curl info", "cmd", curlLine(method, target, headers))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("remote call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"reason", http.StatusText(resp.StatusCode),
			"body", truncate(string(data), 512))
		return nil, nil
	}
	c.logger.Debug("remote call ok", "method", method, "path", path, "status", resp.StatusCode)

	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// BuildURL joins host, path and query parameters. A host given without a
// scheme is reached over https.
func BuildURL(host, path string, params Params) string {
	target := host
	if !strings.HasPrefix(target, "https://") && !strings.HasPrefix(target, "http://") {
		target = "https://" + target
	}
	target = strings.TrimSuffix(target, "/") + path
	if len(params) == 0 {
		return target
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return target + "?" + q.Encode()
}

func curlLine(method, target string, headers Headers) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "curl --request %s %q", method, target)
	for _, k := range keys {
		v := headers[k]
		if strings.EqualFold(k, HeaderAuthorization) {
			scheme, _, _ := strings.Cut(v, " ")
			v = scheme + " ####"
		}
		fmt.Fprintf(&b, " --header %q", k+": "+v)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
