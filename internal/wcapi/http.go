package wcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	initialBackoff    = 500 * time.Millisecond
)

// Options configures an HTTPClient. The zero value is usable.
type Options struct {
	// ConsumerKey and ConsumerSecret are sent as HTTP basic auth, the
	// WooCommerce REST convention over HTTPS.
	ConsumerKey    string
	ConsumerSecret string
	// Token is sent as a bearer token when no consumer key is set.
	Token string

	// Timeout bounds each attempt. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of attempts made when the server answers 429.
	// Defaults to 3; 1 disables retrying.
	MaxRetries int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an HTTPClient rooted at baseURL, e.g.
// "https://shop.example/wp-json".
func New(baseURL string, opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		httpClient: hc,
		logger:     logger,
	}
}

// Do sends req. A 429 reply is retried with exponential backoff up to
// MaxRetries attempts; nothing else is retried.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	var body []byte
	if req.Data != nil {
		b, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = b
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var lastErr error
	for attempt := range c.opts.MaxRetries {
		resp, err := c.do(ctx, method, req.Path, body)
		if err == nil {
			return resp, nil
		}

		if !isRateLimit(err) {
			return nil, err
		}

		lastErr = err
		if attempt < c.opts.MaxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			c.logger.Debug("rate limited, backing off", "path", req.Path, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, &NetworkError{Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}
	}

	return nil, lastErr
}

func isRateLimit(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusTooManyRequests
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.url(path), rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq, body != nil)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, respBody)
	}

	out := &Response{Header: resp.Header, Status: resp.StatusCode}
	if len(bytes.TrimSpace(respBody)) > 0 {
		out.Body = json.RawMessage(respBody)
	}
	return out, nil
}

func (c *HTTPClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *HTTPClient) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	switch {
	case c.opts.ConsumerKey != "":
		req.SetBasicAuth(c.opts.ConsumerKey, c.opts.ConsumerSecret)
	case c.opts.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
}
