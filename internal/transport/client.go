package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultUserAgent  = "cloudexplorer/0.1"
	DefaultMaxRetries = 5
)

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	UserAgent string
	// MaxRetries is the number of retries after the first attempt. A
	// negative value disables retries.
	MaxRetries int
}

// Client issues authenticated HTTP requests against one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       filesystem.AuthenticationManager
	logger     *slog.Logger
	userAgent  string
	maxRetries int

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a transport client. baseURL must not end with a slash;
// request paths start with one. The client keeps a reference to auth but
// does not own it.
func NewClient(
	baseURL string,
	httpClient *http.Client,
	auth filesystem.AuthenticationManager,
	logger *slog.Logger,
	opts Options,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
		logger:     logger,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		sleepFunc:  timeSleep,
	}
}

// BaseURL returns the URL request paths are appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one logical request. A Body that implements io.Seeker
// is rewound between attempts; any other non-nil Body disables retries
// because a partially consumed reader cannot be replayed.
type Request struct {
	Method string
	// Path is appended to the base URL. Absolute http(s) URLs (pagination
	// links, upload session URLs) are used as-is.
	Path          string
	Header        http.Header
	Body          io.Reader
	ContentLength int64
	// SkipAuth leaves the request unauthenticated. Only pre-authenticated
	// URLs handed out by the server may use it.
	SkipAuth bool
}

// Do executes r, retrying transient failures. On 2xx the response is
// returned and the caller closes its body. Non-2xx responses become a
// *StatusError; network failures wrap filesystem.ErrTransport; a refusal
// by the authentication manager wraps filesystem.ErrAuthentication.
func (c *Client) Do(ctx context.Context, r *Request) (*http.Response, error) {
	target := c.resolve(r.Path)
	if err := checkTarget(target); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", filesystem.ErrTransport, r.Method, r.Path, err)
	}

	seeker, rewindable := r.Body.(io.Seeker)
	canRetry := r.Body == nil || rewindable

	var attempt int
	for {
		if attempt > 0 && seeker != nil {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("%w: rewinding request body: %w", filesystem.ErrTransport, err)
			}
		}

		resp, err := c.doOnce(ctx, r, target)
		if err != nil {
			if errors.Is(err, filesystem.ErrAuthentication) {
				return nil, err
			}

			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", ctx.Err())
			}

			if canRetry && !permanent(err) && attempt < c.maxRetries {
				backoff := calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", r.Method),
					slog.String("path", r.Path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("transport: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%w: %s %s failed after %d attempts: %w",
				filesystem.ErrTransport, r.Method, r.Path, attempt+1, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", r.Method),
				slog.String("path", r.Path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if canRetry && isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", r.Method),
				slog.String("path", r.Path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", err)
			}

			attempt++

			continue
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", r.Method),
				slog.String("path", r.Path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, &StatusError{
			Method:     r.Method,
			Path:       r.Path,
			StatusCode: resp.StatusCode,
			RequestID:  requestID(resp.Header),
			Message:    strings.TrimSpace(string(errBody)),
		}
	}
}

// doOnce executes a single attempt (no retry). The authentication manager
// is consulted for every attempt so refreshed credentials are picked up.
func (c *Client) doOnce(ctx context.Context, r *Request, target string) (*http.Response, error) {
	body, length := requestBody(r)

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if length >= 0 {
		req.ContentLength = length
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("User-Agent", c.userAgent)

	if !r.SkipAuth {
		if c.auth == nil {
			return nil, fmt.Errorf("%w: no authentication manager", filesystem.ErrAuthentication)
		}

		if err := c.auth.Authenticate(ctx, req); err != nil {
			if errors.Is(err, filesystem.ErrAuthentication) {
				return nil, err
			}

			return nil, fmt.Errorf("%w: %w", filesystem.ErrAuthentication, err)
		}
	}

	return c.httpClient.Do(req)
}

// checkTarget rejects URLs that can never be dialed, such as the bare path
// produced by an empty base URL.
func checkTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid request URL: %w", err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid request URL %q: no http(s) endpoint configured", target)
	}

	return nil
}

// permanent reports client errors that a retry cannot fix: failures that
// net/http reports before or outside the network, such as TLS certificate
// errors or an unsupported scheme.
func permanent(err error) bool {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return false
	}

	var ne net.Error

	return !errors.As(ue.Err, &ne)
}

// lengther is implemented by bytes.Reader, strings.Reader and bytes.Buffer.
type lengther interface {
	Len() int
}

// requestBody shields the caller's reader from being closed by net/http
// (which would break replays of an *os.File) and works out the content
// length. A length of -1 means unknown.
func requestBody(r *Request) (io.Reader, int64) {
	if r.Body == nil {
		return nil, -1
	}

	length := int64(-1)

	switch {
	case r.ContentLength > 0:
		length = r.ContentLength
	case r.ContentLength == 0:
		if l, ok := r.Body.(lengther); ok {
			length = int64(l.Len())
		}
	}

	if length == 0 {
		return http.NoBody, 0
	}

	return io.NopCloser(r.Body), length
}

// resolve turns a request path into a full URL.
func (c *Client) resolve(p string) string {
	if strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "http://") {
		return p
	}

	return c.baseURL + p
}

// StripBaseURL removes the client's base URL prefix from a full URL,
// returning the path and query for use as Request.Path. Returns an error
// if the URL does not start with the expected base.
func (c *Client) StripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("%w: link %q does not match base URL %q", filesystem.ErrParse, fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}
