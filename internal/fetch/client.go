// Package fetch downloads rootfs images over HTTP(S).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rtbox/rtbox/internal/models"
	"github.com/schollz/progressbar/v3"
)

// DefaultUserAgent is sent when no other user agent is configured.
const DefaultUserAgent = "rtbox/dev"

type (
	// Client fetches image listings and archives
	Client struct {
		httpClient *http.Client
		userAgent  string
		progress   io.Writer
	}

	// Option configures a Client during construction.
	Option func(*Client)
)

// StatusError is returned for any non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithProgress renders a progress bar for archive downloads on w.
func WithProgress(w io.Writer) Option {
	return func(cl *Client) {
		cl.progress = w
	}
}

// New creates a Client. The default HTTP client follows redirects and has no
// overall timeout; cancellation comes from the request context.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts a GET of rawURL and returns the streaming body together with
// its advertised size, or -1 when unknown. The caller must close the body.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, 0, err
	}

	if c.progress == nil {
		return resp.Body, resp.ContentLength, nil
	}
	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetWriter(c.progress),
		progressbar.OptionSetDescription("downloading "+path.Base(resp.Request.URL.Path)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.progress)
		}),
	)
	return &progressBody{
		Reader: io.TeeReader(resp.Body, bar),
		body:   resp.Body,
		bar:    bar,
	}, resp.ContentLength, nil
}

// Fetch reads a small document completely, limited to limit bytes.
func (c *Client) Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, models.NewError(models.ErrNetwork, "", "reading %s: %w", redactURL(rawURL), err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, models.NewError(models.ErrNetwork, "", "creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewError(models.ErrNetwork, "", "GET %s: %w", redactURL(rawURL), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, models.NewError(models.ErrNetwork, "", "%w",
			&StatusError{URL: redactURL(rawURL), StatusCode: resp.StatusCode})
	}
	return resp, nil
}

type progressBody struct {
	io.Reader
	body io.Closer
	bar  *progressbar.ProgressBar
}

func (p *progressBody) Close() error {
	p.bar.Finish()
	return p.body.Close()
}

// redactURL drops user info and query strings before a URL is logged.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
