// Package fetch downloads remote source images and icons for conversion.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"icokit/internal/security"
	"icokit/pkg/logger"
)

const (
	DefaultMaxBytes = 4 << 20
	DefaultTimeout  = 12 * time.Second
	userAgent       = "icokit/1.0"
)

// ErrTooLarge is returned when a response body exceeds the client's limit.
var ErrTooLarge = errors.New("remote body exceeds size limit")

// Result is a fetched body and its reported content type.
type Result struct {
	Body        []byte
	ContentType string
}

// Client fetches URLs through a security.Guard. Concurrent requests for the
// same URL share one download.
type Client struct {
	http     *http.Client
	guard    *security.Guard
	maxBytes int64
	group    singleflight.Group
	log      *logger.Logger
}

// NewClient builds a client. Zero timeout or maxBytes use the defaults.
func NewClient(guard *security.Guard, timeout time.Duration, maxBytes int64, log *logger.Logger) *Client {
	if guard == nil {
		guard = &security.Guard{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         guard.DialContext,
				ForceAttemptHTTP2:   true,
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > 8 {
					return errors.New("too many redirects")
				}
				if !security.AllowedScheme(req.URL) {
					return errors.New("blocked redirect scheme")
				}
				return nil
			},
		},
		guard:    guard,
		maxBytes: maxBytes,
		log:      log.With("component", "fetch"),
	}
}

// Get downloads rawURL. The returned Result may be shared with concurrent
// callers and must not be modified.
func (c *Client) Get(ctx context.Context, rawURL string) (*Result, error) {
	u, err := c.guard.CheckURL(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	key := u.String()

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("shared in-flight fetch of %s", key)
	}
	return v.(*Result), nil
}

func (c *Client) get(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/x-icon,image/vnd.microsoft.icon,image/*;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip")

	c.log.Debug("fetching %s", url)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("fetch failed for %s: %v", url, err)
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("fetch got status %d for %s", resp.StatusCode, url)
		return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(peek512(body))
	}
	c.log.Debug("fetched %s: %d bytes, content-type: %s", url, len(body), ct)
	return &Result{Body: body, ContentType: ct}, nil
}

// readBody fails rather than truncates; a cut ICO would still parse.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

func peek512(b []byte) []byte {
	if len(b) > 512 {
		return b[:512]
	}
	return b
}
