// Package fetch retrieves member scripts, stylesheets and their sub-resources
// over HTTP.
package fetch

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/assetpack/assetpack/internal/config"
	"github.com/assetpack/assetpack/internal/naming"
)

// Fetcher retrieves the body of an absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, absURL string) ([]byte, error)
}

// Error is returned when a URL cannot be retrieved. Callers recover from it by
// leaving the affected bucket unmerged.
type Error struct {
	URL        string
	StatusCode int // zero if no response was received
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client is an HTTP fetcher shared by all buckets of an engine. It holds one
// connection pool; Close releases idle connections between merge passes.
type Client struct {
	base        *url.URL
	headers     map[string]string
	credentials *config.SecretRef
	transport   *http.Transport
	client      *http.Client

	mu     sync.Mutex
	setter config.HeaderSetter
	init   bool
}

func New(c config.Fetch) (*Client, error) {
	var base *url.URL
	if c.BaseURL != "" {
		var err error
		base, err = url.Parse(c.BaseURL)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, &config.Error{Field: "fetch.base_url", Err: fmt.Errorf("expected an absolute URL, got %q", c.BaseURL)}
		}
	}

	dialer := &net.Dialer{Timeout: cmp.Or(time.Duration(c.ConnectTimeout), config.DefaultConnectTimeout)}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	return &Client{
		base:        base,
		headers:     c.Headers,
		credentials: c.Credentials,
		transport:   transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   cmp.Or(time.Duration(c.Timeout), config.DefaultFetchTimeout),
		},
	}, nil
}

// AbsoluteURL resolves a registered URL against the configured base URL.
// Protocol-relative URLs take the base scheme, or http without a base.
func (c *Client) AbsoluteURL(u string) string {
	if strings.HasPrefix(u, "//") {
		scheme := "http"
		if c.base != nil {
			scheme = c.base.Scheme
		}
		return scheme + ":" + u
	}

	if naming.IsAbsolute(u) || c.base == nil {
		return u
	}

	ref, err := url.Parse(u)
	if err != nil {
		return strings.TrimSuffix(c.base.String(), "/") + "/" + strings.TrimPrefix(u, "/")
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) Fetch(ctx context.Context, absURL string) ([]byte, error) {
	if err := c.initCredentials(ctx); err != nil {
		return nil, &Error{URL: absURL, Err: fmt.Errorf("init client: %w", err)}
	}

	req, err := http.NewRequest(http.MethodGet, absURL, nil)
	if err != nil {
		return nil, &Error{URL: absURL, Err: err}
	}
	if c.sameOrigin(req.URL) {
		if err := c.setHeaders(req); err != nil {
			return nil, &Error{URL: absURL, Err: err}
		}
	}
	req = req.WithContext(ctx)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{URL: absURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{URL: absURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unsuccessful status code %d", resp.StatusCode)}
	}

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: absURL, StatusCode: resp.StatusCode, Err: err}
	}
	return bs, nil
}

// Close releases idle connections. The client stays usable.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

func (c *Client) initCredentials(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.init {
		// We only do this once.  It cannot be done in the constructor
		// since secrets may only be resolvable at request time.
		return nil
	}

	if c.credentials == nil {
		c.init = true
		return nil
	}

	secret, err := c.credentials.Resolve(ctx)
	if err != nil {
		return err
	}

	setter, ok := secret.(config.HeaderSetter)
	if !ok {
		return fmt.Errorf("unsupported secret type for fetching: %T", secret)
	}

	c.setter = setter
	c.init = true
	return nil
}

// sameOrigin reports whether u is served by the configured base URL. Headers
// and credentials are only sent there, never to hosts a page or stylesheet
// happens to reference.
func (c *Client) sameOrigin(u *url.URL) bool {
	return c.base != nil && strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

func (c *Client) setHeaders(req *http.Request) error {
	for name, value := range c.headers {
		if value != "" {
			req.Header.Set(name, value)
		}
	}

	if c.setter != nil {
		return c.setter.SetHeader(req)
	}
	return nil
}
