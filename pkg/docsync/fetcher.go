package docsync

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html/charset"

	"github.com/jingkaihe/llmsync/pkg/version"
)

const (
	// DefaultTimeout bounds a single GET, including reading the body.
	DefaultTimeout = 10 * time.Second

	maxRedirects = 10
)

// Fetcher performs a single blocking GET and returns the body as text.
// A non-nil error means the source produced nothing usable.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Allower decides whether a URL may be fetched at all.
type Allower interface {
	IsAllowed(url string) (bool, error)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// HTTPFetcher fetches documentation digests over HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	transport http.RoundTripper
	timeout   time.Duration
	userAgent string
	allower   Allower
}

// FetcherOption configures an HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) FetcherOption {
	return func(f *HTTPFetcher) {
		if userAgent != "" {
			f.userAgent = userAgent
		}
	}
}

// WithAllower restricts fetches to URLs the allower accepts.
func WithAllower(allower Allower) FetcherOption {
	return func(f *HTTPFetcher) {
		f.allower = allower
	}
}

// WithTransport replaces the underlying round tripper. It is still wrapped
// for tracing.
func WithTransport(transport http.RoundTripper) FetcherOption {
	return func(f *HTTPFetcher) {
		if transport != nil {
			f.transport = transport
		}
	}
}

// NewHTTPFetcher creates a fetcher with a DefaultTimeout-bounded client that
// follows at most maxRedirects redirects. When an Allower is set every hop
// must pass it.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		transport: http.DefaultTransport,
		timeout:   DefaultTimeout,
		userAgent: version.UserAgent(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = &http.Client{
		Timeout:       f.timeout,
		Transport:     otelhttp.NewTransport(f.transport),
		CheckRedirect: f.checkRedirect,
	}

	return f
}

// Timeout returns the per-request timeout in effect.
func (f *HTTPFetcher) Timeout() time.Duration {
	return f.timeout
}

func (f *HTTPFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.Errorf("stopped after %d redirects", maxRedirects)
	}

	return f.checkAllowed(req.URL.String(), req.URL.Hostname())
}

func (f *HTTPFetcher) checkAllowed(rawURL, host string) error {
	if f.allower == nil {
		return nil
	}

	allowed, err := f.allower.IsAllowed(rawURL)
	if err != nil {
		return errors.Wrap(err, "failed to validate domain")
	}
	if !allowed {
		return errors.Wrapf(ErrDomainNotAllowed, "%s", host)
	}
	return nil
}

// Fetch performs one GET against rawURL. There are no retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid URL")
	}
	if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		return "", errors.Errorf("unsupported URL scheme %q", parsedURL.Scheme)
	}

	if err := f.checkAllowed(rawURL, parsedURL.Hostname()); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain, text/markdown;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(decodeBody(resp.Body, resp.Header.Get("Content-Type")))
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	return string(body), nil
}

// decodeBody transcodes to UTF-8 when the response declares a different
// charset. Bodies without a declared charset are passed through as is.
func decodeBody(body io.Reader, contentType string) io.Reader {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}

	name := strings.ToLower(strings.TrimSpace(params["charset"]))
	if name == "" || name == "utf-8" || name == "utf8" {
		return body
	}

	enc, _ := charset.Lookup(name)
	if enc == nil {
		return body
	}

	return enc.NewDecoder().Reader(body)
}
