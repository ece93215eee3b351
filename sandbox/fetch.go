package sandbox

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent is sent with HTTP page requests unless overridden.
const DefaultUserAgent = "jsbridge-sandbox/1.0"

// BlankURL loads an empty page.
const BlankURL = "about:blank"

// Document is a fetched page or script resource.
type Document struct {
	URL         string
	Body        string
	ContentType string
}

// IsHTML reports whether the document should be parsed as HTML.
func (d *Document) IsHTML() bool {
	if strings.Contains(d.ContentType, "html") {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(d.Body), "<")
}

// Fetcher loads page and script sources. Fetch is called off the
// controlling goroutine.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Document, error)
}

// HTTPFetcher loads http(s) URLs with resty and everything else from disk.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a fetcher with the given User-Agent and request
// timeout.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("User-Agent", userAgent)
	return &HTTPFetcher{client: client}
}

// Fetch loads rawURL. Supported forms are about:blank, http(s)://, file://
// and bare filesystem paths.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Document, error) {
	if rawURL == BlankURL || rawURL == "" {
		return &Document{URL: BlankURL, ContentType: "text/html"}, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL, headers)
	case "file":
		return fetchFile(rawURL, u.Path)
	case "":
		return fetchFile(rawURL, rawURL)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, rawURL string, headers map[string]string) (*Document, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s (url: %s)", status, resp.Status(), rawURL)
	}

	return &Document{
		URL:         rawURL,
		Body:        resp.String(),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

func fetchFile(rawURL, path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // pages are loaded from caller-chosen paths
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	contentType := "application/javascript"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		contentType = "text/html"
	}
	return &Document{URL: rawURL, Body: string(data), ContentType: contentType}, nil
}

// resolve returns ref relative to base.
func resolve(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid script src %q: %w", ref, err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
