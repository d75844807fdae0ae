// Package source provides the acquisition providers that turn dashboard pages
// and Socrata data views into raw records.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"njvaxbot/internal/table"
)

// Default request settings.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultTimeout   = 30 * time.Second
)

var (
	// ErrUnexpectedStatusCode indicates an HTTP response with unexpected status.
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	// ErrBodyTooLarge indicates a response larger than the configured limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// Provider produces the raw records of one source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]table.RawRecord, error)
}

// ScraperOptions configures a Scraper.
type ScraperOptions struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	BufferSizeKb      int
}

// Scraper fetches documents over HTTP or from local snapshot files.
type Scraper struct {
	client       *resty.Client
	bufferSizeKb int
}

// NewScraper creates a rate-limited resty client.
func NewScraper(opts ScraperOptions) *Scraper {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Scraper{
		client:       client,
		bufferSizeKb: opts.BufferSizeKb,
	}
}

// Get returns the body of url. Any status other than 200 is an error.
func (s *Scraper) Get(ctx context.Context, url string) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("request %s failed: %w", url, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w: %d from %s", ErrUnexpectedStatusCode, resp.StatusCode(), url)
	}

	body := resp.Body()

	// A zero limit means unlimited.
	if limit := s.bufferSizeKb * 1024; limit > 0 && len(body) > limit {
		return "", fmt.Errorf("%w: %d bytes from %s exceeds %d KB", ErrBodyTooLarge, len(body), url, s.bufferSizeKb)
	}

	return string(body), nil
}

// ReadLocalFile reads content from a local file path.
func (s *Scraper) ReadLocalFile(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read local file %s: %w", filePath, err)
	}

	return string(content), nil
}

// Load reads file when set, otherwise fetches url.
func (s *Scraper) Load(ctx context.Context, url, file string) (string, error) {
	if file != "" {
		return s.ReadLocalFile(file)
	}

	return s.Get(ctx, url)
}
