package headless

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/browser-source/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/browser-source/internal/scheme"
)

// BlankURL loads an empty document without touching the network.
const BlankURL = "about:blank"

const blankHTML = "<!DOCTYPE html><html><head></head><body></body></html>"

// MaxDocumentSize caps a fetched document.
const MaxDocumentSize = 10 * 1024 * 1024

var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// FetcherConfig configures page loading.
type FetcherConfig struct {
	Timeout   time.Duration
	UserAgent string
	Retries   int
	// RateLimit is requests per second across all browsers; 0 is unlimited.
	RateLimit float64
}

// DefaultFetcherConfig returns the standard fetcher configuration
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:   15 * time.Second,
		UserAgent: "browser-source/1.0",
		Retries:   2,
	}
}

// Document is a loaded page, decoded to UTF-8.
type Document struct {
	URL         string
	Status      int
	ContentType string
	Body        string
}

// Fetcher loads documents for browsers. Remote fetches go through a rate
// limiter and a circuit breaker per host.
type Fetcher struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
}

// NewFetcher creates a fetcher
func NewFetcher(cfg FetcherConfig) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	breakers := resilience.NewGroup("page-fetch", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Fetcher{
		resty:    restyClient,
		limiter:  limiter,
		breakers: breakers,
	}
}

// BreakerState returns the state of host's fetch breaker
func (f *Fetcher) BreakerState(host string) resilience.State {
	return f.breakers.State(host)
}

// Fetch loads rawURL. Local URLs are read through the absolute scheme.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	switch {
	case rawURL == "" || rawURL == BlankURL:
		return &Document{URL: BlankURL, Status: 200, ContentType: "text/html", Body: blankHTML}, nil
	case scheme.IsLocal(rawURL):
		return f.fetchLocal(rawURL)
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return f.fetchRemote(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, rawURL)
	}
}

func (f *Fetcher) fetchLocal(rawURL string) (*Document, error) {
	res, err := scheme.Read(rawURL)
	if err != nil {
		return &Document{URL: rawURL, Status: 404}, err
	}
	text, err := decode(res.Data, res.MIMEType)
	if err != nil {
		return nil, err
	}
	return &Document{URL: rawURL, Status: 200, ContentType: res.MIMEType, Body: text}, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, rawURL string) (*Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	resp, err := resilience.Execute(f.breakers.Get(u.Host), func() (*resty.Response, error) {
		resp, err := f.resty.R().SetContext(ctx).Get(rawURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 500 {
			return resp, fmt.Errorf("server error: %s", resp.Status())
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	body := resp.Body()
	if len(body) > MaxDocumentSize {
		body = body[:MaxDocumentSize]
	}
	contentType := resp.Header().Get("Content-Type")
	text, err := decode(body, contentType)
	if err != nil {
		return nil, err
	}
	return &Document{
		URL:         rawURL,
		Status:      resp.StatusCode(),
		ContentType: contentType,
		Body:        text,
	}, nil
}

// decode converts data to UTF-8. Declared encodings win; otherwise the
// encoding is sniffed.
func decode(data []byte, contentType string) (string, error) {
	var label string
	if _, name, certain := charset.DetermineEncoding(data, contentType); certain {
		label = name
	} else {
		label = detectCharset(data)
	}
	if label == "utf-8" {
		return string(data), nil
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(data))
	if err != nil {
		return string(data), nil
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", label, err)
	}
	return string(out), nil
}

func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}
