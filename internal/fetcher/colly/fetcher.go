// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/metrics"
)

// DefaultUserAgent identifies the crawler to source sites.
const DefaultUserAgent = "Mozilla/5.0 (compatible; Equipment-Parser/1.0)"

// maxRequestTimeout caps the shared client; each request is bounded by its
// own context deadline.
const maxRequestTimeout = 2 * time.Minute

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize caps response bodies in bytes; zero keeps colly's default.
	MaxBodySize int
}

// Fetcher implements equipment.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	robots        *robotsProbeState
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Clones of the base collector share its HTTP client,
// so transport and robots handling are fixed here and per-request timeouts
// travel on the request context.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.UserAgent = cfg.UserAgent
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	// Non-2xx responses reach OnResponse so the status can be reported.
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}

	var robots *robotsProbeState
	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		robots = newRobotsProbeState()
		transport = &robotsAwareTransport{base: transport, state: robots}
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(maxRequestTimeout)

	return &Fetcher{
		cfg:           cfg,
		robots:        robots,
		baseCollector: c,
	}
}

// Fetch executes a single GET or HEAD using Colly. Non-2xx responses are
// returned together with an error wrapping equipment.ErrUnexpectedStatus.
func (f *Fetcher) Fetch(ctx context.Context, request equipment.FetchRequest) (equipment.FetchResponse, error) {
	var (
		result   equipment.FetchResponse
		fetchErr error
	)
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	collector := f.buildCollector(reqCtx, request, start, &result, &fetchErr)

	if err := f.runCollector(reqCtx, collector, request, &fetchErr); err != nil {
		// On cancellation the collector may still be writing result.
		metrics.ObserveCrawl(request.URL, "error", 0)
		return equipment.FetchResponse{}, err
	}
	if result.Headers == nil {
		result.Headers = http.Header{}
	}
	if reason := f.robots.reasonFor(request.URL); reason != "" {
		result.Headers.Set(RobotsFallbackHeader, reason)
	}
	metrics.ObserveCrawl(request.URL, strconv.Itoa(result.StatusCode), len(result.Body))
	if result.StatusCode < 200 || result.StatusCode > 299 {
		return result, fmt.Errorf("fetch %s: %w: %d", request.URL, equipment.ErrUnexpectedStatus, result.StatusCode)
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request equipment.FetchRequest,
	start time.Time,
	result *equipment.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request equipment.FetchRequest,
	start time.Time,
	result *equipment.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = equipment.FetchResponse{
			URL:          r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			Headers:      headers,
			Body:         append([]byte(nil), r.Body...),
			Duration:     time.Since(start),
			UsedHeadless: false,
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, request equipment.FetchRequest, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		if request.Method == http.MethodHead {
			done <- collector.Head(request.URL)
			return
		}
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request equipment.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
