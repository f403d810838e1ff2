// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/clmercier/urlcollector/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector. Each worker
// owns its own Fetcher so collectors and transports are never shared across
// goroutines.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))

	// The crawl scope is enforced upstream by the worker, not here.
	c.IgnoreRobotsTxt = true

	// A 404 is a crawl result, not a transport failure. Parsing error
	// responses routes every received status code through OnResponse.
	c.ParseHTTPErrorResponse = true

	c.WithTransport(newHTTPTransport())

	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. A response with any HTTP status code,
// 2xx or not, is a successful fetch. An error is returned only when no
// response came back at all (DNS, dial, TLS, timeout).
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
		got      bool
	)
	start := time.Now()

	// Clone so per-visit callbacks never accumulate on the base collector.
	collector := f.baseCollector.Clone()

	collector.OnResponse(func(r *colly.Response) {
		result = responseFrom(r, start)
		got = true
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// The server did answer; keep the status code.
			result = responseFrom(r, start)
			got = true
			return
		}
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, url, &got); err != nil {
		return crawler.FetchResponse{}, err
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if !got {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: no response received", url)
	}
	return result, nil
}

func responseFrom(r *colly.Response, start time.Time) crawler.FetchResponse {
	resp := crawler.FetchResponse{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
	if r.Request != nil && r.Request.URL != nil {
		// Redirects may have moved us. Links must resolve against
		// where the document actually lives.
		resp.FinalURL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.ContentType = r.Headers.Get("Content-Type")
	}
	return resp
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, got *bool) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && !*got {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
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
