// Package fetch retrieves listing pages and waits for them to become ready.
package fetch

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Fetcher is the page-retrieval capability consumed by the sampler.
type Fetcher interface {
	// Fetch blocks until the page at url presents at least one listing row
	// or the ready ceiling elapses, and returns the raw markup.
	Fetch(ctx context.Context, url string) (string, error)
	// Close releases the underlying network resources.
	Close()
}

// Options configures a PageFetcher.
type Options struct {
	// Timeout is the ceiling for one Fetch call, covering the request and
	// the wait for a listing row to appear.
	Timeout time.Duration
	// ReadyPoll is the interval between re-requests while waiting for a
	// listing row.
	ReadyPoll time.Duration
	UserAgent string
}

// PageFetcher fetches pages with a tuned colly collector. The listing table
// is populated by script on the live site, so a fresh response may not carry
// rows yet; Fetch re-requests the page until one shows up or the ceiling
// elapses, mirroring a browser-side wait.
type PageFetcher struct {
	collector *colly.Collector
	transport *http.Transport
	timeout   time.Duration
	readyPoll time.Duration
	closeOnce sync.Once
}

// NewPageFetcher builds a fetcher from opts, falling back to usable
// defaults for unset values.
func NewPageFetcher(opts Options) *PageFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = 500 * time.Millisecond
	}

	collectorOpts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(collectorOpts...)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(opts.Timeout)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	collector.WithTransport(transport)

	return &PageFetcher{
		collector: collector,
		transport: transport,
		timeout:   opts.Timeout,
		readyPoll: opts.ReadyPoll,
	}
}

// WithTransport replaces the HTTP transport. Used by tests to plug in a mock
// round tripper.
func (f *PageFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch retrieves url and blocks until the markup contains a listing row or
// the ceiling elapses. Request-level failures return immediately; they are
// recoverable and the caller simply waits for the next cycle.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	for {
		body, status, err := f.fetchOnce(url)
		if err != nil {
			return "", classify(err, status)
		}
		if hasListingRow(body) {
			return body, nil
		}

		select {
		case <-ctx.Done():
			return "", ErrTimeout{Err: errNotReady}
		case <-time.After(f.readyPoll):
		}
	}
}

// Close is idempotent and safe on any exit path.
func (f *PageFetcher) Close() {
	f.closeOnce.Do(func() {
		f.transport.CloseIdleConnections()
	})
}

// fetchOnce issues a single request through a collector clone so each
// attempt gets its own response handlers.
func (f *PageFetcher) fetchOnce(url string) (string, int, error) {
	c := f.collector.Clone()

	var (
		body    string
		status  int
		fetchEr error
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchEr = err
	})

	if err := c.Visit(url); err != nil && fetchEr == nil {
		fetchEr = err
	}
	c.Wait()

	return body, status, fetchEr
}

func hasListingRow(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	return doc.Find("tr.selling").Length() > 0
}
