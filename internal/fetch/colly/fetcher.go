// Package collyfetch implements the plain-HTTP fetch capability using
// gocolly. Domain-level lookups go through here; no browser session is
// involved.
package collyfetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxBody   int
}

// Fetcher implements core.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 2 << 20
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and returns the status and body. A non-2xx
// status is not an error; the caller classifies it.
func (f *Fetcher) Fetch(ctx context.Context, url string) (int, []byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.MaxBodySize = f.cfg.MaxBody

	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(resp *colly.Response) {
		status = resp.StatusCode
		body = append([]byte(nil), resp.Body...)
	})
	collector.OnError(func(resp *colly.Response, err error) {
		if resp != nil && resp.StatusCode > 0 {
			// The server answered; keep the status for classification.
			status = resp.StatusCode
			body = append([]byte(nil), resp.Body...)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	case err := <-done:
		// Visit reports non-2xx statuses as errors; those were already
		// captured with their status code and are not failures here.
		if err != nil && status == 0 {
			return 0, nil, fmt.Errorf("visit %s: %w", url, err)
		}
	}

	if fetchErr != nil {
		return 0, nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if status == 0 {
		return 0, nil, errors.New("no response received")
	}
	return status, body, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}
