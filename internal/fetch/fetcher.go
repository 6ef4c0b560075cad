// Package fetch implements page fetching against the source site using the
// Colly collector.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Response is a fetched page.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher fetches a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

// IsRetryable reports whether a fetch error is worth retrying: transient
// network failures, 5xx responses, and 429s. Client errors such as 404 are
// permanent for the page in question.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError || statusErr.Code == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return true
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Colly implements Fetcher with a cloned collector per request.
type Colly struct {
	cfg  Config
	base *colly.Collector
}

// NewColly builds a Colly fetcher.
func NewColly(cfg Config) *Colly {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Colly{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET and returns the page body.
func (f *Colly) Fetch(ctx context.Context, url string) (Response, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   Response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &StatusError{URL: url, Code: r.StatusCode}
			return
		}
		fetchErr = fmt.Errorf("fetch %s: %w", url, err)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(url); err != nil && fetchErr == nil {
			fetchErr = fmt.Errorf("visit %s: %w", url, err)
		}
		collector.Wait()
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
	case <-done:
	}

	if fetchErr != nil {
		return Response{}, fetchErr
	}
	if result.StatusCode == 0 {
		return Response{}, fmt.Errorf("fetch %s: no response received", url)
	}
	return result, nil
}
