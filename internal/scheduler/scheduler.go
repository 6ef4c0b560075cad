// Package scheduler drives discovery passes over the configured category
// tree: fetch each category page, discover article links, extract drafts,
// and publish them to the queue. Categories are crawled by a bounded worker
// pool; one failing category never stops the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pwieczorek/newsrelay/internal/extract"
	"github.com/pwieczorek/newsrelay/internal/fetch"
	"github.com/pwieczorek/newsrelay/internal/metrics"
	"github.com/pwieczorek/newsrelay/internal/queue"
	"github.com/pwieczorek/newsrelay/internal/ratelimit"
	"github.com/pwieczorek/newsrelay/internal/retry"
)

// Category is one crawled section of the source site. Path is relative to
// the base URL ("ekonomia/biznes"), Name is the display label attached to
// every draft discovered under it ("Ekonomia > Biznes").
type Category struct {
	Path string
	Name string
}

// Config tunes the discovery loop.
type Config struct {
	BaseURL    string
	Categories []Category
	// Workers bounds how many categories are crawled concurrently.
	Workers int
	// PollInterval is the pause between discovery passes.
	PollInterval time.Duration
	// FreshnessWindow drops articles published longer than this ago. Zero
	// disables the filter. Articles without a parsed date always pass.
	FreshnessWindow time.Duration
	// PerCategoryLimit caps article pages fetched per category per pass.
	// Zero means no cap.
	PerCategoryLimit int
	// Retry bounds fetch and publish attempts.
	Retry retry.Policy
}

// PassState remembers URLs already handled by earlier passes so a page is
// fetched at most once per process lifetime. The queue consumer's idempotent
// store covers restarts.
type PassState struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewPassState returns an empty state.
func NewPassState() *PassState {
	return &PassState{seen: make(map[string]struct{})}
}

// MarkSeen records the URL and reports whether it was new.
func (s *PassState) MarkSeen(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Collector runs discovery passes.
type Collector struct {
	fetcher   fetch.Fetcher
	limiter   *ratelimit.Limiter
	extractor *extract.Extractor
	publisher queue.Publisher
	cfg       Config
	base      *url.URL
	logger    *zap.Logger
	now       func() time.Time
}

// New wires a Collector, validating the config.
func New(f fetch.Fetcher, l *ratelimit.Limiter, e *extract.Extractor, p queue.Publisher, cfg Config, logger *zap.Logger) (*Collector, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", cfg.BaseURL)
	}
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("no categories configured")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		fetcher:   f,
		limiter:   l,
		extractor: e,
		publisher: p,
		cfg:       cfg,
		base:      base,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run executes discovery passes until the context ends. Seen URLs carry over
// between passes.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("Collector started",
		zap.Int("categories", len(c.cfg.Categories)),
		zap.Int("workers", c.cfg.Workers),
		zap.Duration("poll_interval", c.cfg.PollInterval))

	state := NewPassState()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.RunPass(ctx, state); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunPass crawls every configured category once. It returns an error only
// when the context ends; per-category failures are logged and counted.
func (c *Collector) RunPass(ctx context.Context, state *PassState) error {
	start := c.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, cat := range c.cfg.Categories {
		cat := cat
		g.Go(func() error {
			if err := c.collectCategory(gctx, state, cat); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("Category crawl failed",
					zap.String("category", cat.Name),
					zap.Error(err))
			}
			return nil
		})
	}
	err := g.Wait()

	metrics.DiscoveryPassFinished(c.now().Sub(start))
	c.logger.Info("Discovery pass finished",
		zap.Duration("took", c.now().Sub(start)))
	return err
}

func (c *Collector) collectCategory(ctx context.Context, state *PassState, cat Category) error {
	categoryURL := c.base.JoinPath(strings.Split(cat.Path, "/")...).String()

	page, err := c.fetchPage(ctx, categoryURL)
	if err != nil {
		return fmt.Errorf("fetch category %s: %w", cat.Path, err)
	}

	links, err := c.extractor.ArticleLinks(page.Body)
	if err != nil {
		return fmt.Errorf("discover links in %s: %w", cat.Path, err)
	}
	c.logger.Debug("Discovered article links",
		zap.String("category", cat.Name),
		zap.Int("count", len(links)))

	handled := 0
	for _, link := range links {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.cfg.PerCategoryLimit > 0 && handled >= c.cfg.PerCategoryLimit {
			break
		}
		if !state.MarkSeen(link) {
			metrics.PageSkipped("already_seen")
			continue
		}
		handled++
		c.collectArticle(ctx, cat, link)
	}
	return nil
}

// collectArticle fetches, extracts, and publishes one article. Failures are
// per-article: logged, counted, and skipped.
func (c *Collector) collectArticle(ctx context.Context, cat Category, link string) {
	page, err := c.fetchPage(ctx, link)
	if err != nil {
		c.logger.Warn("Article fetch failed",
			zap.String("url", link), zap.Error(err))
		return
	}

	draft, err := c.extractor.Extract(page.Body, link)
	if err != nil {
		var exErr *extract.Error
		if errors.As(err, &exErr) {
			c.logger.Warn("Article extraction failed",
				zap.String("url", link),
				zap.String("reason", string(exErr.Reason)))
			metrics.PageSkipped(string(exErr.Reason))
			return
		}
		c.logger.Warn("Article parse failed",
			zap.String("url", link), zap.Error(err))
		metrics.PageSkipped("parse_error")
		return
	}
	draft.Category = cat.Name

	if c.cfg.FreshnessWindow > 0 && !draft.PublishedAt.IsZero() &&
		c.now().Sub(draft.PublishedAt) > c.cfg.FreshnessWindow {
		c.logger.Debug("Skipping stale article",
			zap.String("url", link),
			zap.Time("published_at", draft.PublishedAt))
		metrics.PageSkipped("stale")
		return
	}

	msg := queue.Message{
		IdempotencyKey: draft.NaturalKeyHash(),
		Draft:          draft,
	}
	err = retry.Do(ctx, c.cfg.Retry, nil, func(ctx context.Context) error {
		return c.publisher.Publish(ctx, msg)
	})
	if err != nil {
		c.logger.Error("Publishing article failed",
			zap.String("url", link), zap.Error(err))
		return
	}
	metrics.ArticlePublished(cat.Name)
	c.logger.Info("Published article draft",
		zap.String("url", draft.SourceURL),
		zap.String("category", cat.Name))
}

// fetchPage combines the rate limiter, the retry policy, and the fetcher.
func (c *Collector) fetchPage(ctx context.Context, pageURL string) (fetch.Response, error) {
	permit, err := c.limiter.Acquire(ctx, pageURL)
	if err != nil {
		return fetch.Response{}, err
	}
	defer permit.Release()

	var page fetch.Response
	err = retry.Do(ctx, c.cfg.Retry, fetch.IsRetryable, func(ctx context.Context) error {
		var fErr error
		page, fErr = c.fetcher.Fetch(ctx, pageURL)
		return fErr
	})
	if err != nil {
		metrics.PageFetched("error")
		return fetch.Response{}, err
	}
	metrics.PageFetched("ok")
	return page, nil
}
