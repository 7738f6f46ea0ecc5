package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/classify"
	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/extract"
	"github.com/JakeFAU/equipment-crawler/internal/source"
)

// ErrSequenceConsumed is yielded when a crawl sequence is iterated twice.
var ErrSequenceConsumed = errors.New("crawl sequence already consumed")

// RateLimiter spaces requests per host.
type RateLimiter interface {
	SetInterval(host string, interval time.Duration)
	Wait(ctx context.Context, rawURL string) error
}

// Config tunes crawl behaviour shared by all sources.
type Config struct {
	// DetailConcurrency bounds parallel detail fetches per list or category page.
	DetailConcurrency int
}

// Dependencies are the collaborators a Crawler needs. Headless and Detector
// may be nil when headless rendering is disabled.
type Dependencies struct {
	Static   equipment.Fetcher
	Headless equipment.Fetcher
	Detector equipment.HeadlessDetector
	Limiter  RateLimiter
	Builder  *extract.Builder
	Logger   *zap.Logger
}

// Candidate is one classified record. Rejected candidates carry the reason.
type Candidate struct {
	Record   equipment.Record
	Source   string
	URL      string
	Accepted bool
	Reason   string
}

// PageError describes a page that could not be fetched or parsed.
type PageError struct {
	Source string
	URL    string
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Crawler produces candidate sequences for configured sources.
type Crawler struct {
	cfg      Config
	static   equipment.Fetcher
	headless equipment.Fetcher
	detector equipment.HeadlessDetector
	limiter  RateLimiter
	builder  *extract.Builder
	cls      *classify.Classifier
	logger   *zap.Logger
}

// New constructs a Crawler.
func New(cfg Config, deps Dependencies) (*Crawler, error) {
	if deps.Static == nil {
		return nil, errors.New("crawler: static fetcher is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("crawler: rate limiter is required")
	}
	if deps.Builder == nil {
		deps.Builder = extract.New(nil, nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = 1
	}
	return &Crawler{
		cfg:      cfg,
		static:   deps.Static,
		headless: deps.Headless,
		detector: deps.Detector,
		limiter:  deps.Limiter,
		builder:  deps.Builder,
		cls:      deps.Builder.Classifier(),
		logger:   deps.Logger.Named("crawler"),
	}, nil
}

// Crawl is a single-use candidate sequence plus what was learned while
// iterating it.
type Crawl struct {
	src       source.Config
	run       func(ctx context.Context, s *state, yield func(Candidate, error) bool)
	ctx       context.Context
	used      atomic.Bool
	reachable atomic.Bool
}

// All returns the sequence. It is lazy: nothing is fetched until iteration
// starts, and breaking out of the loop stops further fetches. A second
// iteration yields ErrSequenceConsumed once.
func (c *Crawl) All() iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		if c.used.Swap(true) {
			yield(Candidate{}, ErrSequenceConsumed)
			return
		}
		st := &state{crawl: c, maxFailures: c.src.MaxRetries}
		c.run(c.ctx, st, yield)
	}
}

// Reachable reports whether at least one page of the source was fetched.
func (c *Crawl) Reachable() bool {
	return c.reachable.Load()
}

// Source returns the configuration being crawled.
func (c *Crawl) Source() source.Config {
	return c.src
}

// state tracks consecutive transport failures during one iteration.
type state struct {
	crawl       *Crawl
	maxFailures int
	failures    int
}

func (s *state) success() {
	s.failures = 0
	s.crawl.reachable.Store(true)
}

// failure records err and reports whether the streak of transport failures
// just reached maxFailures. Crawling continues either way. A page answering
// with an error status proves the host is up.
func (s *state) failure(err error) bool {
	if errors.Is(err, equipment.ErrUnexpectedStatus) {
		s.crawl.reachable.Store(true)
		s.failures = 0
		return false
	}
	s.failures++
	return s.maxFailures > 0 && s.failures == s.maxFailures
}

// ListPages returns the candidates found on the source's list pages, in
// configured order.
func (c *Crawler) ListPages(ctx context.Context, src source.Config) *Crawl {
	c.limiter.SetInterval(src.Host(), src.Delay)
	return &Crawl{src: src, ctx: ctx, run: func(ctx context.Context, st *state, yield func(Candidate, error) bool) {
		for _, page := range src.ListPages {
			if !c.crawlListPage(ctx, st, src, page, yield) {
				return
			}
		}
	}}
}

// Categories returns the candidates linked from the source's category
// pages. requested filters categories by name or path; budget bounds the
// links followed per category for sources with a per-category cap.
func (c *Crawler) Categories(ctx context.Context, src source.Config, requested []string, budget int) *Crawl {
	c.limiter.SetInterval(src.Host(), src.Delay)
	cats := src.MatchCategories(requested)
	perCategory := 0
	if src.PerCategoryCap && budget > 0 && len(cats) > 0 {
		perCategory = (budget + len(cats) - 1) / len(cats)
	}
	return &Crawl{src: src, ctx: ctx, run: func(ctx context.Context, st *state, yield func(Candidate, error) bool) {
		for _, cat := range cats {
			if !c.crawlCategory(ctx, st, src, cat, perCategory, yield) {
				return
			}
		}
	}}
}
