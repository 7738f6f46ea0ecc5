// Package pipeline orchestrates one parser run: discover list pages, augment
// from category pages, deduplicate, persist and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/crawler"
	"github.com/JakeFAU/equipment-crawler/internal/dedupe"
	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/metrics"
	"github.com/JakeFAU/equipment-crawler/internal/progress"
	"github.com/JakeFAU/equipment-crawler/internal/source"
)

const tracerName = "github.com/JakeFAU/equipment-crawler/internal/pipeline"

// ErrNoSourceReachable is returned when a run produced nothing and no source
// answered at all.
var ErrNoSourceReachable = errors.New("no source reachable")

// Defaults applied to empty options.
const (
	DefaultMaxItems = 1000
	DefaultSource   = source.Wikipedia
)

// Persister stores deduplicated records.
type Persister interface {
	Persist(ctx context.Context, records []equipment.Record) (equipment.PersistSummary, error)
}

// RunRecorder keeps run history. Recording failures are logged only.
type RunRecorder interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time, opts equipment.Options) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, result equipment.ParseResult, runErr error) error
}

// Config holds defaults for StartParsing.
type Config struct {
	DefaultSources  []string
	DefaultMaxItems int
}

// Dependencies are the collaborators of a Service. Persister may be nil,
// which makes every run a dry run. Runs, IDs, Clock and Progress are
// optional.
type Dependencies struct {
	Registry  *source.Registry
	Crawler   *crawler.Crawler
	Persister Persister
	Runs      RunRecorder
	IDs       equipment.IDGenerator
	Clock     equipment.Clock
	Progress  progress.Emitter
	Logger    *zap.Logger
}

// Service runs the parsing pipeline.
type Service struct {
	cfg       Config
	registry  *source.Registry
	crawler   *crawler.Crawler
	persister Persister
	runs      RunRecorder
	ids       equipment.IDGenerator
	clock     equipment.Clock
	progress  progress.Emitter
	logger    *zap.Logger
}

// New validates dependencies and returns a Service.
func New(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Registry == nil {
		return nil, errors.New("pipeline: source registry is required")
	}
	if deps.Crawler == nil {
		return nil, errors.New("pipeline: crawler is required")
	}
	if len(cfg.DefaultSources) == 0 {
		cfg.DefaultSources = []string{DefaultSource}
	}
	if cfg.DefaultMaxItems <= 0 {
		cfg.DefaultMaxItems = DefaultMaxItems
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard
	}
	return &Service{
		cfg:       cfg,
		registry:  deps.Registry,
		crawler:   deps.Crawler,
		persister: deps.Persister,
		runs:      deps.Runs,
		ids:       deps.IDs,
		clock:     deps.Clock,
		progress:  deps.Progress,
		logger:    deps.Logger.Named("pipeline"),
	}, nil
}

// run accumulates state for one StartParsing call.
type run struct {
	id        string
	maxItems  int
	records   []equipment.Record
	result    equipment.ParseResult
	reachable map[string]bool
}

func (r *run) full() bool {
	return len(r.records) >= r.maxItems
}

func (r *run) fail(key, msg string) {
	r.result.Errors = append(r.result.Errors, msg)
	r.result.Failed++
	if key == "" {
		return
	}
	st := r.result.Sources[key]
	st.Errors++
	r.result.Sources[key] = st
}

// StartParsing crawls the requested sources and, unless opts.DryRun,
// persists the deduplicated records. Per-page and per-source failures are
// reported in the result, not as an error.
func (s *Service) StartParsing(ctx context.Context, opts equipment.Options) (equipment.ParseResult, error) {
	opts = s.normalize(opts)
	started := s.now()
	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.StartParsing")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice("parser.sources", opts.Sources),
		attribute.Int("parser.max_items", opts.MaxItems),
		attribute.Bool("parser.dry_run", opts.DryRun),
	)

	r := &run{
		maxItems:  opts.MaxItems,
		reachable: map[string]bool{},
		result:    equipment.ParseResult{Sources: map[string]equipment.SourceStats{}},
	}
	r.result.RunID = s.startRun(ctx, started, opts)
	r.id = r.result.RunID
	span.SetAttributes(attribute.String("parser.run_id", r.id))
	s.emit(r, progress.Event{Stage: progress.StageRunStart, TS: started})
	s.logger.Info("parse run started",
		zap.String("run_id", r.result.RunID),
		zap.Strings("sources", opts.Sources),
		zap.Int("max_items", opts.MaxItems),
		zap.Strings("categories", opts.Categories),
		zap.Bool("dry_run", opts.DryRun),
	)

	sources := s.resolve(r, opts.Sources)

	// Discover: list pages first, as long as the budget allows.
	for _, src := range sources {
		if r.full() {
			break
		}
		if len(src.ListPages) > 0 {
			s.consume(ctx, r, s.crawler.ListPages(ctx, src))
		}
	}
	// Augment: category pages per source with what is left of the budget.
	for _, src := range sources {
		if r.full() {
			break
		}
		if len(src.Categories) == 0 && len(opts.Categories) == 0 {
			continue
		}
		s.consume(ctx, r, s.crawler.Categories(ctx, src, opts.Categories, r.maxItems-len(r.records)))
	}

	deduped := dedupe.Records(r.records)
	r.result.Duplicates = len(r.records) - len(deduped)
	if len(deduped) > opts.MaxItems {
		deduped = deduped[:opts.MaxItems]
	}
	r.result.Data = deduped

	if !opts.DryRun && s.persister != nil && len(deduped) > 0 {
		summary, err := s.persister.Persist(ctx, deduped)
		if err != nil {
			r.fail("", fmt.Sprintf("database save failed: %v", err))
		}
		// Report the image address that was stored, not the scraped one.
		for i, o := range summary.Outcomes {
			if o.Status != equipment.OutcomeSkipped && i < len(r.result.Data) {
				r.result.Data[i].ImageURL = o.ImageURL
			}
		}
		r.result.Persist = &summary
		s.emit(r, progress.Event{Stage: progress.StagePersist, Count: summary.Saved})
	}

	var runErr error
	if len(r.records) == 0 && len(r.reachable) == 0 {
		runErr = ErrNoSourceReachable
	}
	finished := s.now()
	r.result.Duration = finished.Sub(started)
	s.finishRun(ctx, r.result, runErr)

	status := "succeeded"
	done := progress.Event{Stage: progress.StageRunDone, TS: finished, Count: len(r.result.Data), Dur: max(r.result.Duration, 0)}
	if runErr != nil {
		status = "failed"
		done.Stage = progress.StageRunError
		done.Note = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	s.emit(r, done)
	span.SetAttributes(
		attribute.Int("parser.processed", r.result.Processed),
		attribute.Int("parser.failed", r.result.Failed),
		attribute.Int("parser.records", len(r.result.Data)),
	)
	metrics.ObserveRun(status, r.result.Duration)
	s.logger.Info("parse run finished",
		zap.String("run_id", r.result.RunID),
		zap.Int("processed", r.result.Processed),
		zap.Int("success", r.result.Success),
		zap.Int("failed", r.result.Failed),
		zap.Int("duplicates", r.result.Duplicates),
		zap.Int("records", len(r.result.Data)),
		zap.Duration("duration", r.result.Duration),
	)
	return r.result, runErr
}

// resolve looks up requested sources, reporting unknown and disabled ones.
func (s *Service) resolve(r *run, names []string) []source.Config {
	var out []source.Config
	seen := map[string]bool{}
	for _, name := range names {
		src, err := s.registry.Lookup(name)
		if err != nil {
			s.logger.Error("unknown source", zap.String("source", name))
			r.fail("", fmt.Sprintf("failed to parse %s: %v", name, err))
			continue
		}
		if seen[src.Key] {
			continue
		}
		seen[src.Key] = true
		r.result.Sources[src.Key] = equipment.SourceStats{}
		if !src.Enabled {
			s.logger.Error("source disabled", zap.String("source", src.Key))
			r.fail(src.Key, fmt.Sprintf("failed to parse %s: source is disabled", src.Key))
			continue
		}
		out = append(out, src)
	}
	return out
}

// consume drains a crawl until the budget is reached.
func (s *Service) consume(ctx context.Context, r *run, crawl *crawler.Crawl) {
	key := crawl.Source().Key
	for cand, err := range crawl.All() {
		r.result.Processed++
		if err != nil {
			r.fail(key, err.Error())
			evt := progress.Event{Stage: progress.StagePageFail, Source: key, Note: err.Error()}
			var pe *crawler.PageError
			if errors.As(err, &pe) {
				evt.URL = pe.URL
			}
			s.emit(r, evt)
			continue
		}
		s.emit(r, progress.Event{Stage: progress.StagePage, Source: key, URL: cand.URL})
		if !cand.Accepted {
			continue
		}
		s.emit(r, progress.Event{Stage: progress.StageAccepted, Source: key, URL: cand.URL})
		r.records = append(r.records, cand.Record)
		r.result.Success++
		st := r.result.Sources[key]
		st.Items++
		r.result.Sources[key] = st
		if r.full() {
			s.logger.Info("item budget reached", zap.String("source", key), zap.Int("max_items", r.maxItems))
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if crawl.Reachable() {
		r.reachable[key] = true
		st := r.result.Sources[key]
		st.Reachable = true
		r.result.Sources[key] = st
	}
}

// emit stamps evt with the run and forwards it. Runs without an id emit
// nothing.
func (s *Service) emit(r *run, evt progress.Event) {
	if r.id == "" {
		return
	}
	evt.RunID = r.id
	if evt.TS.IsZero() {
		evt.TS = s.now()
	}
	s.progress.Emit(evt)
}

func (s *Service) normalize(opts equipment.Options) equipment.Options {
	var sources []string
	for _, name := range opts.Sources {
		if name = strings.TrimSpace(name); name != "" {
			sources = append(sources, name)
		}
	}
	if len(sources) == 0 {
		sources = append([]string(nil), s.cfg.DefaultSources...)
	}
	opts.Sources = sources
	if opts.MaxItems <= 0 {
		opts.MaxItems = s.cfg.DefaultMaxItems
	}
	return opts
}

func (s *Service) startRun(ctx context.Context, started time.Time, opts equipment.Options) string {
	if s.ids == nil {
		return ""
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("generate run id", zap.Error(err))
		return ""
	}
	if s.runs != nil {
		if err := s.runs.StartRun(ctx, id, started, opts); err != nil {
			s.logger.Warn("record run start", zap.String("run_id", id), zap.Error(err))
		}
	}
	return id
}

func (s *Service) finishRun(ctx context.Context, result equipment.ParseResult, runErr error) {
	if s.runs == nil || result.RunID == "" {
		return
	}
	if err := s.runs.FinishRun(ctx, result.RunID, s.now(), result, runErr); err != nil {
		s.logger.Warn("record run finish", zap.String("run_id", result.RunID), zap.Error(err))
	}
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}
