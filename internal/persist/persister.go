// Package persist writes deduplicated records to the repository in
// fixed-size batches with bounded concurrency.
package persist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/metrics"
)

// CreatedTopic is the notification topic for inserted records.
const CreatedTopic = "equipment.created"

// Defaults for Config. New applies the first two; a zero BatchDelay means
// batches run back to back.
const (
	DefaultBatchSize   = 10
	DefaultConcurrency = 5
	DefaultBatchDelay  = time.Second
)

// Config controls batching.
type Config struct {
	BatchSize   int
	Concurrency int
	// BatchDelay is waited between batches, never after the last one.
	BatchDelay time.Duration
	// Topic overrides CreatedTopic. Notifications are only sent when a
	// publisher is configured.
	Topic string
}

// ImageResolver re-hosts a record's image and returns the hosted URL or "".
type ImageResolver interface {
	Resolve(ctx context.Context, rec equipment.Record) string
}

// Created is the payload published after a successful insert.
type Created struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Category  string `json:"category"`
	Country   string `json:"country"`
	ImageURL  string `json:"imageUrl,omitempty"`
	SourceURL string `json:"sourceUrl"`
}

// Persister stores records. Images and Publisher are optional.
type Persister struct {
	cfg       Config
	repo      equipment.Repository
	images    ImageResolver
	publisher equipment.Publisher
	logger    *zap.Logger
	wait      func(ctx context.Context, d time.Duration) error
}

// New builds a Persister. images and publisher may be nil.
func New(cfg Config, repo equipment.Repository, images ImageResolver, publisher equipment.Publisher, logger *zap.Logger) (*Persister, error) {
	if repo == nil {
		return nil, fmt.Errorf("persist: repository is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.Topic == "" {
		cfg.Topic = CreatedTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		cfg:       cfg,
		repo:      repo,
		images:    images,
		publisher: publisher,
		logger:    logger.Named("persist"),
		wait:      sleep,
	}, nil
}

// Persist stores records batch by batch. A failing record never aborts its
// siblings; the only error returned is cancellation of ctx between batches,
// alongside the summary of what was attempted.
func (p *Persister) Persist(ctx context.Context, records []equipment.Record) (equipment.PersistSummary, error) {
	var summary equipment.PersistSummary
	for start := 0; start < len(records); start += p.cfg.BatchSize {
		if start > 0 {
			if err := p.wait(ctx, p.cfg.BatchDelay); err != nil {
				return summary, fmt.Errorf("persist batches: %w", err)
			}
		}
		end := min(start+p.cfg.BatchSize, len(records))
		outcomes := p.batch(ctx, records[start:end])
		for _, o := range outcomes {
			switch o.Status {
			case equipment.OutcomeSaved:
				summary.Saved++
			case equipment.OutcomeSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
		}
		summary.Outcomes = append(summary.Outcomes, outcomes...)
		p.logger.Info("batch persisted",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("saved", summary.Saved),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
	}
	return summary, nil
}

func (p *Persister) batch(ctx context.Context, records []equipment.Record) []equipment.Outcome {
	outcomes := make([]equipment.Outcome, len(records))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, rec := range records {
		g.Go(func() error {
			outcomes[i] = p.one(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Persister) one(ctx context.Context, rec equipment.Record) equipment.Outcome {
	out := equipment.Outcome{Name: rec.Name, Country: rec.Country}
	exists, err := p.repo.ExistsByNameAndCountry(ctx, rec.Name, rec.Country)
	switch {
	case err != nil:
		p.logger.Warn("existence check failed, inserting anyway",
			zap.String("name", rec.Name),
			zap.Error(err),
		)
	case exists:
		out.Status = equipment.OutcomeSkipped
		out.Reason = equipment.ReasonAlreadyExists
		metrics.ObservePersist(string(out.Status))
		p.logger.Debug("record exists", zap.String("name", rec.Name), zap.String("country", rec.Country))
		return out
	}

	if p.images != nil {
		rec.ImageURL = p.images.Resolve(ctx, rec)
	}
	out.ImageURL = rec.ImageURL
	stored, err := p.repo.Create(ctx, rec)
	if err != nil {
		out.Status = equipment.OutcomeFailed
		out.Reason = err.Error()
		metrics.ObservePersist(string(out.Status))
		p.logger.Error("insert failed", zap.String("name", rec.Name), zap.Error(err))
		return out
	}
	out.Status = equipment.OutcomeSaved
	out.ID = stored.ID
	metrics.ObservePersist(string(out.Status))
	p.logger.Info("record saved", zap.String("name", rec.Name), zap.String("id", stored.ID))
	p.notify(ctx, stored)
	return out
}

func (p *Persister) notify(ctx context.Context, stored equipment.Stored) {
	if p.publisher == nil {
		return
	}
	rec := stored.Record
	msgID, err := p.publisher.Publish(ctx, p.cfg.Topic, Created{
		ID:        stored.ID,
		Name:      rec.Name,
		Type:      rec.Type,
		Category:  rec.Category,
		Country:   rec.Country,
		ImageURL:  rec.ImageURL,
		SourceURL: rec.SourceURL,
	})
	if err != nil {
		p.logger.Warn("publish failed", zap.String("id", stored.ID), zap.Error(err))
		return
	}
	p.logger.Debug("published", zap.String("id", stored.ID), zap.String("message_id", msgID))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
