package sinks

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/JakeFAU/equipment-crawler/internal/progress"
)

// Tally is a point-in-time view of one run.
type Tally struct {
	RunID     string         `json:"runId"`
	StartedAt time.Time      `json:"startedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Pages     int            `json:"pages"`
	Failures  int            `json:"failures"`
	Accepted  int            `json:"accepted"`
	Saved     int            `json:"saved"`
	Sources   map[string]int `json:"sources,omitempty"`
	LastURL   string         `json:"lastUrl,omitempty"`
	Done      bool           `json:"done"`
	Error     string         `json:"error,omitempty"`
}

// LiveSink keeps a running tally of the most recent run so the status
// endpoint can report progress while StartParsing is still working.
type LiveSink struct {
	mu    sync.RWMutex
	tally *Tally
}

// NewLiveSink returns an empty LiveSink.
func NewLiveSink() *LiveSink {
	return &LiveSink{}
}

// Consume folds the batch into the tally. A RUN_START resets it.
func (s *LiveSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Stage == progress.StageRunStart {
			s.tally = &Tally{RunID: evt.RunID, StartedAt: evt.TS, UpdatedAt: evt.TS, Sources: map[string]int{}}
			continue
		}
		// Events of an older run arriving late are ignored.
		if s.tally == nil || s.tally.RunID != evt.RunID {
			continue
		}
		t := s.tally
		t.UpdatedAt = evt.TS
		switch evt.Stage {
		case progress.StagePage:
			t.Pages++
			t.LastURL = evt.URL
		case progress.StagePageFail:
			t.Pages++
			t.Failures++
			t.LastURL = evt.URL
		case progress.StageAccepted:
			t.Accepted++
			t.Sources[evt.Source]++
		case progress.StagePersist:
			t.Saved += evt.Count
		case progress.StageRunDone:
			t.Done = true
		case progress.StageRunError:
			t.Done = true
			t.Error = evt.Note
		}
	}
	return nil
}

// Current returns a copy of the latest run's tally.
func (s *LiveSink) Current() (Tally, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tally == nil {
		return Tally{}, false
	}
	out := *s.tally
	out.Sources = maps.Clone(s.tally.Sources)
	return out, true
}

// Close implements the Sink interface; it performs no action.
func (s *LiveSink) Close(context.Context) error {
	return nil
}
