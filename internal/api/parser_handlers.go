package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/pipeline"
	"github.com/JakeFAU/equipment-crawler/internal/progress/sinks"
)

// QuickPopulateItems is the item budget of a quick-populate run.
const QuickPopulateItems = 10

var errRunAborted = errors.New("parser run aborted")

// Parser states reported by the status endpoint.
const (
	StatusReady   = "ready"
	StatusRunning = "running"
)

type startResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	equipment.ParseResult
}

type statusResponse struct {
	Status           string       `json:"status"`
	AvailableSources []string     `json:"availableSources"`
	RunningSince     *time.Time   `json:"runningSince,omitempty"`
	Progress         *sinks.Tally `json:"progress,omitempty"`
	LastRun          *runSummary  `json:"lastRun,omitempty"`
	Message          string       `json:"message"`
}

// runSummary is what the status endpoint remembers about a finished run.
type runSummary struct {
	RunID      string    `json:"runId,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Processed  int       `json:"processed"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Duplicates int       `json:"duplicates"`
	Records    int       `json:"records"`
	Saved      int       `json:"saved"`
	Error      string    `json:"error,omitempty"`
}

func (s *Server) startParsing(w http.ResponseWriter, r *http.Request) {
	var opts equipment.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if opts.MaxItems < 0 {
		s.writeError(w, http.StatusBadRequest, "maxItems must be >= 0")
		return
	}
	s.run(w, r, opts)
}

func (s *Server) quickPopulate(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, equipment.Options{
		Sources:  []string{pipeline.DefaultSource},
		MaxItems: QuickPopulateItems,
	})
}

// run executes one parser run. Only one run is allowed at a time; the run
// outlives a disconnected client.
func (s *Server) run(w http.ResponseWriter, r *http.Request, opts equipment.Options) {
	started, ok := s.tracker.begin()
	if !ok {
		s.writeError(w, http.StatusConflict, "a parser run is already in progress")
		return
	}
	finished := false
	defer func() {
		if !finished {
			s.tracker.end(started, equipment.ParseResult{}, errRunAborted)
		}
	}()
	s.logger.Info("starting equipment parsing", zap.String("request_id", requestID(r.Context())))
	res, err := s.parser.StartParsing(context.WithoutCancel(r.Context()), opts)
	s.tracker.end(started, res, err)
	finished = true
	if err != nil {
		s.logger.Error("parsing failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrNoSourceReachable) {
			status = http.StatusBadGateway
		}
		s.writeJSON(w, status, startResponse{Error: err.Error(), ParseResult: res})
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{Success: true, ParseResult: res})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	running, since, last := s.tracker.snapshot()
	resp := statusResponse{
		Status:           StatusReady,
		AvailableSources: s.sources,
		LastRun:          last,
		Message:          "Parser is ready to collect equipment data",
	}
	if running {
		resp.Status = StatusRunning
		resp.RunningSince = &since
		resp.Message = "Parser run in progress"
		if s.progress != nil {
			if tally, ok := s.progress.Current(); ok && !tally.Done {
				resp.Progress = &tally
			}
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// tracker guards the single in-flight run and keeps the last summary.
type tracker struct {
	mu      sync.Mutex
	clock   equipment.Clock
	running bool
	since   time.Time
	last    *runSummary
}

func newTracker(clock equipment.Clock) *tracker {
	return &tracker{clock: clock}
}

func (t *tracker) now() time.Time {
	if t.clock != nil {
		return t.clock.Now()
	}
	return time.Now().UTC()
}

func (t *tracker) begin() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return time.Time{}, false
	}
	t.running = true
	t.since = t.now()
	return t.since, true
}

func (t *tracker) end(started time.Time, res equipment.ParseResult, err error) {
	sum := &runSummary{
		RunID:      res.RunID,
		StartedAt:  started,
		FinishedAt: t.now(),
		Processed:  res.Processed,
		Success:    res.Success,
		Failed:     res.Failed,
		Duplicates: res.Duplicates,
		Records:    len(res.Data),
	}
	if res.Persist != nil {
		sum.Saved = res.Persist.Saved
	}
	if err != nil {
		sum.Error = err.Error()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.last = sum
}

func (t *tracker) snapshot() (bool, time.Time, *runSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var last *runSummary
	if t.last != nil {
		cp := *t.last
		last = &cp
	}
	return t.running, t.since, last
}
