package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go-scooterscan/discovery"
	"go-scooterscan/processor"
	"go-scooterscan/types"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

var ErrRunInProgress = errors.New("a run for this target is already in progress")

// ScanFunc performs one scan; the store supplies the run id and progress hook.
type ScanFunc func(ctx context.Context, target processor.Target, opts processor.ScanOptions) (processor.Outcome, error)

// RunEntry tracks one background run.
type RunEntry struct {
	ID       string
	Target   processor.Target
	Provider string
	Started  time.Time

	done chan struct{}

	mu       sync.Mutex
	orch     *discovery.Orchestrator
	outcome  processor.Outcome
	err      error
	finished time.Time
}

// RunStatus is the JSON view of a run.
type RunStatus struct {
	RunID      string          `json:"runId"`
	Target     string          `json:"target"`
	Provider   string          `json:"provider"`
	State      discovery.State `json:"state"`
	Records    int             `json:"records"`
	Stats      discovery.Stats `json:"stats"`
	Degraded   int             `json:"degraded"`
	OutputPath string          `json:"outputPath,omitempty"`
	Error      string          `json:"error,omitempty"`
	Started    time.Time       `json:"started"`
	Finished   *time.Time      `json:"finished,omitempty"`
}

func (e *RunEntry) Done() <-chan struct{} { return e.done }

func (e *RunEntry) Status() RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := RunStatus{
		RunID:    e.ID,
		Target:   e.Target.ID,
		Provider: e.Provider,
		State:    discovery.StateIdle,
		Started:  e.Started,
	}
	if e.orch != nil {
		st.State = e.orch.State()
		st.Records = e.orch.Accumulator().Len()
	}
	if !e.finished.IsZero() {
		res := e.outcome.Result
		if res.State != "" {
			st.State = res.State
		}
		st.Records = len(res.Records)
		st.Stats = res.Stats
		st.Degraded = len(res.Degraded)
		st.OutputPath = e.outcome.OutputPath
		f := e.finished
		st.Finished = &f
		if e.err != nil {
			st.Error = e.err.Error()
			if res.State == "" {
				st.State = discovery.StateAborted
			}
		}
	}
	return st
}

// Records returns the final records, or a live snapshot while running.
func (e *RunEntry) Records() map[string]types.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.finished.IsZero() {
		return e.outcome.Result.Records
	}
	if e.orch != nil {
		return e.orch.Accumulator().Snapshot()
	}
	return map[string]types.Record{}
}

// RunStore keeps runs started through the API in memory.
type RunStore struct {
	ctx    context.Context
	logger log.Logger

	mu   sync.RWMutex
	runs map[string]*RunEntry
	wg   sync.WaitGroup
}

// NewRunStore ties every run to ctx; cancelling it aborts runs in flight.
func NewRunStore(ctx context.Context, logger log.Logger) *RunStore {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RunStore{ctx: ctx, logger: logger, runs: make(map[string]*RunEntry)}
}

// Start launches scan in the background. Two runs with the same provider
// and the same target id or region share a checkpoint file, so only one of
// them may be in progress.
func (s *RunStore) Start(target processor.Target, provider string, resume bool, scan ScanFunc) (*RunEntry, error) {
	s.mu.Lock()
	for _, e := range s.runs {
		sameTarget := e.Target.ID == target.ID || e.Target.Region.Key() == target.Region.Key()
		if sameTarget && e.Provider == provider && !e.isFinished() {
			s.mu.Unlock()
			return e, ErrRunInProgress
		}
	}
	e := &RunEntry{
		ID:       uuid.NewString(),
		Target:   target,
		Provider: provider,
		Started:  time.Now(),
		done:     make(chan struct{}),
	}
	s.runs[e.ID] = e
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(e.done)
		out, err := scan(s.ctx, target, processor.ScanOptions{
			RunID:  e.ID,
			Resume: resume,
			Started: func(o *discovery.Orchestrator) {
				e.mu.Lock()
				e.orch = o
				e.mu.Unlock()
			},
		})
		if err != nil {
			level.Error(s.logger).Log("msg", "run failed", "run", e.ID, "target", target.ID, "err", err)
		}
		e.mu.Lock()
		e.outcome, e.err, e.finished = out, err, time.Now()
		e.mu.Unlock()
	}()
	return e, nil
}

func (s *RunStore) Get(id string) (*RunEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[id]
	return e, ok
}

// List returns the status of every run, newest first.
func (s *RunStore) List() []RunStatus {
	s.mu.RLock()
	entries := make([]*RunEntry, 0, len(s.runs))
	for _, e := range s.runs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]RunStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out
}

// RunAndWait starts scan like Start and blocks until it returns. Scheduled
// scans go through it so they respect runs started from the API.
func (s *RunStore) RunAndWait(target processor.Target, provider string, resume bool, scan ScanFunc) error {
	e, err := s.Start(target, provider, resume, scan)
	if err != nil {
		return err
	}
	<-e.Done()
	return e.Err()
}

// Err is the run's error once it has finished.
func (e *RunEntry) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Wait blocks until every started run has returned.
func (s *RunStore) Wait() { s.wg.Wait() }

func (e *RunEntry) isFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.finished.IsZero()
}
