package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-scooterscan/geoquery"
	"go-scooterscan/types"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

type State string

const (
	StateIdle          State = "idle"
	StateScanning      State = "scanning"
	StatePartitioning  State = "partitioning"
	StateScanningCells State = "scanning_cells"
	StateExpanding     State = "expanding"
	StateDone          State = "done"
	StateAborted       State = "aborted"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

var (
	ErrIncomplete = errors.New("discovery run incomplete")
	ErrAlreadyRun = errors.New("orchestrator already used")
)

type Options struct {
	CellSize      float64
	SizeThreshold int
	ShrinkRadius  float64
	CoarseZoom    float64
	CellZoom      float64
	ZoomStep      float64
	MaxZoom       float64
	Retry         RetryPolicy
}

func DefaultOptions() Options {
	return Options{
		CellSize:      0.02,
		SizeThreshold: 50,
		ShrinkRadius:  0.005,
		CoarseZoom:    12,
		CellZoom:      17,
		ZoomStep:      2,
		MaxZoom:       21,
		Retry:         DefaultRetryPolicy(),
	}
}

// Checkpoint is what a run needs to pick up where an earlier one stopped.
// Cells is the grid the run partitioned into; a resumed run scans those
// cells again instead of partitioning a fresh coarse scan, so completed keys
// keep matching. Pending holds aggregates that were found but not expanded
// yet.
type Checkpoint struct {
	Completed []string       `json:"completed"`
	Records   []types.Record `json:"records"`
	Cells     []types.Region `json:"cells,omitempty"`
	Pending   []types.Record `json:"pending,omitempty"`
}

type Stats struct {
	CoarsePositions   int `json:"coarsePositions"`
	Cells             int `json:"cells"`
	CellsSkipped      int `json:"cellsSkipped"`
	Queued            int `json:"queued"`
	Expanded          int `json:"expanded"`
	ExpansionsSkipped int `json:"expansionsSkipped"`
	Degraded          int `json:"degraded"`
}

type Result struct {
	RunID     string                  `json:"runId"`
	State     State                   `json:"state"`
	Records   map[string]types.Record `json:"records"`
	Completed []string                `json:"completed"`
	Cells     []types.Region          `json:"cells,omitempty"`
	Pending   []types.Record          `json:"pending,omitempty"`
	Degraded  []string                `json:"degraded,omitempty"`
	Stats     Stats                   `json:"stats"`
	Started   time.Time               `json:"started"`
	Finished  time.Time               `json:"finished"`
}

// Checkpoint returns the state needed to resume this run.
func (r Result) Checkpoint() Checkpoint {
	records := make([]types.Record, 0, len(r.Records))
	for _, rec := range r.Records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return Checkpoint{Completed: r.Completed, Records: records, Cells: r.Cells, Pending: r.Pending}
}

// RunRecorder is told about every finished run.
type RunRecorder interface {
	RecordRun(state State, counts map[types.Kind]int)
}

type Orchestrator struct {
	id       string
	opts     Options
	querier  geoquery.Querier
	logger   log.Logger
	recorder RunRecorder
	resume   Checkpoint
	acc      *Accumulator

	mu    sync.Mutex
	state State
	used  bool

	completed map[string]bool
	order     []string
	cells     []types.Region
	degraded  []string
	stats     Stats
}

type OrchestratorOption func(*Orchestrator)

func WithLogger(l log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithRecorder(r RunRecorder) OrchestratorOption { return func(o *Orchestrator) { o.recorder = r } }

func WithCheckpoint(cp Checkpoint) OrchestratorOption { return func(o *Orchestrator) { o.resume = cp } }

func WithRunID(id string) OrchestratorOption { return func(o *Orchestrator) { o.id = id } }

// New builds a single-use orchestrator. Queries go through a Retrier built
// from opts.Retry.
func New(q geoquery.Querier, opts Options, options ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		id:        uuid.NewString(),
		opts:      opts,
		logger:    log.NewNopLogger(),
		acc:       NewAccumulator(),
		state:     StateIdle,
		completed: make(map[string]bool),
	}
	for _, opt := range options {
		opt(o)
	}
	o.logger = log.With(o.logger, "run", o.id)
	o.querier = NewRetrier(q, opts.Retry, o.logger)
	return o
}

func (o *Orchestrator) ID() string { return o.id }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Accumulator exposes the live store so callers can watch progress.
func (o *Orchestrator) Accumulator() *Accumulator { return o.acc }

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	level.Debug(o.logger).Log("msg", "state", "state", s)
}

// Run discovers every object inside target. A run stopped by expired
// credentials or cancellation returns the partial result together with an
// error wrapping ErrIncomplete and the cause.
func (o *Orchestrator) Run(ctx context.Context, target types.Region) (Result, error) {
	o.mu.Lock()
	if o.used {
		o.mu.Unlock()
		return Result{}, ErrAlreadyRun
	}
	o.used = true
	o.mu.Unlock()

	started := time.Now()
	o.acc.Seed(o.resume.Records)
	for _, key := range o.resume.Completed {
		o.markCompleted(key)
	}
	queue := append([]types.Record(nil), o.resume.Pending...)

	level.Info(o.logger).Log("msg", "discovery started", "target", target.Key(),
		"resumed_regions", len(o.resume.Completed), "resumed_records", len(o.resume.Records),
		"resumed_cells", len(o.resume.Cells))

	cells := append([]types.Region(nil), o.resume.Cells...)
	if len(cells) == 0 {
		o.setState(StateScanning)
		coarse, _, err := o.scan(ctx, target.WithZoom(o.opts.CoarseZoom))
		if err != nil {
			return o.abort(started, queue, err)
		}
		positions := coarse.Positions()
		o.stats.CoarsePositions = len(positions)
		if len(positions) == 0 && len(queue) == 0 {
			return o.finish(started, StateDone, nil), nil
		}

		o.setState(StatePartitioning)
		cells = Partition(positions, o.opts.CellSize)
		level.Info(o.logger).Log("msg", "partitioned", "positions", len(positions), "cells", len(cells))
	}
	o.cells = cells
	o.stats.Cells = len(cells)

	o.setState(StateScanningCells)
	for i, cell := range cells {
		cell = cell.WithZoom(o.opts.CellZoom)
		if o.completed[cell.Key()] {
			o.stats.CellsSkipped++
			continue
		}
		res, ok, err := o.scan(ctx, cell)
		if err != nil {
			level.Error(o.logger).Log("msg", "cell scan aborted", "cell", i+1, "of", len(cells), "err", err)
			return o.abort(started, queue, err)
		}
		for _, rec := range res.Records {
			if rec.Kind == types.Aggregate && rec.MemberCount >= o.opts.SizeThreshold {
				queue = append(queue, rec)
				continue
			}
			o.acc.Merge(rec)
		}
		if ok {
			o.markCompleted(cell.Key())
		}
		level.Debug(o.logger).Log("msg", "cell scanned", "cell", i+1, "of", len(cells), "records", len(res.Records), "queued", len(queue))
	}
	o.stats.Queued = len(queue)

	if len(queue) > 0 {
		o.setState(StateExpanding)
		exp := &Expander{
			Querier:       o.querier,
			SizeThreshold: o.opts.SizeThreshold,
			ShrinkRadius:  o.opts.ShrinkRadius,
			ZoomStep:      o.opts.ZoomStep,
			MaxZoom:       o.opts.MaxZoom,
			Logger:        o.logger,
		}
		for i, agg := range queue {
			key := o.expansionKey(agg)
			if o.completed[key] {
				o.stats.ExpansionsSkipped++
				continue
			}
			recs, err := exp.Expand(ctx, agg, o.opts.CellZoom)
			o.acc.Merge(recs...)
			if err != nil {
				level.Error(o.logger).Log("msg", "expansion aborted", "cluster", i+1, "of", len(queue), "id", agg.ID, "err", err)
				return o.abort(started, queue[i:], err)
			}
			o.stats.Expanded++
			o.markCompleted(key)
		}
	}

	return o.finish(started, StateDone, nil), nil
}

// scan queries one region. Failures the run survives come back as an empty
// result with ok false and the region recorded as degraded.
func (o *Orchestrator) scan(ctx context.Context, region types.Region) (geoquery.Result, bool, error) {
	res, err := o.querier.Query(ctx, region)
	if err == nil {
		return res, true, nil
	}
	if errors.Is(err, geoquery.ErrAuthExpired) || ctx.Err() != nil {
		return geoquery.Result{}, false, err
	}
	level.Warn(o.logger).Log("msg", "region degraded to zero results", "region", region.Key(), "kind", geoquery.KindOf(err), "err", err)
	o.degraded = append(o.degraded, region.Key())
	o.stats.Degraded++
	return geoquery.Result{}, false, nil
}

func (o *Orchestrator) expansionKey(agg types.Record) string {
	step := o.opts.ZoomStep
	if step <= 0 {
		step = 1
	}
	return ShrinkRegion(agg, o.opts.ShrinkRadius, o.opts.CellZoom+step).Key()
}

func (o *Orchestrator) markCompleted(key string) {
	if o.completed[key] {
		return
	}
	o.completed[key] = true
	o.order = append(o.order, key)
}

func (o *Orchestrator) abort(started time.Time, pending []types.Record, cause error) (Result, error) {
	res := o.finish(started, StateAborted, pending)
	return res, fmt.Errorf("%w: %w", ErrIncomplete, cause)
}

func (o *Orchestrator) finish(started time.Time, state State, pending []types.Record) Result {
	o.setState(state)
	records := o.acc.Snapshot()
	counts := CountKinds(records)
	if o.recorder != nil {
		o.recorder.RecordRun(state, counts)
	}
	level.Info(o.logger).Log("msg", "discovery finished", "state", state, "records", len(records),
		"individuals", counts[types.Individual], "aggregates", counts[types.Aggregate],
		"degraded", len(o.degraded), "took", time.Since(started).Round(time.Millisecond))
	return Result{
		RunID:     o.id,
		State:     state,
		Records:   records,
		Completed: append([]string(nil), o.order...),
		Cells:     append([]types.Region(nil), o.cells...),
		Pending:   append([]types.Record(nil), pending...),
		Degraded:  append([]string(nil), o.degraded...),
		Stats:     o.stats,
		Started:   started,
		Finished:  time.Now(),
	}
}
