// Package engine drives the resumable batch enrichment: it walks the dataset in
// slices, resolves each unique name through a lookup provider under a
// per-item deadline, and writes results back before advancing the cursor.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/lookup"
	"github.com/sells-group/sheet-enricher/internal/model"
	"github.com/sells-group/sheet-enricher/internal/progress"
)

// ErrNotPersisted marks a failure to save the cursor. The run state is not
// durable and the caller must exit non-zero.
var ErrNotPersisted = eris.New("engine: progress not persisted")

// Source reads the whole dataset once per run.
type Source interface {
	ReadRows(ctx context.Context) ([][]string, error)
}

// Sink writes cycle results back to the dataset in one batched call and
// returns the number of rows touched.
type Sink interface {
	Apply(ctx context.Context, rows [][]string, results model.CycleMap) (int, error)
}

// Ledger records runs and cycles. Failures are logged, never fatal.
type Ledger interface {
	BeginRun(ctx context.Context, run *model.Run) error
	RecordCycle(ctx context.Context, rec *model.CycleRecord) error
	FinishRun(ctx context.Context, run *model.Run) error
}

// Options tune a run.
type Options struct {
	ItemTimeout  time.Duration
	AbandonGrace time.Duration
	FlushTimeout time.Duration
	// MaxCycles stops the run after that many cycles; zero means no limit.
	MaxCycles int
	// RowStart and BatchSize override the loaded cursor when positive.
	RowStart  int
	BatchSize int
	// SourceName is recorded in the ledger.
	SourceName string
}

const (
	defaultItemTimeout  = 500 * time.Second
	defaultAbandonGrace = 5 * time.Second
	defaultFlushTimeout = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = defaultItemTimeout
	}
	if o.AbandonGrace <= 0 {
		o.AbandonGrace = defaultAbandonGrace
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = defaultFlushTimeout
	}
	return o
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Rows     int
	Cycles   int
	Items    int
	Found    int
	NotFound int
	TimedOut int
	Failed   int
	Written  int
	Start    model.Progress
	End      model.Progress
	Elapsed  time.Duration
	// Err holds a recovered run-level failure. Progress was persisted.
	Err error
}

// Status maps the report onto a ledger run status.
func (r *Report) Status() model.RunStatus {
	switch {
	case r.Err == nil:
		return model.RunStatusComplete
	case errors.Is(r.Err, ErrNotPersisted):
		return model.RunStatusFailed
	default:
		return model.RunStatusRecovered
	}
}

func (r *Report) count(status model.ItemStatus) {
	r.Items++
	switch status {
	case model.ItemFound:
		r.Found++
	case model.ItemNotFound:
		r.NotFound++
	case model.ItemTimeout:
		r.TimedOut++
	case model.ItemError:
		r.Failed++
	}
}

// Engine owns one enrichment run. The provider is closed when Run returns.
type Engine struct {
	progress progress.Store
	source   Source
	sink     Sink
	provider lookup.Provider
	ledger   Ledger
	opts     Options
	now      func() time.Time
}

// New creates an Engine.
func New(ps progress.Store, src Source, sink Sink, provider lookup.Provider, opts Options) *Engine {
	return &Engine{
		progress: ps,
		source:   src,
		sink:     sink,
		provider: provider,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// WithLedger attaches a run ledger.
func (e *Engine) WithLedger(l Ledger) *Engine {
	e.ledger = l
	return e
}

// Run processes cycles until the dataset is exhausted, MaxCycles is reached,
// or a run-level failure occurs. It returns an error only for startup
// failures and for failures to persist the cursor; recovered failures are
// reported in Report.Err.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	defer e.release()

	began := e.now()
	cur, err := e.progress.Load()
	if err != nil {
		return nil, eris.Wrap(err, "engine: load progress")
	}
	overridden := e.applyOverrides(&cur)
	if err := cur.Validate(); err != nil {
		return nil, eris.Wrap(err, "engine: invalid progress")
	}

	rep := &Report{RunID: uuid.New().String(), Start: cur, End: cur}
	log := zap.L().With(zap.String("run_id", rep.RunID))

	run := &model.Run{
		ID:        rep.RunID,
		Source:    e.opts.SourceName,
		Status:    model.RunStatusRunning,
		RowStart:  cur.RowStart,
		StartedAt: began,
	}
	e.beginRun(ctx, run)
	defer func() {
		rep.Elapsed = e.now().Sub(began)
		e.finishRun(ctx, run, rep)
		log.Info("engine: run finished",
			zap.Int("cycles", rep.Cycles),
			zap.Int("items", rep.Items),
			zap.Int("found", rep.Found),
			zap.Int("not_found", rep.NotFound),
			zap.Int("timed_out", rep.TimedOut),
			zap.Int("row_start", rep.End.RowStart),
			zap.Duration("elapsed", rep.Elapsed),
		)
	}()

	log.Info("engine: reading work items", zap.String("source", e.opts.SourceName))
	rows, err := e.source.ReadRows(ctx)
	if err != nil {
		rep.Err = eris.Wrap(err, "engine: read work items")
		log.Error("engine: run stopped", zap.Error(rep.Err))
		return rep, nil
	}
	rep.Rows = len(rows)
	log.Info("engine: work items loaded", zap.Int("rows", len(rows)), zap.Int("row_start", cur.RowStart))

	for !cur.Done(len(rows)) {
		if e.opts.MaxCycles > 0 && rep.Cycles >= e.opts.MaxCycles {
			log.Info("engine: cycle limit reached", zap.Int("max_cycles", e.opts.MaxCycles))
			break
		}
		next, err := e.runCycle(ctx, rows, cur, rep)
		rep.Cycles++
		cur = next
		rep.End = cur
		if err != nil {
			rep.Err = err
			if errors.Is(err, ErrNotPersisted) {
				log.Error("engine: progress not persisted", zap.Error(err))
				return rep, err
			}
			log.Error("engine: run stopped", zap.Error(err), zap.Int("row_start", cur.RowStart))
			return rep, nil
		}
	}

	if rep.Cycles == 0 && overridden {
		if err := e.progress.Save(cur); err != nil {
			rep.Err = errors.Join(ErrNotPersisted, eris.Wrap(err, "engine: save progress"))
			return rep, rep.Err
		}
	}
	return rep, nil
}

func (e *Engine) applyOverrides(p *model.Progress) bool {
	changed := false
	if e.opts.RowStart > 0 && e.opts.RowStart != p.RowStart {
		p.RowStart = e.opts.RowStart
		changed = true
	}
	if e.opts.BatchSize > 0 && e.opts.BatchSize != p.MaxCountPerCycle {
		p.MaxCountPerCycle = e.opts.BatchSize
		changed = true
	}
	return changed
}

func (e *Engine) release() {
	if e.provider == nil {
		return
	}
	if err := e.provider.Close(); err != nil {
		zap.L().Warn("engine: release lookup provider", zap.Error(err))
	}
}

func (e *Engine) beginRun(ctx context.Context, run *model.Run) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.BeginRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Warn("engine: ledger begin run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (e *Engine) finishRun(ctx context.Context, run *model.Run, rep *Report) {
	if e.ledger == nil {
		return
	}
	finished := e.now()
	run.Status = rep.Status()
	run.RowEnd = rep.End.RowStart
	run.Cycles = rep.Cycles
	run.FinishedAt = &finished
	if rep.Err != nil {
		run.Error = rep.Err.Error()
	}
	if err := e.ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Warn("engine: ledger finish run", zap.String("run_id", run.ID), zap.Error(err))
	}
}
