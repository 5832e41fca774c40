package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/model"
)

// runCycle processes rows[cur.RowStart:end] and always flushes. The returned
// cursor is the one that was persisted: the slice end when every item
// completed and the sink accepted the results, the slice start otherwise.
func (e *Engine) runCycle(ctx context.Context, rows [][]string, cur model.Progress, rep *Report) (next model.Progress, err error) {
	end := cur.SliceEnd(len(rows))
	next = cur
	results := model.CycleMap{}
	rec := &model.CycleRecord{
		ID:        uuid.New().String(),
		RunID:     rep.RunID,
		RowStart:  cur.RowStart,
		RowEnd:    end,
		StartedAt: e.now(),
	}
	log := zap.L().With(zap.String("run_id", rep.RunID), zap.Int("row_start", cur.RowStart), zap.Int("row_end", end))

	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("engine: panic during cycle: %v", p)
		}
		next, err = e.flush(ctx, rows, cur, next, results, rec, err)
	}()

	set := model.BuildItems(rows[cur.RowStart:end])
	log.Info("engine: cycle started", zap.Int("names", set.Len()), zap.Int("skipped_rows", set.Skipped))

	for _, item := range set.Items() {
		if err := ctx.Err(); err != nil {
			return next, eris.Wrap(err, "engine: run canceled")
		}
		outcome, partial, err := e.lookupItem(ctx, item)
		rep.count(outcome.Status)
		if err != nil {
			rec.Items = append(rec.Items, outcome)
			return next, err
		}
		results.Put(item.Name, partial)
		outcome.Result = results[item.Name]
		rec.Items = append(rec.Items, outcome)
	}
	for _, name := range set.Names() {
		results.Ensure(name)
	}

	next = model.Progress{RowStart: end, MaxCountPerCycle: cur.MaxCountPerCycle}
	return next, nil
}

// flush is the single exit point of a cycle. It writes whatever results exist,
// then persists the cursor. A sink failure rewinds the cursor to the slice
// start. The flush runs detached from ctx cancellation under FlushTimeout.
func (e *Engine) flush(ctx context.Context, rows [][]string, cur, next model.Progress, results model.CycleMap, rec *model.CycleRecord, cycleErr error) (model.Progress, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.FlushTimeout)
	defer cancel()

	log := zap.L().With(zap.String("run_id", rec.RunID), zap.Int("row_start", cur.RowStart), zap.Int("row_end", rec.RowEnd))

	if len(results) > 0 {
		log.Info("engine: writing results", zap.Int("names", len(results)))
		n, err := e.sink.Apply(fctx, rows, results)
		if err != nil {
			cycleErr = errors.Join(cycleErr, eris.Wrap(err, "engine: write results"))
			next = cur
		} else {
			rec.RowsWritten = n
			rec.Flushed = true
		}
	}

	if err := e.progress.Save(next); err != nil {
		cycleErr = errors.Join(cycleErr, ErrNotPersisted, eris.Wrap(err, "engine: save progress"))
	} else {
		log.Info("engine: progress saved", zap.Int("next_row_start", next.RowStart))
	}

	rec.FinishedAt = e.now()
	if cycleErr != nil {
		rec.Error = cycleErr.Error()
	}
	e.recordCycle(fctx, rec)

	return next, cycleErr
}

func (e *Engine) recordCycle(ctx context.Context, rec *model.CycleRecord) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.RecordCycle(ctx, rec); err != nil {
		zap.L().Warn("engine: ledger record cycle", zap.String("cycle_id", rec.ID), zap.Error(err))
	}
}
