package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheet-enricher/internal/lookup"
	"github.com/sells-group/sheet-enricher/internal/model"
)

// lookupItem runs one item under its deadline. A timeout yields an empty
// partial and no error. A non-nil error is a run-level failure: the item must
// not be written and the cycle stops.
func (e *Engine) lookupItem(ctx context.Context, item model.WorkItem) (model.ItemOutcome, model.Partial, error) {
	began := e.now()
	p, err := runWithDeadline(ctx, e.opts.ItemTimeout, e.opts.AbandonGrace, func(ictx context.Context) (model.Partial, error) {
		return e.processItem(ictx, item)
	})
	out := model.ItemOutcome{Name: item.Name, Duration: e.now().Sub(began)}
	log := zap.L().With(zap.String("name", item.Name), zap.Duration("elapsed", out.Duration))

	switch {
	case err == nil && p.ProfileURL != "":
		out.Status = model.ItemFound
		log.Info("engine: item enriched", zap.String("profile_url", p.ProfileURL))
		return out, p, nil
	case err == nil:
		out.Status = model.ItemNotFound
		log.Info("engine: no profile found")
		return out, p, nil
	case ctx.Err() != nil:
		out.Status = model.ItemError
		return out, model.Partial{}, eris.Wrap(ctx.Err(), "engine: run canceled")
	case errors.Is(err, ErrItemTimeout), errors.Is(err, context.DeadlineExceeded):
		out.Status = model.ItemTimeout
		log.Warn("engine: item timed out", zap.Duration("timeout", e.opts.ItemTimeout))
		return out, model.Partial{}, nil
	default:
		out.Status = model.ItemError
		var pe *PanicError
		if errors.As(err, &pe) {
			log.Error("engine: item panicked", zap.Any("panic", pe.Value), zap.ByteString("stack", pe.Stack))
		}
		return out, model.Partial{}, eris.Wrapf(err, "engine: process %q", item.Name)
	}
}

// processItem resolves the profile URL, then its details. Strategy errors
// other than cancellation and provider loss count as "no result".
func (e *Engine) processItem(ctx context.Context, item model.WorkItem) (model.Partial, error) {
	log := zap.L().With(zap.String("name", item.Name))

	url := strings.TrimSpace(item.KnownProfileURL)
	if url != "" {
		log.Debug("engine: using known profile url", zap.String("profile_url", url))
	}
	if url == "" {
		found, err := e.provider.FindProfile(ctx, item.Name)
		if err := strategyErr(ctx, err, log, "profile search"); err != nil {
			return model.Partial{}, err
		}
		url = strings.TrimSpace(found)
	}
	if url == "" {
		found, err := e.provider.FindProfileFallback(ctx, item.Name)
		if err := strategyErr(ctx, err, log, "web search fallback"); err != nil {
			return model.Partial{}, err
		}
		url = strings.TrimSpace(found)
	}

	url = lookup.NormalizeProfileURL(url)
	if url == "" {
		return model.Partial{}, nil
	}

	p := model.Partial{ProfileURL: url}
	// A details error keeps whichever fields the provider did read.
	d, err := e.provider.FetchDetails(ctx, url)
	if err := strategyErr(ctx, err, log, "profile details"); err != nil {
		return p, err
	}
	p.Size = strings.TrimSpace(d.Size)
	p.Industry = strings.TrimSpace(d.Industry)
	return p, nil
}

func strategyErr(ctx context.Context, err error, log *zap.Logger, strategy string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, lookup.ErrUnavailable) {
		return err
	}
	log.Warn("engine: lookup strategy failed", zap.String("strategy", strategy), zap.Error(err))
	return nil
}

// Lookup enriches a single item outside of any cycle, under the same deadline
// as a run. The provider stays open; the caller closes it.
func (e *Engine) Lookup(ctx context.Context, item model.WorkItem) (model.ItemOutcome, error) {
	out, p, err := e.lookupItem(ctx, item)
	out.Result = p.Merge()
	return out, err
}
