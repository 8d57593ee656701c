package worksources

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/drumstick90/authordigest/internal/domain"
)

// AbstractFiller fills in missing abstracts on fetched works from a fallback
// source. Works that already carry an abstract are left untouched.
type AbstractFiller struct {
	source AbstractSource
	logger zerolog.Logger

	// onFallback is invoked with the method name for each successful
	// fallback, for metrics.
	onFallback func(method string)
}

// NewAbstractFiller creates an AbstractFiller backed by the given source.
func NewAbstractFiller(source AbstractSource, logger zerolog.Logger) *AbstractFiller {
	return &AbstractFiller{
		source:     source,
		logger:     logger,
		onFallback: func(string) {},
	}
}

// OnFallback registers a hook called with the lookup method for each abstract
// recovered from the fallback source.
func (f *AbstractFiller) OnFallback(hook func(method string)) {
	if hook != nil {
		f.onFallback = hook
	}
}

// Fill attempts to recover abstracts for every work in works that is missing
// one, mutating the slice in place. It returns the number of abstracts
// recovered. Lookup failures for individual works are logged and skipped;
// only context cancellation aborts the pass.
func (f *AbstractFiller) Fill(ctx context.Context, works []domain.WorkItem) (int, error) {
	if f.source == nil {
		return 0, nil
	}

	recovered := 0
	for i := range works {
		if works[i].HasAbstract() {
			continue
		}
		if works[i].PMID == "" && works[i].DOI == "" && works[i].Title == "" {
			continue
		}

		text, method, err := f.source.FetchAbstract(ctx, AbstractRef{
			PMID:  works[i].PMID,
			DOI:   works[i].DOI,
			Title: works[i].Title,
		})
		if err != nil {
			if ctx.Err() != nil {
				return recovered, ctx.Err()
			}
			if !errors.Is(err, domain.ErrNotFound) {
				f.logger.Warn().
					Err(err).
					Str("work_id", works[i].ID).
					Msg("abstract fallback lookup failed")
			}
			continue
		}

		works[i].Abstract = text
		works[i].AbstractSource = "pubmed_" + method
		f.onFallback(method)
		recovered++

		f.logger.Debug().
			Str("work_id", works[i].ID).
			Str("method", method).
			Int("length", len(text)).
			Msg("abstract recovered from fallback source")
	}

	return recovered, nil
}
