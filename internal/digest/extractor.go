// Package digest implements the two-stage author digest pipeline: a
// rate-limited parallel extraction stage that turns each abstract into a
// structured record, and a synthesis stage that answers questions over the
// cached records. The package also owns session state, the extract cache,
// and the progress stream consumed by the HTTP layer.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/llm"
	"github.com/drumstick90/authordigest/internal/observability"
)

// ProgressFunc receives per-item progress in completion order. Completed is
// the number of items finished so far, total the number of items eligible
// for extraction.
type ProgressFunc func(completed, total int, message string)

// ExtractorConfig holds settings for a single extraction run.
type ExtractorConfig struct {
	// MaxWorkers is the number of concurrent extraction workers.
	MaxWorkers int

	// RequestsPerMinute is the target request rate across all workers.
	RequestsPerMinute int

	// MaxRetries is the number of retries per item on transient provider
	// errors. Non-transient errors fail the item immediately.
	MaxRetries int
}

func (c *ExtractorConfig) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 50
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Extractor runs the per-abstract extraction stage against an LLM provider.
//
// Rate limiting works by pacing each worker: with N workers targeting R
// requests per minute, every item occupies its worker for at least 60*N/R
// seconds, so the pool as a whole stays at or under R.
type Extractor struct {
	gen    llm.Generator
	cfg    ExtractorConfig
	logger zerolog.Logger

	// onRetry and onItem are optional observability hooks.
	onRetry func()
	onItem  func(success bool)

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExtractor creates an Extractor for one run.
func NewExtractor(gen llm.Generator, cfg ExtractorConfig, logger zerolog.Logger) *Extractor {
	cfg.applyDefaults()
	return &Extractor{
		gen:    gen,
		cfg:    cfg,
		logger: logger.With().Str("component", "extractor").Logger(),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// OnRetry registers a hook invoked once per transient-error retry.
func (e *Extractor) OnRetry(fn func()) { e.onRetry = fn }

// OnItem registers a hook invoked once per completed item.
func (e *Extractor) OnItem(fn func(success bool)) { e.onItem = fn }

// minDelay is the per-item floor each worker enforces after its call.
func (e *Extractor) minDelay() time.Duration {
	return time.Duration(60 * float64(e.cfg.MaxWorkers) / float64(e.cfg.RequestsPerMinute) * float64(time.Second))
}

// ExtractAll extracts structured records from every work that has an
// abstract. Progress calls are serialized under the result lock, one call
// per item with a strictly increasing completed count. The returned session
// is sorted newest-first with same-year works in input order, so the final
// order does not depend on completion order. On context cancellation the
// partial session collected so far is returned along with ctx.Err().
func (e *Extractor) ExtractAll(ctx context.Context, works []domain.WorkItem, progress ProgressFunc) (domain.Session, error) {
	eligible := make([]domain.WorkItem, 0, len(works))
	for i := range works {
		if works[i].HasAbstract() {
			eligible = append(eligible, works[i])
		}
	}

	total := len(eligible)
	if total == 0 {
		return domain.Session{}, nil
	}

	minDelay := e.minDelay()
	e.logger.Info().
		Int("total", total).
		Int("workers", e.cfg.MaxWorkers).
		Int("rpm", e.cfg.RequestsPerMinute).
		Dur("min_delay", minDelay).
		Msg("starting extraction")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		results   = make(domain.Session, 0, total)
		completed int
		panicked  error
	)

	jobs := make(chan domain.WorkItem)
	var wg sync.WaitGroup
	for w := 0; w < e.cfg.MaxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range jobs {
				mu.Lock()
				stop := panicked != nil
				mu.Unlock()
				if stop {
					continue
				}

				rec, err := e.runOne(runCtx, work, minDelay)
				if err != nil {
					mu.Lock()
					if panicked == nil {
						panicked = err
					}
					mu.Unlock()
					cancel()
					continue
				}

				// Counting, recording, and the progress call are one step
				// under the lock so observers never see completed go
				// backwards.
				mu.Lock()
				completed++
				results = append(results, rec)
				if e.onItem != nil {
					e.onItem(rec.Extracted)
				}
				if progress != nil {
					progress(completed, total, progressMessage(work.Title, rec.Extracted))
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range eligible {
		if runCtx.Err() != nil {
			break
		}
		select {
		case jobs <- eligible[i]:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	order := make(map[string]int, total)
	for i := range eligible {
		order[eligible[i].ID] = i
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Year != results[j].Year {
			return results[i].Year > results[j].Year
		}
		return order[results[i].WorkID] < order[results[j].WorkID]
	})

	if panicked != nil {
		return results, panicked
	}

	e.logger.Info().
		Int("successful", results.SuccessCount()).
		Int("total", total).
		Msg("extraction finished")

	return results, ctx.Err()
}

// runOne extracts one item and then holds the worker until the per-item
// rate floor elapses so the pool stays under the target rate. A panic in
// the provider adapter is recovered and returned as an error so the run
// fails with a terminal event instead of killing the process.
func (e *Extractor) runOne(ctx context.Context, work domain.WorkItem, minDelay time.Duration) (rec domain.ExtractedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Interface("panic", r).
				Str("work_id", work.ID).
				Msg("extraction worker panicked")
			err = fmt.Errorf("extraction worker panicked: %v", r)
		}
	}()

	start := e.now()
	rec = e.extractSingle(ctx, work)
	if elapsed := e.now().Sub(start); elapsed < minDelay {
		_ = e.sleep(ctx, minDelay-elapsed)
	}
	return rec, nil
}

// extractSingle performs one extraction with retries on transient errors.
// The backoff schedule is 2s, 4s, 8s for attempts 0, 1, 2.
func (e *Extractor) extractSingle(ctx context.Context, work domain.WorkItem) domain.ExtractedRecord {
	prompt := BuildExtractionPrompt(work)
	req := llm.GenerateRequest{Prompt: prompt, JSONMode: true}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		raw, err := e.gen.Generate(ctx, req)
		if err == nil {
			rec, perr := parseExtraction(raw, work)
			if perr == nil {
				return rec
			}
			err = perr
		}
		lastErr = err

		if !llm.IsTransient(err) || ctx.Err() != nil {
			break
		}

		wait := time.Duration(1<<uint(attempt+1)) * time.Second
		workLog := observability.WithWorkContext(e.logger, work.ID, work.Title)
		workLog.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("transient provider error, retrying")
		if e.onRetry != nil {
			e.onRetry()
		}
		if serr := e.sleep(ctx, wait); serr != nil {
			lastErr = serr
			break
		}
	}

	return domain.ExtractedRecord{
		WorkID:    work.ID,
		Title:     work.Title,
		Error:     lastErr.Error(),
		Extracted: false,
	}
}

// extractionPayload mirrors the JSON schema the extraction prompt requests.
type extractionPayload struct {
	Theme               string           `json:"theme"`
	Methodology         string           `json:"methodology"`
	Finding             string           `json:"finding"`
	StudyType           domain.StudyType `json:"study_type"`
	Keywords            []string         `json:"keywords"`
	Population          string           `json:"population"`
	Intervention        string           `json:"intervention"`
	Comparison          string           `json:"comparison"`
	Outcome             string           `json:"outcome"`
	SampleSize          string           `json:"sample_size"`
	EvidenceLevel       int              `json:"evidence_level"`
	Novelty             domain.Novelty   `json:"novelty"`
	Limitations         string           `json:"limitations"`
	ClinicalImplication string           `json:"clinical_implication"`
	DrugsStudied        []string         `json:"drugs_studied"`
	Conditions          []string         `json:"conditions"`
	Biomarkers          []string         `json:"biomarkers"`
	OutcomesMeasured    []string         `json:"outcomes_measured"`
}

// parseExtraction decodes a model response into a record. Code fences are
// stripped first because not every provider enforces JSON mode natively.
func parseExtraction(raw string, work domain.WorkItem) (domain.ExtractedRecord, error) {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		// A malformed response is permanent: retrying the same prompt is
		// unlikely to fix it and burns the rate budget.
		return domain.ExtractedRecord{}, fmt.Errorf("response is not valid JSON: %w", err)
	}

	// Evidence level is 1 (strongest) to 5 (weakest); anything else the
	// model invents is stored as 0, "unset".
	if payload.EvidenceLevel < 1 || payload.EvidenceLevel > 5 {
		payload.EvidenceLevel = 0
	}

	return domain.ExtractedRecord{
		WorkID:              work.ID,
		Title:               work.Title,
		Year:                work.PublicationYear,
		Extracted:           true,
		Theme:               payload.Theme,
		Methodology:         payload.Methodology,
		Finding:             payload.Finding,
		StudyType:           payload.StudyType,
		Keywords:            payload.Keywords,
		Population:          payload.Population,
		Intervention:        payload.Intervention,
		Comparison:          payload.Comparison,
		Outcome:             payload.Outcome,
		SampleSize:          payload.SampleSize,
		EvidenceLevel:       payload.EvidenceLevel,
		Novelty:             payload.Novelty,
		Limitations:         payload.Limitations,
		ClinicalImplication: payload.ClinicalImplication,
		DrugsStudied:        payload.DrugsStudied,
		Conditions:          payload.Conditions,
		Biomarkers:          payload.Biomarkers,
		OutcomesMeasured:    payload.OutcomesMeasured,
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 && !strings.HasPrefix(s, "{") {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// progressMessage formats the per-item progress line: a status marker plus
// the title truncated to 40 runes.
func progressMessage(title string, ok bool) string {
	if title == "" {
		title = "Unknown"
	}
	runes := []rune(title)
	if len(runes) > 40 {
		runes = runes[:40]
	}
	status := "✓"
	if !ok {
		status = "⚠"
	}
	return status + " " + string(runes) + "..."
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
