package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/llm"
	"github.com/drumstick90/authordigest/internal/observability"
)

// ServiceConfig holds pipeline defaults and the caps applied to per-request
// overrides.
type ServiceConfig struct {
	MaxWorkers             int
	MaxWorkersLimit        int
	RequestsPerMinute      int
	RequestsPerMinuteLimit int
	MaxRetries             int
	CacheDir               string
	ProgressBuffer         int
}

func (c *ServiceConfig) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.MaxWorkersLimit <= 0 {
		c.MaxWorkersLimit = 10
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 50
	}
	if c.RequestsPerMinuteLimit <= 0 {
		c.RequestsPerMinuteLimit = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.ProgressBuffer <= 0 {
		c.ProgressBuffer = 1000
	}
}

// Service wires the digest pipeline together: the subject store, the
// extract file cache, per-session progress streams, and the extraction and
// synthesis stages. One Service instance serves the whole process.
type Service struct {
	cfg     ServiceConfig
	store   *Store
	cache   *FileCache
	streams *StreamRegistry
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewService creates a Service. Metrics may be nil, in which case no
// metrics are recorded.
func NewService(cfg ServiceConfig, metrics *observability.Metrics, logger zerolog.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:     cfg,
		store:   NewStore(),
		cache:   NewFileCache(cfg.CacheDir, logger),
		streams: NewStreamRegistry(),
		metrics: metrics,
		logger:  logger.With().Str("component", "digest").Logger(),
	}
}

// StoreResult reports the outcome of loading a subject's works.
type StoreResult struct {
	Stored              int    `json:"stored"`
	WithAbstracts       int    `json:"with_abstracts"`
	SubjectName         string `json:"author_name,omitempty"`
	HasCachedExtracts   bool   `json:"has_cached_extracts"`
	CachedExtractsCount int    `json:"cached_extracts_count"`
}

// StoreWorks loads a subject's works as the current batch and reports
// whether a prior extraction session for the subject survives on disk.
func (s *Service) StoreWorks(works []domain.WorkItem, subjectName, subjectID string) StoreResult {
	s.store.StoreWorks(works, subjectName, subjectID)
	subjectLog := observability.WithSubjectContext(s.logger, subjectID, subjectName)
	subjectLog.Info().
		Int("works", len(works)).
		Msg("stored works")

	cached, _ := s.cache.Load(subjectID)
	return StoreResult{
		Stored:              len(works),
		WithAbstracts:       domain.CountWithAbstracts(works),
		SubjectName:         subjectName,
		HasCachedExtracts:   len(cached) > 0,
		CachedExtractsCount: len(cached),
	}
}

// StartResult reports an accepted extraction run.
type StartResult struct {
	SessionID     string `json:"session_id"`
	TotalWorks    int    `json:"total_works"`
	WithAbstracts int    `json:"with_abstracts"`
}

// StartExtraction launches an extraction run in the background and returns
// immediately. It fails with a ValidationError when no works are stored and
// a ConflictError when a run is already in flight. Per-request worker and
// RPM overrides are clamped to the configured limits; zero values select
// the defaults.
func (s *Service) StartExtraction(ctx context.Context, sessionID string, gen llm.Generator, maxWorkers, rpm int) (StartResult, error) {
	works, subjectName := s.store.Works()
	if len(works) == 0 {
		return StartResult{}, domain.NewValidationError("works", "no works stored; resolve an author first")
	}

	if maxWorkers <= 0 {
		maxWorkers = s.cfg.MaxWorkers
	}
	if maxWorkers > s.cfg.MaxWorkersLimit {
		maxWorkers = s.cfg.MaxWorkersLimit
	}
	if rpm <= 0 {
		rpm = s.cfg.RequestsPerMinute
	}
	if rpm > s.cfg.RequestsPerMinuteLimit {
		rpm = s.cfg.RequestsPerMinuteLimit
	}

	if !s.store.TryBeginExtraction() {
		return StartResult{}, domain.NewConflictError("extraction", "extraction already in progress")
	}

	stream := s.streams.Register(sessionID, s.cfg.ProgressBuffer, func() {
		if s.metrics != nil {
			s.metrics.ProgressDropped.Inc()
		}
	})

	if s.metrics != nil {
		s.metrics.ExtractionsStarted.Inc()
	}

	go s.runExtraction(ctx, sessionID, stream, gen, works, subjectName, maxWorkers, rpm)

	return StartResult{
		SessionID:     sessionID,
		TotalWorks:    len(works),
		WithAbstracts: domain.CountWithAbstracts(works),
	}, nil
}

// runExtraction drives one background run. The cache write happens before
// the terminal event so a client that reacts to completion always finds the
// extracts on disk. Exactly one terminal event is published, including on
// panic.
func (s *Service) runExtraction(ctx context.Context, sessionID string, stream *Stream, gen llm.Generator, works []domain.WorkItem, subjectName string, maxWorkers, rpm int) {
	logger := observability.WithProviderContext(
		s.logger.With().Str("session_id", sessionID).Logger(),
		gen.Provider(), gen.Model(),
	)
	start := time.Now()

	defer s.store.EndExtraction()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("extraction panicked")
			if s.metrics != nil {
				s.metrics.ExtractionsFailed.Inc()
			}
			stream.PublishTerminal(ProgressEvent{
				Phase: PhaseError,
				Error: fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	extractor := NewExtractor(gen, ExtractorConfig{
		MaxWorkers:        maxWorkers,
		RequestsPerMinute: rpm,
		MaxRetries:        s.cfg.MaxRetries,
	}, logger)
	if s.metrics != nil {
		extractor.OnRetry(s.metrics.ItemRetries.Inc)
		extractor.OnItem(func(success bool) {
			result := "success"
			if !success {
				result = "failure"
			}
			s.metrics.ItemsExtracted.WithLabelValues(result).Inc()
		})
	}

	session, err := extractor.ExtractAll(ctx, works, func(completed, total int, message string) {
		pct := 0
		if total > 0 {
			pct = completed * 100 / total
		}
		stream.TryPublish(ProgressEvent{
			Completed: completed,
			Total:     total,
			Progress:  pct,
			Message:   message,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("extraction aborted")
		if s.metrics != nil {
			s.metrics.ExtractionsFailed.Inc()
		}
		stream.PublishTerminal(ProgressEvent{Phase: PhaseError, Error: err.Error()})
		return
	}

	s.store.SetExtracts(session)

	subjectID, _ := s.store.Subject()
	if cerr := s.cache.Save(subjectID, subjectName, session); cerr != nil {
		logger.Error().Err(cerr).Msg("failed to persist extracts")
	}

	if s.metrics != nil {
		s.metrics.ExtractionsCompleted.Inc()
		s.metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	}

	success := session.SuccessCount()
	stream.PublishTerminal(ProgressEvent{
		Phase:          PhaseComplete,
		TotalExtracted: len(session),
		SuccessCount:   success,
		Message:        fmt.Sprintf("Extraction complete: %d/%d successful", success, len(session)),
	})
}

// ProgressStream returns the stream for a session, if one exists.
func (s *Service) ProgressStream(sessionID string) (*Stream, bool) {
	return s.streams.Get(sessionID)
}

// ReleaseStream drops a session's stream once its consumer is done.
func (s *Service) ReleaseStream(sessionID string) {
	s.streams.Remove(sessionID)
}

// sessionOrCached returns the in-memory session, falling back to the
// on-disk snapshot for the current subject.
func (s *Service) sessionOrCached() domain.Session {
	if session := s.store.Extracts(); len(session) > 0 {
		return session
	}
	subjectID, _ := s.store.Subject()
	session, _ := s.cache.Load(subjectID)
	return session
}

// Synthesize answers a question over the cached extraction session. It
// fails with ErrNoData when no session exists in memory or on disk.
func (s *Service) Synthesize(ctx context.Context, gen llm.Generator, question string) (*SynthesisResult, error) {
	session := s.sessionOrCached()
	if len(session) == 0 {
		return nil, fmt.Errorf("no cached extracts available: %w", domain.ErrNoData)
	}

	if s.metrics != nil {
		s.metrics.SynthesisRequests.WithLabelValues("synthesize").Inc()
	}

	_, subjectName := s.store.Works()
	return NewSynthesizer(gen, s.logger).Synthesize(ctx, session, question, subjectName)
}

// Analyze answers a question, preferring cached extracts when useCache is
// set and falling back to direct analysis over raw abstracts. The fallback
// fails with a ValidationError when no works are stored.
func (s *Service) Analyze(ctx context.Context, gen llm.Generator, question string, useCache bool) (*SynthesisResult, *AnalysisResult, error) {
	if useCache {
		if session := s.sessionOrCached(); len(session) > 0 {
			if s.metrics != nil {
				s.metrics.SynthesisRequests.WithLabelValues("synthesize").Inc()
			}
			_, subjectName := s.store.Works()
			res, err := NewSynthesizer(gen, s.logger).Synthesize(ctx, session, question, subjectName)
			if err == nil {
				return res, nil, nil
			}
			s.logger.Warn().Err(err).Msg("cached synthesis failed, falling back to direct analysis")
		}
	}

	works, subjectName := s.store.Works()
	if len(works) == 0 {
		return nil, nil, domain.NewValidationError("works", "no works stored; resolve an author first")
	}

	if s.metrics != nil {
		s.metrics.SynthesisRequests.WithLabelValues("analyze").Inc()
	}
	res, err := NewSynthesizer(gen, s.logger).Analyze(ctx, works, question, subjectName)
	return nil, res, err
}

// Status describes the current pipeline state.
type Status struct {
	StoredWorks          int    `json:"stored_works"`
	WithAbstracts        int    `json:"with_abstracts"`
	SubjectName          string `json:"author_name,omitempty"`
	Ready                bool   `json:"ready"`
	ExtractionInProgress bool   `json:"extraction_in_progress"`
	HasCachedExtracts    bool   `json:"has_cached_extracts"`
	CachedExtractsCount  int    `json:"cached_extracts_count"`
	SuccessfulExtracts   int    `json:"successful_extracts"`
}

// Status reports the loaded subject, extraction state, and cache state.
func (s *Service) Status() Status {
	works, subjectName := s.store.Works()
	session := s.sessionOrCached()
	return Status{
		StoredWorks:          len(works),
		WithAbstracts:        domain.CountWithAbstracts(works),
		SubjectName:          subjectName,
		Ready:                len(works) > 0,
		ExtractionInProgress: s.store.ExtractionInProgress(),
		HasCachedExtracts:    len(session) > 0,
		CachedExtractsCount:  len(session),
		SuccessfulExtracts:   session.SuccessCount(),
	}
}

// Extracts returns the cached session and its aggregate summary. It fails
// with ErrNoData when no session exists.
func (s *Service) Extracts() (domain.Session, SessionSummary, error) {
	session := s.sessionOrCached()
	if len(session) == 0 {
		return nil, SessionSummary{}, fmt.Errorf("no cached extracts available: %w", domain.ErrNoData)
	}
	return session, Summarize(session), nil
}

// Clear drops the loaded subject, its in-memory extracts, and its on-disk
// snapshot.
func (s *Service) Clear() {
	subjectID, _ := s.store.Subject()
	s.store.Clear()
	if subjectID != "" {
		s.cache.Remove(subjectID)
	}
	s.logger.Info().Msg("cleared stored works and extracts")
}
