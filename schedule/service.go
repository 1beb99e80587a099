package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// SERVICE - Generation plus persistence, events and metrics
// =============================================================================

// Service owns one engine per strategy and records what they produce.
// Terms are cloned before every run so callers keep their copy intact.
type Service struct {
	engines   map[Strategy]Engine
	store     Store
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

type ServiceOption func(*Service)

func WithPublisher(p Publisher) ServiceOption { return func(s *Service) { s.publisher = p } }
func WithRecorder(r Recorder) ServiceOption   { return func(s *Service) { s.recorder = r } }
func WithLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.logger = l } }
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, deps Dependencies, opts ...ServiceOption) *Service {
	s := &Service{
		engines:   make(map[Strategy]Engine),
		store:     store,
		publisher: NopPublisher{},
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, strategy := range []Strategy{StrategyCumulative, StrategyProgressive} {
		engine, err := NewEngine(strategy, deps)
		if err == nil {
			s.engines[strategy] = engine
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateRequest asks for a schedule of one loan.
type GenerateRequest struct {
	LoanRef  string
	Strategy Strategy
	Terms    *loan.Terms
	Config   json.RawMessage
}

func (s *Service) engine(strategy Strategy) (Engine, error) {
	if strategy == "" {
		strategy = StrategyCumulative
	}
	engine, ok := s.engines[strategy]
	if !ok {
		return nil, &generic.UnsupportedStrategyError{Strategy: string(strategy)}
	}
	return engine, nil
}

// Preview generates a schedule without persisting it.
func (s *Service) Preview(_ context.Context, req GenerateRequest) (*Model, error) {
	if req.Terms == nil {
		return nil, &generic.ValidationErrorDetail{Field: "terms", Message: "required"}
	}
	engine, err := s.engine(req.Strategy)
	if err != nil {
		s.recorder.ObserveFailure(req.Strategy, failureReason(err))
		return nil, err
	}

	started := s.now()
	model, err := engine.Generate(req.Terms.Clone())
	if err != nil {
		s.recorder.ObserveFailure(engine.Strategy(), failureReason(err))
		s.logger.Warn("schedule generation failed",
			"loan_ref", req.LoanRef, "strategy", engine.Strategy(), "error", err)
		return nil, err
	}
	s.recorder.ObserveGeneration(engine.Strategy(), model.Len(), s.now().Sub(started))
	return model, nil
}

// Generate derives a schedule, appends it as the next version of the loan
// and announces it.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Record, error) {
	if req.LoanRef == "" {
		return nil, &generic.ValidationErrorDetail{Field: "loan_ref", Message: "required"}
	}
	model, err := s.Preview(ctx, req)
	if err != nil {
		return nil, err
	}

	version := 1
	latest, err := s.store.Latest(ctx, req.LoanRef)
	switch {
	case err == nil:
		version = latest.Version + 1
	case !errors.Is(err, generic.ErrScheduleNotFound):
		return nil, fmt.Errorf("load latest schedule: %w", err)
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyCumulative
	}
	rec := &Record{
		ID:        uuid.New(),
		LoanRef:   req.LoanRef,
		Version:   version,
		Strategy:  strategy,
		OfficeID:  req.Terms.OfficeID,
		Config:    req.Config,
		Schedule:  model,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	totals := model.Totals()
	s.logger.Info("schedule generated",
		"loan_ref", rec.LoanRef,
		"schedule_id", rec.ID,
		"version", rec.Version,
		"strategy", rec.Strategy,
		"periods", model.Len(),
		"principal", totals.Principal.String(),
		"interest", totals.Interest.String())

	if err := s.publisher.PublishGenerated(ctx, rec); err != nil {
		s.logger.Warn("schedule event not published", "schedule_id", rec.ID, "error", err)
	}
	return rec, nil
}

// Prepayment computes the amounts closing the loan on onDate.
func (s *Service) Prepayment(_ context.Context, req GenerateRequest, onDate generic.TimePoint) (*OutstandingAmounts, error) {
	if req.Terms == nil {
		return nil, &generic.ValidationErrorDetail{Field: "terms", Message: "required"}
	}
	engine, err := s.engine(req.Strategy)
	if err != nil {
		return nil, err
	}
	return engine.CalculatePrepayment(req.Terms.Clone(), onDate)
}

// Rederive regenerates a stored schedule from terms rebuilt out of its
// configuration and appends the result as a new version.
func (s *Service) Rederive(ctx context.Context, rec *Record, terms *loan.Terms) (*Record, error) {
	next, err := s.Generate(ctx, GenerateRequest{
		LoanRef:  rec.LoanRef,
		Strategy: rec.Strategy,
		Terms:    terms,
		Config:   rec.Config,
	})
	if err != nil {
		return nil, fmt.Errorf("rederive %s: %w", rec.LoanRef, err)
	}
	return next, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Latest(ctx context.Context, loanRef string) (*Record, error) {
	return s.store.Latest(ctx, loanRef)
}

func (s *Service) History(ctx context.Context, loanRef string) ([]*Record, error) {
	return s.store.History(ctx, loanRef)
}

func (s *Service) MarkStale(ctx context.Context, officeID string) (int, error) {
	n, err := s.store.MarkStale(ctx, officeID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("schedules marked stale", "office_id", officeID, "count", n)
	}
	return n, nil
}

func (s *Service) ListStale(ctx context.Context, limit int) ([]*Record, error) {
	return s.store.ListStale(ctx, limit)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, generic.ErrCapExceeded):
		return "cap_exceeded"
	case errors.Is(err, generic.ErrUnsupportedStrategy):
		return "unsupported_strategy"
	case errors.Is(err, generic.ErrUnboundedSchedule):
		return "unbounded_schedule"
	case errors.Is(err, generic.ErrInvalidTerms):
		return "invalid_terms"
	default:
		return "internal"
	}
}
