package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scriptbridge/internal/config"
	"scriptbridge/internal/metrics"
	"scriptbridge/internal/repository"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyExpression = errors.New("expression must not be empty")
)

// EvaluationRequest is one call through the service. Body, when set,
// selects body-only mode and Response is ignored.
type EvaluationRequest struct {
	ConfigName string
	Expression string
	Response   *Response
	Body       *string
}

// Evaluation is the recorded outcome of one request.
type Evaluation struct {
	ID           string
	ConfigName   string
	Expression   string
	Value        interface{}
	Err          *ScriptError
	Optimization OptimizationLevel
	Duration     time.Duration
	CreatedAt    time.Time
}

func (e *Evaluation) Outcome() string {
	if e.Err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeOK
}

// EvaluationService owns one Evaluator per named configuration, the live
// symbol table and the evaluation history.
type EvaluationService struct {
	registry *config.Registry
	symbols  *SymbolTable
	queries  *repository.Queries
	metrics  *metrics.Collector
	log      *logrus.Entry

	mu         sync.Mutex
	evaluators map[string]*Evaluator
}

// NewEvaluationService wires the service. queries and m may be nil, in
// which case nothing is persisted or measured.
func NewEvaluationService(registry *config.Registry, symbols *SymbolTable, queries *repository.Queries, m *metrics.Collector, log *logrus.Entry) *EvaluationService {
	if symbols == nil {
		symbols = NewSymbolTable()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &EvaluationService{
		registry:   registry,
		symbols:    symbols,
		queries:    queries,
		metrics:    m,
		log:        log,
		evaluators: make(map[string]*Evaluator),
	}
}

// Evaluator returns the evaluator for a named configuration, creating it
// on first use.
func (s *EvaluationService) Evaluator(name string) *Evaluator {
	if name == "" {
		name = config.DefaultName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.evaluators[name]; ok {
		return e
	}
	e := NewEvaluator(name, s.symbols, s.registry.Get(name), s.log)
	s.evaluators[name] = e
	return e
}

// Reconfigure swaps the named configurations and pushes the new options to
// every evaluator already created.
func (s *EvaluationService) Reconfigure(configs map[string]config.Options) {
	s.registry.Replace(configs)

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.evaluators {
		e.Configure(s.registry.Get(name))
	}
	s.log.WithField("configs", s.registry.Names()).Info("configurations reloaded")
}

// Evaluate runs the request and records it. A script failure is reported
// in Evaluation.Err, not as the returned error; the returned error covers
// invalid requests only.
func (s *EvaluationService) Evaluate(ctx context.Context, req EvaluationRequest) (*Evaluation, error) {
	if req.Expression == "" {
		return nil, ErrEmptyExpression
	}
	e := s.Evaluator(req.ConfigName)

	var res *Result
	var err error
	if req.Body != nil {
		res, err = e.EvaluateBody(ctx, *req.Body, req.Expression)
	} else {
		res, err = e.Evaluate(ctx, req.Response, req.Expression)
	}

	ev := &Evaluation{
		ID:           uuid.New().String(),
		ConfigName:   e.Name(),
		Expression:   req.Expression,
		Optimization: res.Optimization,
		Duration:     res.Duration,
		CreatedAt:    time.Now().UTC(),
	}
	if err != nil {
		var se *ScriptError
		if !errors.As(err, &se) {
			return nil, err
		}
		ev.Err = se
	} else if value, encErr := encodableValue(res.Value); encErr != nil {
		ev.Err = &ScriptError{Expression: req.Expression, Message: encErr.Error()}
	} else {
		ev.Value = value
	}

	s.metrics.RecordEvaluation(ev.ConfigName, ev.Outcome(), ev.Optimization == OptimizationInterpreted, ev.Duration)
	s.record(ctx, ev)
	return ev, nil
}

func (s *EvaluationService) record(ctx context.Context, ev *Evaluation) {
	if s.queries == nil {
		return
	}
	params := repository.CreateEvaluationParams{
		ID:           ev.ID,
		ConfigName:   ev.ConfigName,
		Expression:   ev.Expression,
		Outcome:      ev.Outcome(),
		Optimization: int64(ev.Optimization),
		DurationMs:   sql.NullInt64{Int64: ev.Duration.Milliseconds(), Valid: true},
	}
	if ev.Err != nil {
		params.Error = sql.NullString{String: ev.Err.Message, Valid: true}
	} else if data, err := json.Marshal(ev.Value); err == nil {
		params.Result = sql.NullString{String: string(data), Valid: true}
	} else {
		params.Result = sql.NullString{String: fmt.Sprint(ev.Value), Valid: true}
	}

	// history must survive a client that hung up mid-request
	if _, err := s.queries.CreateEvaluation(context.WithoutCancel(ctx), params); err != nil {
		s.log.WithError(err).WithField("evaluation_id", ev.ID).Warn("failed to record evaluation")
	}
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

func (s *EvaluationService) Symbols() *SymbolTable {
	return s.symbols
}

// LoadSymbols replaces the table with the persisted symbols.
func (s *EvaluationService) LoadSymbols(ctx context.Context) error {
	if s.queries == nil {
		return nil
	}
	rows, err := s.queries.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}
	vars := make(map[string]string, len(rows))
	for _, row := range rows {
		vars[row.Name] = row.Value
	}
	s.symbols.Load(vars)
	s.metrics.SetSymbols(s.symbols.Len())
	return nil
}

func (s *EvaluationService) GetSymbol(name string) (string, error) {
	v, ok := s.symbols.Lookup(name)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// PutSymbol stores the symbol, persisting it first.
func (s *EvaluationService) PutSymbol(ctx context.Context, name, value string) error {
	if name == "" {
		return ErrEmptySymbolName
	}
	if s.queries != nil {
		if _, err := s.queries.UpsertSymbol(ctx, repository.UpsertSymbolParams{Name: name, Value: value}); err != nil {
			return fmt.Errorf("persist symbol %q: %w", name, err)
		}
	}
	if err := s.symbols.Put(name, value); err != nil {
		return err
	}
	s.metrics.SetSymbols(s.symbols.Len())
	return nil
}

func (s *EvaluationService) DeleteSymbol(ctx context.Context, name string) error {
	if s.queries != nil {
		if _, err := s.queries.DeleteSymbol(ctx, name); err != nil {
			return fmt.Errorf("delete symbol %q: %w", name, err)
		}
	}
	if !s.symbols.Delete(name) {
		return ErrNotFound
	}
	s.metrics.SetSymbols(s.symbols.Len())
	return nil
}

// ClearSymbols resets the table between test runs.
func (s *EvaluationService) ClearSymbols(ctx context.Context) error {
	if s.queries != nil {
		if err := s.queries.ClearSymbols(ctx); err != nil {
			return fmt.Errorf("clear symbols: %w", err)
		}
	}
	s.symbols.Clear()
	s.metrics.SetSymbols(0)
	return nil
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func (s *EvaluationService) ListEvaluations(ctx context.Context, configName string, limit int64) ([]repository.Evaluation, error) {
	if s.queries == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return s.queries.ListEvaluations(ctx, repository.ListEvaluationsParams{ConfigName: configName, Limit: limit})
}

func (s *EvaluationService) GetEvaluation(ctx context.Context, id string) (repository.Evaluation, error) {
	if s.queries == nil {
		return repository.Evaluation{}, ErrNotFound
	}
	ev, err := s.queries.GetEvaluation(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, ErrNotFound
	}
	return ev, err
}

func (s *EvaluationService) DeleteEvaluation(ctx context.Context, id string) error {
	if s.queries == nil {
		return ErrNotFound
	}
	n, err := s.queries.DeleteEvaluation(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
