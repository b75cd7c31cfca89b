package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"scriptbridge/internal/config"
)

// Result is the outcome of one evaluation. Value is nil for a null (or
// undefined) completion value; that is a success, not a failure.
type Result struct {
	Value           interface{}       `json:"value"`
	Optimization    OptimizationLevel `json:"optimization"`
	Duration        time.Duration     `json:"duration"`
	BodyParseFailed bool              `json:"bodyParseFailed,omitempty"`
}

// configurable is implemented by ports that take options, like JSEngine.
type configurable interface {
	Configure(opts config.Options)
}

// Evaluator runs script expressions against the last response and the
// symbol table. It is safe for concurrent use; the only state shared
// between calls is its configuration.
type Evaluator struct {
	name     string
	symbols  VariableSource
	governor *Governor
	strict   atomic.Bool
	port     ScriptingPort
	log      *logrus.Entry
}

// NewEvaluator builds an evaluator backed by a goja JSEngine. symbols is
// read at every call, so later changes to it are visible to scripts.
func NewEvaluator(name string, symbols VariableSource, opts config.Options, log *logrus.Entry) *Evaluator {
	return newEvaluatorWithPort(name, symbols, opts, NewJSEngine(opts), log)
}

func newEvaluatorWithPort(name string, symbols VariableSource, opts config.Options, port ScriptingPort, log *logrus.Entry) *Evaluator {
	if symbols == nil {
		symbols = emptySource{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Evaluator{
		name:     name,
		symbols:  symbols,
		governor: NewGovernor(opts.Threshold()),
		port:     port,
		log:      log.WithField("config", name),
	}
	e.strict.Store(opts.StrictJSONBody())
	return e
}

// Configure reloads the options. Calls already running keep the settings
// they started with.
func (e *Evaluator) Configure(opts config.Options) {
	e.governor.SetThreshold(opts.Threshold())
	e.strict.Store(opts.StrictJSONBody())
	if c, ok := e.port.(configurable); ok {
		c.Configure(opts)
	}
	e.log.WithFields(logrus.Fields{
		"threshold":   e.governor.Threshold(),
		"strict_json": opts.StrictJSONBody(),
	}).Debug("evaluator configured")
}

func (e *Evaluator) Name() string     { return e.name }
func (e *Evaluator) Threshold() int64 { return e.governor.Threshold() }

// Evaluate runs expression against resp, which may be nil. On failure the
// error is a *ScriptError and the returned Result still carries the
// optimization level and duration.
func (e *Evaluator) Evaluate(ctx context.Context, resp *Response, expression string) (*Result, error) {
	var rb *ResponseBinding
	var body string
	if resp != nil {
		rb = newResponseBinding(resp, e.strict.Load())
		body = resp.Body
	}
	return e.run(ctx, rb, body, expression)
}

// EvaluateBody runs expression against a bare body. Only response.body,
// response.jsonbody and response.jsonpath carry data; the other response
// fields are null.
func (e *Evaluator) EvaluateBody(ctx context.Context, body, expression string) (*Result, error) {
	return e.run(ctx, newBodyBinding(body, e.strict.Load()), body, expression)
}

func (e *Evaluator) run(ctx context.Context, rb *ResponseBinding, body, expression string) (*Result, error) {
	start := time.Now()
	level := e.governor.Level(body, expression)
	res := &Result{Optimization: level}

	if level == OptimizationInterpreted {
		e.log.WithFields(logrus.Fields{
			"body_bytes":       len(body),
			"expression_bytes": len(expression),
			"threshold":        e.governor.Threshold(),
		}).Debug("optimization disabled for oversized input")
	}
	if rb != nil {
		rb.onParseError = func(err error) {
			res.BodyParseFailed = true
			e.log.WithError(err).Debug("response body kept as raw string")
		}
	}

	value, err := e.port.Run(ctx, &Bindings{Symbols: e.symbols, Response: rb}, expression, level)
	res.Duration = time.Since(start)
	if err != nil {
		var se *ScriptError
		if !errors.As(err, &se) {
			se = &ScriptError{Expression: expression, Message: err.Error()}
		}
		return res, se
	}

	res.Value = value
	return res, nil
}
