// Package engine orchestrates the margo run lifecycle: load and validate a
// model document, schedule solve passes, rebuild the materialized marginal
// cache, and answer the model's declared queries against the latest snapshot.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/margo-labs/margo/internal/config"
	intevents "github.com/margo-labs/margo/internal/events"
	"github.com/margo-labs/margo/internal/logger"
	intmetrics "github.com/margo-labs/margo/internal/metrics"
	"github.com/margo-labs/margo/internal/query"
	"github.com/margo-labs/margo/internal/retry"
	"github.com/margo-labs/margo/internal/solver"
	inttracing "github.com/margo-labs/margo/internal/tracing"
	margo "github.com/margo-labs/margo/pkg/margo/v1"
	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
	"github.com/margo-labs/margo/pkg/margo/v1/events"
	margolog "github.com/margo-labs/margo/pkg/margo/v1/log"
	"github.com/margo-labs/margo/pkg/margo/v1/metrics"
	"github.com/margo-labs/margo/pkg/margo/v1/tracing"
)

// tracerName identifies engine spans.
const tracerName = "margo-engine"

// Report status values.
const (
	StatusCompleted = "Completed"
	StatusRejected  = "Rejected"
	StatusFailed    = "Failed"
)

// Engine is the primary implementation of the margo.EngineV1 interface.
type Engine struct {
	log             margolog.Logger
	eventBus        events.Bus
	metricsProvider metrics.RegistryProvider
	instruments     *intmetrics.EngineInstruments
	tracerProvider  tracing.TracerProvider
	retryHelper     *retry.Helper

	// Optional programmatic overrides of the model's solve policy.
	solveMode     config.SolveMode
	solveInterval time.Duration
	solveRetry    *config.RetryPolicy
}

var _ margo.EngineV1 = (*Engine)(nil)

// NewEngine creates a margo engine. Providers not supplied through options
// fall back to safe defaults: a no-op event bus, an isolated Prometheus
// registry, and a no-op tracer.
func NewEngine(log margolog.Logger, opts ...margo.EngineOption) (*Engine, error) {
	if log == nil {
		log = logger.NewDefaultLogger("info")
	}
	e := &Engine{log: log}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, margoerrors.NewConfigError("failed to apply engine option", err)
		}
	}

	if e.eventBus == nil {
		e.log.Debugf("No event bus provided, using no-op bus.")
		e.eventBus = intevents.NewNoOpEventBus()
	}
	if e.metricsProvider == nil {
		e.log.Debugf("No metrics registry provider given, using default Prometheus provider.")
		e.metricsProvider = intmetrics.NewPrometheusRegistryProvider()
	}
	if e.tracerProvider == nil {
		provider, err := inttracing.NewNoOpProvider()
		if err != nil {
			return nil, margoerrors.NewConfigError("failed to create default no-op tracer provider", err)
		}
		e.tracerProvider = provider
	}

	e.instruments = intmetrics.NewEngineInstruments(e.metricsProvider.Registry())
	e.retryHelper = retry.NewHelper(e.log)
	return e, nil
}

// MetricsRegistryProvider returns the engine's metrics provider.
func (e *Engine) MetricsRegistryProvider() metrics.RegistryProvider { return e.metricsProvider }

// TracerProvider returns the engine's tracer provider.
func (e *Engine) TracerProvider() tracing.TracerProvider { return e.tracerProvider }

// Instruments exposes the engine's registered collector set so callers can
// wire a metrics event listener against the same registry.
func (e *Engine) Instruments() *intmetrics.EngineInstruments { return e.instruments }

func (e *Engine) SetEventBus(bus events.Bus) error {
	if bus == nil {
		return margoerrors.NewConfigError("event bus cannot be nil", nil)
	}
	e.eventBus = bus
	return nil
}

func (e *Engine) SetMetricsRegistryProvider(provider metrics.RegistryProvider) error {
	if provider == nil {
		return margoerrors.NewConfigError("metrics registry provider cannot be nil", nil)
	}
	e.metricsProvider = provider
	return nil
}

func (e *Engine) SetTracerProvider(provider tracing.TracerProvider) error {
	if provider == nil {
		return margoerrors.NewConfigError("tracer provider cannot be nil", nil)
	}
	e.tracerProvider = provider
	return nil
}

func (e *Engine) SetSolveMode(mode string) error {
	switch config.SolveMode(mode) {
	case config.SolveOneShot, config.SolveAnytime:
		e.solveMode = config.SolveMode(mode)
		return nil
	default:
		return margoerrors.NewConfigError(fmt.Sprintf("unknown solve mode '%s'", mode), nil)
	}
}

func (e *Engine) SetSolveInterval(interval time.Duration) error {
	if interval <= 0 {
		return margoerrors.NewConfigError("solve interval must be positive", nil)
	}
	e.solveInterval = interval
	return nil
}

func (e *Engine) SetSolveRetry(attempts int, delay time.Duration) error {
	if attempts <= 0 || delay < 0 {
		return margoerrors.NewConfigError("solve retry attempts must be positive and delay non-negative", nil)
	}
	e.solveRetry = &config.RetryPolicy{Attempts: attempts, Delay: config.Duration(delay)}
	return nil
}

// RunModel loads, solves, and queries a model document. In oneshot mode it
// performs a single solve pass before answering queries. In anytime mode it
// re-solves on the configured interval until ctx is cancelled, then answers
// the model's queries against the latest cache snapshot.
func (e *Engine) RunModel(ctx context.Context, modelYAML []byte) (*margo.QueryReport, error) {
	startTime := time.Now()

	model, err := config.LoadModel(modelYAML, "")
	if err != nil {
		return nil, err
	}

	tracer := e.tracerProvider.GetTracer(tracerName)
	ctx, span := tracer.Start(ctx, "margo.model.run",
		trace.WithAttributes(attribute.String("margo.model.name", model.Name)))
	defer span.End()

	e.emit(events.Event{Type: events.ModelStart, Timestamp: time.Now(), ModelName: model.Name})
	e.log.Infof("Starting model '%s'", model.Name)

	report := &margo.QueryReport{
		ModelName: model.Name,
		StartTime: startTime,
	}
	finish := func(status string, runErr error) (*margo.QueryReport, error) {
		report.OverallStatus = status
		report.EndTime = time.Now()
		report.Duration = report.EndTime.Sub(report.StartTime)
		if runErr != nil {
			report.Error = runErr.Error()
			inttracing.RecordError(span, runErr)
		} else {
			inttracing.EndOK(span)
		}
		e.emit(events.Event{Type: events.ModelEnd, Timestamp: time.Now(), ModelName: model.Name,
			Payload: map[string]interface{}{"status": status}})
		return report, runErr
	}

	compiled, err := config.Compile(model)
	if err != nil {
		return finish(StatusFailed, err)
	}
	querier := query.New(compiled.Problem, compiled.Targets...)

	scenarios, passes, err := e.runSolves(ctx, tracer, model, compiled, querier)
	if err != nil {
		return finish(StatusFailed, err)
	}
	report.Scenarios = scenarios
	report.SolvePasses = passes

	results, failed := e.runQueries(ctx, tracer, model, compiled, querier)
	report.Results = results
	report.TotalQueries = len(results)
	for _, r := range results {
		switch r.Status {
		case StatusCompleted:
			report.AnsweredQueries++
		case StatusRejected:
			report.RejectedQueries++
		}
	}

	if failed > 0 {
		return finish(StatusFailed, margoerrors.NewQueryExecutionError(model.Name,
			fmt.Errorf("%d of %d queries failed", failed, len(results))))
	}
	e.log.Infof("Model '%s' finished: %d answered, %d rejected", model.Name, report.AnsweredQueries, report.RejectedQueries)
	return finish(StatusCompleted, nil)
}

// runSolves executes the solve schedule and returns the scenario keys of the
// last completed pass along with the pass count.
func (e *Engine) runSolves(ctx context.Context, tracer trace.Tracer, model *config.Model, compiled *config.Compiled, querier *query.Querier) ([]string, int, error) {
	mode := model.Solve.EffectiveMode()
	if e.solveMode != "" {
		mode = e.solveMode
	}

	var scenarios []string
	passes := 0
	solveOnce := func(ctx context.Context) error {
		_, span := tracer.Start(ctx, "margo.model.solve")
		defer span.End()

		e.emit(events.Event{Type: events.SolveStart, Timestamp: time.Now(), ModelName: model.Name})
		begin := time.Now()
		solutions := solver.Solve(compiled.Problem)
		querier.ProcessSolutions(solutions)
		elapsed := time.Since(begin)

		scenarios = solver.Scenarios(solutions)
		passes++
		e.instruments.SolveDuration.Observe(elapsed.Seconds())
		span.SetAttributes(inttracing.SolveAttributes(model.Name, scenarios)...)
		inttracing.EndOK(span)

		e.emit(events.Event{Type: events.SolveCompleted, Timestamp: time.Now(), ModelName: model.Name,
			Payload: map[string]interface{}{
				"scenarios":        scenarios,
				"duration_seconds": elapsed.Seconds(),
			}})
		e.emit(events.Event{Type: events.CacheRebuilt, Timestamp: time.Now(), ModelName: model.Name})
		return nil
	}

	retryCfg := e.solveRetryConfig(model)
	doSolve := func(ctx context.Context) error {
		return e.retryHelper.Do(ctx, retryCfg, solveOnce)
	}

	if err := doSolve(ctx); err != nil {
		return nil, passes, err
	}

	if mode == config.SolveAnytime {
		interval := model.Solve.EffectiveInterval()
		if e.solveInterval > 0 {
			interval = e.solveInterval
		}
		e.log.Infof("Anytime solving every %s until cancelled", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.log.Infof("Anytime solving stopped after %d passes", passes)
				return scenarios, passes, nil
			case <-ticker.C:
				if err := doSolve(ctx); err != nil {
					// ctx cancellation during a pass is the normal exit.
					if ctx.Err() != nil {
						return scenarios, passes, nil
					}
					return scenarios, passes, err
				}
			}
		}
	}
	return scenarios, passes, nil
}

func (e *Engine) solveRetryConfig(model *config.Model) retry.Config {
	policy := e.solveRetry
	if policy == nil && model.Solve != nil {
		policy = model.Solve.Retry
	}
	cfg := retry.Config{
		Attempts:      1,
		BackoffFactor: 2.0,
		Jitter:        0.1,
		OnError:       true,
		OpName:        "solve pass",
	}
	if policy != nil {
		if policy.Attempts > 0 {
			cfg.Attempts = policy.Attempts
		}
		cfg.Delay = policy.Delay.Std()
	}
	return cfg
}

// runQueries answers every query the model declares against the querier's
// current snapshot. Validation rejections are recorded per query, never
// aborting the run; the returned count covers hard failures only.
func (e *Engine) runQueries(ctx context.Context, tracer trace.Tracer, model *config.Model, compiled *config.Compiled, querier *query.Querier) ([]margo.QueryResult, int) {
	results := make([]margo.QueryResult, 0, len(model.Queries))
	failed := 0
	for i := range model.Queries {
		q := &model.Queries[i]
		result := e.runQuery(ctx, tracer, model, compiled, querier, q)
		if result.Status == StatusFailed {
			failed++
		}
		results = append(results, result)
	}
	return results, failed
}

func (e *Engine) runQuery(ctx context.Context, tracer trace.Tracer, model *config.Model, compiled *config.Compiled, querier *query.Querier, q *config.QuerySpec) margo.QueryResult {
	result := margo.QueryResult{
		Name:      q.Name,
		Type:      string(q.Type),
		StartTime: time.Now(),
	}
	targetNames := q.Targets
	if q.Target != "" {
		targetNames = []string{q.Target}
	}
	_, span := tracer.Start(ctx, "margo.query.run",
		trace.WithAttributes(inttracing.QueryAttributes(string(q.Type), targetNames)...))
	defer span.End()

	err := e.answerQuery(compiled, querier, q, &result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	switch {
	case err == nil:
		result.Status = StatusCompleted
		inttracing.EndOK(span)
		e.emit(events.Event{Type: events.QueryAnswered, Timestamp: time.Now(), ModelName: model.Name, QueryName: q.Name,
			Payload: map[string]interface{}{"kind": string(q.Type)}})
	case isRejection(err):
		result.Status = StatusRejected
		result.Error = err.Error()
		e.log.Warnf("Query '%s' rejected: %v", q.Name, err)
		inttracing.RecordError(span, err)
		e.emit(events.Event{Type: events.QueryRejected, Timestamp: time.Now(), ModelName: model.Name, QueryName: q.Name,
			Payload: map[string]interface{}{"reason": rejectionReason(err)}})
	default:
		result.Status = StatusFailed
		wrapped := margoerrors.NewQueryExecutionError(q.Name, err)
		result.Error = wrapped.Error()
		e.log.Errorf("Query '%s' failed: %v", q.Name, err)
		inttracing.RecordError(span, wrapped)
	}
	return result
}

// answerQuery dispatches on the query kind and fills the result payload.
func (e *Engine) answerQuery(compiled *config.Compiled, querier *query.Querier, q *config.QuerySpec, result *margo.QueryResult) error {
	switch q.Type {
	case config.QueryDistribution:
		target, ok := compiled.TargetByName[q.Target]
		if !ok {
			return margoerrors.NewValidationError(fmt.Sprintf("query '%s': '%s' is not a tracked target", q.Name, q.Target), nil)
		}
		samples, err := querier.Distribution(target)
		if err != nil {
			return err
		}
		entries := make([]margo.DistributionEntry, len(samples))
		for i, s := range samples {
			entries[i] = margo.DistributionEntry{Value: s.Value, Probability: s.Probability}
		}
		result.Distribution = entries
		return nil

	case config.QueryExpectation:
		target, ok := compiled.TargetByName[q.Target]
		if !ok {
			return margoerrors.NewValidationError(fmt.Sprintf("query '%s': '%s' is not a tracked target", q.Name, q.Target), nil)
		}
		payoff, err := config.PayoffFunc(q, target)
		if err != nil {
			return err
		}
		value, err := querier.Expectation(target, payoff)
		if err != nil {
			return err
		}
		result.Expectation = &value
		return nil

	case config.QueryJoint:
		targets := make([]query.Target, len(q.Targets))
		for i, name := range q.Targets {
			v, ok := compiled.VariableByName[name]
			if !ok {
				return margoerrors.NewValidationError(fmt.Sprintf("query '%s': variable '%s' is not declared", q.Name, name), nil)
			}
			targets[i] = query.NewTarget(v)
		}
		positions, samples, err := querier.Joint(targets...)
		if err != nil {
			return err
		}
		ordering := make([]string, len(positions))
		for i, p := range positions {
			ordering[i] = p.Name
		}
		entries := make([]margo.JointEntry, len(samples))
		for i, s := range samples {
			entries[i] = margo.JointEntry{Values: s.Values, Probability: s.Probability}
		}
		result.Ordering = ordering
		result.Joint = entries
		return nil

	default:
		return margoerrors.NewValidationError(fmt.Sprintf("query '%s': unknown type '%s'", q.Name, q.Type), nil)
	}
}

// isRejection reports whether err is one of the expected query validation
// outcomes rather than a hard failure.
func isRejection(err error) bool {
	return margoerrors.IsUnresolvedSupport(err) ||
		margoerrors.IsMultipleScenarios(err) ||
		margoerrors.IsZeroMass(err)
}

func rejectionReason(err error) string {
	switch {
	case margoerrors.IsUnresolvedSupport(err):
		return "unresolved_support"
	case margoerrors.IsMultipleScenarios(err):
		return "multiple_scenarios"
	case margoerrors.IsZeroMass(err):
		return "zero_mass"
	default:
		return "unknown"
	}
}

func (e *Engine) emit(event events.Event) {
	e.eventBus.Emit(event)
}
