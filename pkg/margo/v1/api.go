package v1

import (
	"context"
	"time"

	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
	"github.com/margo-labs/margo/pkg/margo/v1/events"
	"github.com/margo-labs/margo/pkg/margo/v1/metrics"
	"github.com/margo-labs/margo/pkg/margo/v1/tracing"
)

// EngineV1 defines the public interface for the Margo query engine.
type EngineV1 interface {
	// RunModel solves a factor model from its raw YAML content and answers
	// every query the model declares.
	RunModel(ctx context.Context, modelYAML []byte) (*QueryReport, error)

	// MetricsRegistryProvider returns the underlying metrics provider.
	MetricsRegistryProvider() metrics.RegistryProvider
	// TracerProvider returns the underlying tracing provider.
	TracerProvider() tracing.TracerProvider

	// Setter methods for configuring engine components programmatically.
	SetEventBus(bus events.Bus) error
	SetMetricsRegistryProvider(provider metrics.RegistryProvider) error
	SetTracerProvider(provider tracing.TracerProvider) error
	SetSolveMode(mode string) error
	SetSolveInterval(interval time.Duration) error
	SetSolveRetry(attempts int, delay time.Duration) error
}

// EngineOption is a function type used to configure the Margo engine at creation.
type EngineOption func(EngineV1) error

// QueryResult holds the final outcome of a single query execution.
type QueryResult struct {
	Name      string        `json:"name" yaml:"name"`
	Type      string        `json:"type" yaml:"type"`
	Status    string        `json:"status" yaml:"status"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time" yaml:"end_time"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	// Distribution carries the samples of a distribution query.
	Distribution []DistributionEntry `json:"distribution,omitempty" yaml:"distribution,omitempty"`
	// Expectation carries the scalar result of an expectation query.
	Expectation *float64 `json:"expectation,omitempty" yaml:"expectation,omitempty"`
	// Ordering lists the member names of a joint query in the order their
	// values appear inside each joint entry.
	Ordering []string `json:"ordering,omitempty" yaml:"ordering,omitempty"`
	// Joint carries the samples of a joint query.
	Joint []JointEntry `json:"joint,omitempty" yaml:"joint,omitempty"`
}

// DistributionEntry is one (value, probability) pair of a marginal.
type DistributionEntry struct {
	Value       interface{} `json:"value" yaml:"value"`
	Probability float64     `json:"probability" yaml:"probability"`
}

// JointEntry is one (value tuple, probability) pair of a joint distribution.
// Values follows the Ordering of its enclosing QueryResult.
type JointEntry struct {
	Values      []interface{} `json:"values" yaml:"values"`
	Probability float64       `json:"probability" yaml:"probability"`
}

// QueryReport provides a comprehensive summary of a completed model run.
type QueryReport struct {
	ModelName       string        `json:"model_name" yaml:"model_name"`
	OverallStatus   string        `json:"overall_status" yaml:"overall_status"`
	StartTime       time.Time     `json:"start_time" yaml:"start_time"`
	EndTime         time.Time     `json:"end_time" yaml:"end_time"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	SolvePasses     int           `json:"solve_passes" yaml:"solve_passes"`
	Scenarios       []string      `json:"scenarios" yaml:"scenarios"`
	TotalQueries    int           `json:"total_queries" yaml:"total_queries"`
	AnsweredQueries int           `json:"answered_queries" yaml:"answered_queries"`
	RejectedQueries int           `json:"rejected_queries" yaml:"rejected_queries"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
	Results         []QueryResult `json:"results" yaml:"results"`
}

// WithEventBus is an engine option to provide a custom event bus.
func WithEventBus(bus events.Bus) EngineOption {
	return func(e EngineV1) error {
		if bus == nil {
			return margoerrors.NewConfigError("event bus cannot be nil", nil)
		}
		return e.SetEventBus(bus)
	}
}

// WithMetricsRegistryProvider is an engine option to provide a custom metrics provider.
func WithMetricsRegistryProvider(provider metrics.RegistryProvider) EngineOption {
	return func(e EngineV1) error {
		if provider == nil {
			return margoerrors.NewConfigError("metrics registry provider cannot be nil", nil)
		}
		return e.SetMetricsRegistryProvider(provider)
	}
}

// WithTracerProvider is an engine option to provide a custom tracing provider.
func WithTracerProvider(provider tracing.TracerProvider) EngineOption {
	return func(e EngineV1) error {
		if provider == nil {
			return margoerrors.NewConfigError("tracer provider cannot be nil", nil)
		}
		return e.SetTracerProvider(provider)
	}
}

// WithSolveMode is an engine option that overrides the model's solve mode.
func WithSolveMode(mode string) EngineOption {
	return func(e EngineV1) error {
		if mode == "" {
			return margoerrors.NewConfigError("solve mode cannot be empty", nil)
		}
		return e.SetSolveMode(mode)
	}
}

// WithSolveInterval is an engine option that overrides the anytime solve interval.
func WithSolveInterval(interval time.Duration) EngineOption {
	return func(e EngineV1) error {
		if interval <= 0 {
			return margoerrors.NewConfigError("solve interval must be positive", nil)
		}
		return e.SetSolveInterval(interval)
	}
}

// WithSolveRetry is an engine option that overrides the model's retry policy
// for failed solve passes.
func WithSolveRetry(attempts int, delay time.Duration) EngineOption {
	return func(e EngineV1) error {
		if attempts <= 0 || delay < 0 {
			return margoerrors.NewConfigError("solve retry attempts must be positive and delay non-negative", nil)
		}
		return e.SetSolveRetry(attempts, delay)
	}
}
