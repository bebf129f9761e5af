package config

import "time"

// SolveMode defines the available scheduling modes for the solver.
// It is a typed string to enforce valid values.
type SolveMode string

const (
	// SolveOneShot (default) solves exactly once; the materialized cache is
	// then read-only for the lifetime of the engine run.
	SolveOneShot SolveMode = "oneshot"

	// SolveAnytime solves repeatedly on an interval until the run context is
	// cancelled. Each completed pass atomically replaces the entire
	// materialized cache; queries always answer against the latest snapshot.
	SolveAnytime SolveMode = "anytime"
)

// SolvePolicy defines how the engine schedules solve passes.
type SolvePolicy struct {
	// Mode selects one-shot or anytime solving. Defaults to oneshot.
	Mode SolveMode `yaml:"mode,omitempty" json:"mode,omitempty"`
	// Interval is the pause between anytime passes. Ignored in oneshot mode.
	Interval Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	// Retry configures re-attempts of a failed solve pass.
	Retry *RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// RetryPolicy configures backoff for failed solve passes.
type RetryPolicy struct {
	Attempts int      `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	Delay    Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// EffectiveMode returns the configured mode, defaulting to oneshot.
func (p *SolvePolicy) EffectiveMode() SolveMode {
	if p == nil || p.Mode == "" {
		return SolveOneShot
	}
	return p.Mode
}

// EffectiveInterval returns the configured interval, defaulting to one second.
func (p *SolvePolicy) EffectiveInterval() time.Duration {
	if p == nil || p.Interval <= 0 {
		return time.Second
	}
	return p.Interval.Std()
}
