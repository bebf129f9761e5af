package errors

import (
	"errors"
	"fmt"
	"strings"
)

// --- Margo Core Error Types ---

// ConfigError represents an error encountered during the loading, parsing,
// or validation of a model document or engine options.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that some input (e.g., model structure, schema
// version, factor arity) failed validation checks.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// UnresolvedSupportError is returned by point-distribution queries when the
// target variable's domain contains the unresolved sentinel. The probability
// mass of such a variable cannot be fully point-determined.
type UnresolvedSupportError struct {
	Target string
}

func NewUnresolvedSupportError(target string) *UnresolvedSupportError {
	return &UnresolvedSupportError{Target: target}
}
func (e *UnresolvedSupportError) Error() string {
	return fmt.Sprintf("target '%s' has unresolved support: its domain contains pruned values whose identity is not known; "+
		"use a bounds-aware interval query, or a ranging strategy that does not produce unresolved members", e.Target)
}

// IsUnresolvedSupport checks if an error is an UnresolvedSupportError.
func IsUnresolvedSupport(err error) bool {
	var use *UnresolvedSupportError
	return errors.As(err, &use)
}

// MultipleScenariosError is returned by point-distribution queries when the
// materialized cache holds more than one approximation scenario. A single
// point distribution is not well-defined across disjoint scenarios.
type MultipleScenariosError struct {
	Scenarios []string
}

func NewMultipleScenariosError(scenarios []string) *MultipleScenariosError {
	return &MultipleScenariosError{Scenarios: scenarios}
}
func (e *MultipleScenariosError) Error() string {
	return fmt.Sprintf("solution holds %d approximation scenarios (%s): a point distribution is not defined across them; "+
		"use a bounds-aware query to obtain an interval answer", len(e.Scenarios), strings.Join(e.Scenarios, ", "))
}

// IsMultipleScenarios checks if an error is a MultipleScenariosError.
func IsMultipleScenarios(err error) bool {
	var mse *MultipleScenariosError
	return errors.As(err, &mse)
}

// ZeroMassError signals that normalization would divide by a total mass of
// zero. It is raised explicitly before any division so that malformed
// floating-point values (NaN, Inf) never propagate to callers.
type ZeroMassError struct {
	Detail string
}

func NewZeroMassError(detail string) *ZeroMassError {
	return &ZeroMassError{Detail: detail}
}
func (e *ZeroMassError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("zero total mass: %s: every weight in the table is zero, no distribution exists", e.Detail)
	}
	return "zero total mass: every weight in the table is zero, no distribution exists"
}

// IsZeroMass checks if an error is a ZeroMassError.
func IsZeroMass(err error) bool {
	var zme *ZeroMassError
	return errors.As(err, &zme)
}

// QueryExecutionError represents a fatal error that occurred while answering
// a named query from a model document.
type QueryExecutionError struct {
	QueryName string
	Cause     error
}

func NewQueryExecutionError(queryName string, cause error) *QueryExecutionError {
	return &QueryExecutionError{QueryName: queryName, Cause: cause}
}
func (e *QueryExecutionError) Error() string {
	if e.QueryName == "" {
		return fmt.Sprintf("query execution failed: %v", e.Cause)
	}
	return fmt.Sprintf("query '%s' execution failed: %v", e.QueryName, e.Cause)
}
func (e *QueryExecutionError) Unwrap() error { return e.Cause }
