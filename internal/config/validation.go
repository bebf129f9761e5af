package config

import (
	"fmt"
	"regexp"

	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
)

// Pre-compiled regex for validating variable identifiers.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Pre-compiled regex for validating model and query names. Allows for more
// readable names than standard identifiers.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateModelStructure performs a comprehensive logical validation of the
// parsed Model struct. It checks cross-field consistency — references,
// arities, weight counts — that cannot be fully expressed in JSON Schema
// alone. It returns a slice of all validation errors found.
func ValidateModelStructure(m *Model) []error {
	var errs []error

	if m.Name != "" && !nameRegex.MatchString(m.Name) {
		errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("model name '%s' contains invalid characters (allowed: alphanumeric, underscore, hyphen)", m.Name), nil))
	}
	if len(m.Variables) == 0 {
		errs = append(errs, margoerrors.NewValidationError("model must declare at least one variable", nil))
	}
	if len(m.Factors) == 0 {
		errs = append(errs, margoerrors.NewValidationError("model must declare at least one factor", nil))
	}

	// Variables: unique identifiers, non-empty domains.
	cardinality := make(map[string]int, len(m.Variables))
	for i, v := range m.Variables {
		display := fmt.Sprintf("variable %d ('%s')", i, v.Name)
		if !identifierRegex.MatchString(v.Name) {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: name must be a valid identifier", display), nil))
		}
		if _, dup := cardinality[v.Name]; dup {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: duplicate variable name", display), nil))
			continue
		}
		distinct := countDistinct(v.Domain)
		if distinct == 0 {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: domain cannot be empty", display), nil))
		}
		if v.Unresolved {
			// The sentinel is appended during compilation.
			distinct++
		}
		cardinality[v.Name] = distinct
	}

	// Factors: referenced variables exist and are unique; weight count
	// matches the product of cardinalities.
	for i, f := range m.Factors {
		display := fmt.Sprintf("factor %d", i)
		seen := make(map[string]bool, len(f.Variables))
		size := 1
		broken := false
		for _, name := range f.Variables {
			if seen[name] {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: variable '%s' listed twice", display, name), nil))
				broken = true
				continue
			}
			seen[name] = true
			card, exists := cardinality[name]
			if !exists {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: references undeclared variable '%s'", display, name), nil))
				broken = true
				continue
			}
			size *= card
		}
		if !broken && len(f.Weights) != size {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: has %d weights but its variables span %d combinations", display, len(f.Weights), size), nil))
		}
		for j, w := range f.Weights {
			if w < 0 {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: weight %d is negative (%g)", display, j, w), nil))
			}
		}
	}

	// Targets: must reference declared variables, no duplicates.
	targetSet := make(map[string]bool, len(m.Targets))
	for _, name := range m.Targets {
		if _, exists := cardinality[name]; !exists {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("target '%s' references undeclared variable", name), nil))
			continue
		}
		if targetSet[name] {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("target '%s' listed twice", name), nil))
		}
		targetSet[name] = true
	}
	if len(m.Targets) == 0 {
		// Default target list is every declared variable.
		for _, v := range m.Variables {
			targetSet[v.Name] = true
		}
	}

	// Queries: names unique, kinds consistent with their fields, referenced
	// variables tracked or declared.
	queryNames := make(map[string]bool, len(m.Queries))
	for i := range m.Queries {
		q := &m.Queries[i]
		display := fmt.Sprintf("query %d ('%s')", i, q.Name)
		if !nameRegex.MatchString(q.Name) {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: name contains invalid characters (allowed: alphanumeric, underscore, hyphen)", display), nil))
		}
		if queryNames[q.Name] {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: duplicate query name", display), nil))
		}
		queryNames[q.Name] = true

		switch q.Type {
		case QueryDistribution, QueryExpectation:
			if q.Target == "" {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: %s queries require a 'target'", display, q.Type), nil))
				continue
			}
			if len(q.Targets) > 0 {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: 'targets' is only valid for joint queries", display), nil))
			}
			if !targetSet[q.Target] {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: target '%s' is not in the model's target list", display, q.Target), nil))
			}
		case QueryJoint:
			if len(q.Targets) == 0 {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: joint queries require a non-empty 'targets' list", display), nil))
				continue
			}
			if q.Target != "" {
				errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: 'target' is only valid for distribution and expectation queries", display), nil))
			}
			jointSeen := make(map[string]bool, len(q.Targets))
			for _, name := range q.Targets {
				if jointSeen[name] {
					errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: target '%s' listed twice", display, name), nil))
					continue
				}
				jointSeen[name] = true
				if _, exists := cardinality[name]; !exists {
					errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: references undeclared variable '%s'", display, name), nil))
				}
			}
		default:
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("%s: unknown query type '%s'", display, q.Type), nil))
		}
	}

	// Solve policy.
	if m.Solve != nil {
		if m.Solve.Mode != "" && m.Solve.Mode != SolveOneShot && m.Solve.Mode != SolveAnytime {
			errs = append(errs, margoerrors.NewValidationError(fmt.Sprintf("solve policy has invalid mode: '%s'", m.Solve.Mode), nil))
		}
		if m.Solve.Retry != nil && m.Solve.Retry.Attempts < 0 {
			errs = append(errs, margoerrors.NewValidationError("solve retry attempts cannot be negative", nil))
		}
	}

	return errs
}

// countDistinct returns the number of distinct values in a raw domain list.
func countDistinct(domain []interface{}) int {
	seen := make(map[interface{}]struct{}, len(domain))
	for _, v := range domain {
		seen[v] = struct{}{}
	}
	return len(seen)
}
