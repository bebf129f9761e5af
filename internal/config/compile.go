package config

import (
	"fmt"

	"github.com/margo-labs/margo/internal/factor"
	"github.com/margo-labs/margo/internal/query"
	"github.com/margo-labs/margo/internal/solver"
	"github.com/margo-labs/margo/internal/variable"
	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
)

// Compiled is a validated model lowered into solver and query values.
type Compiled struct {
	Problem *solver.Problem
	// Targets is the ordered query target list the engine tracks.
	Targets []query.Target
	// TargetByName resolves query specs to targets.
	TargetByName map[string]query.Target
	// VariableByName resolves joint query members, which may name any
	// declared variable rather than only tracked targets.
	VariableByName map[string]*variable.Variable
}

// Compile lowers a validated Model into a solver.Problem and the query
// target list. Compile assumes ValidateModelStructure passed; it still
// reports an error for anything it cannot lower rather than panicking.
func Compile(m *Model) (*Compiled, error) {
	vars := make([]*variable.Variable, 0, len(m.Variables))
	byName := make(map[string]*variable.Variable, len(m.Variables))
	for _, spec := range m.Variables {
		domain := append([]interface{}(nil), spec.Domain...)
		if spec.Unresolved {
			domain = append(domain, variable.Unresolved)
		}
		v, err := variable.New(spec.Name, domain)
		if err != nil {
			return nil, margoerrors.NewValidationError(fmt.Sprintf("variable '%s'", spec.Name), err)
		}
		vars = append(vars, v)
		byName[spec.Name] = v
	}

	factors := make([]*factor.Table, 0, len(m.Factors))
	for i, spec := range m.Factors {
		fvars := make([]*variable.Variable, len(spec.Variables))
		for j, name := range spec.Variables {
			v, ok := byName[name]
			if !ok {
				return nil, margoerrors.NewValidationError(fmt.Sprintf("factor %d references undeclared variable '%s'", i, name), nil)
			}
			fvars[j] = v
		}
		table, err := factor.New(fvars, spec.Weights)
		if err != nil {
			return nil, margoerrors.NewValidationError(fmt.Sprintf("factor %d", i), err)
		}
		factors = append(factors, table)
	}

	targetNames := m.Targets
	if len(targetNames) == 0 {
		targetNames = make([]string, len(m.Variables))
		for i, spec := range m.Variables {
			targetNames[i] = spec.Name
		}
	}
	targets := make([]query.Target, 0, len(targetNames))
	targetByName := make(map[string]query.Target, len(targetNames))
	for _, name := range targetNames {
		v, ok := byName[name]
		if !ok {
			return nil, margoerrors.NewValidationError(fmt.Sprintf("target '%s' references undeclared variable", name), nil)
		}
		t := query.NewTarget(v)
		targets = append(targets, t)
		targetByName[name] = t
	}

	return &Compiled{
		Problem: &solver.Problem{
			Name:      m.Name,
			Variables: vars,
			Factors:   factors,
		},
		Targets:        targets,
		TargetByName:   targetByName,
		VariableByName: byName,
	}, nil
}

// PayoffFunc builds the payoff function of an expectation query. Explicit
// payoff entries take precedence; without them every domain value must be
// numeric and scores itself. Coverage is checked up front so the returned
// function is total over the target's domain.
func PayoffFunc(q *QuerySpec, target query.Target) (func(value interface{}) float64, error) {
	domain := target.Variable().Domain()

	if len(q.Payoff) > 0 {
		scores := make(map[interface{}]float64, len(q.Payoff))
		for _, entry := range q.Payoff {
			scores[entry.Value] = entry.Score
		}
		for _, v := range domain {
			if v == variable.Unresolved {
				continue
			}
			if _, ok := scores[v]; !ok {
				return nil, margoerrors.NewValidationError(fmt.Sprintf("query '%s': payoff does not cover domain value %v of '%s'", q.Name, v, target.Name()), nil)
			}
		}
		return func(value interface{}) float64 { return scores[value] }, nil
	}

	for _, v := range domain {
		if v == variable.Unresolved {
			continue
		}
		if _, ok := asFloat(v); !ok {
			return nil, margoerrors.NewValidationError(fmt.Sprintf("query '%s': domain value %v of '%s' is not numeric; provide an explicit payoff", q.Name, v, target.Name()), nil)
		}
	}
	return func(value interface{}) float64 {
		f, _ := asFloat(value)
		return f
	}, nil
}

// asFloat widens the numeric types the YAML decoder produces.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
