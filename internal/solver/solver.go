// Package solver turns a compiled problem (variables plus factor tables)
// into scenario-keyed solutions ready for the query layer. A fully resolved
// problem solves under a single exact scenario. A problem with unresolved
// support cannot be answered exactly, so it solves twice, under a lower and
// an upper approximation regime: the lower scenario drops all mass involving
// unresolved members, the upper scenario keeps it in full. The two factor
// sets bracket the true distribution.
package solver

import (
	"sort"

	"github.com/margo-labs/margo/internal/factor"
	"github.com/margo-labs/margo/internal/variable"
)

// Scenario tags one mutually exclusive approximation regime under which a
// solution was computed.
type Scenario string

const (
	// ScenarioExact is the sole scenario of a problem solved without
	// approximation.
	ScenarioExact Scenario = "exact"
	// ScenarioLower is the regime in which mass on unresolved support is
	// dropped.
	ScenarioLower Scenario = "lower"
	// ScenarioUpper is the regime in which mass on unresolved support is
	// kept in full.
	ScenarioUpper Scenario = "upper"
)

// Problem is the input to solving: the model's variables and its factor
// set. Read-only once handed to Solve.
type Problem struct {
	Name      string
	Variables []*variable.Variable
	Factors   []*factor.Table
}

// Solution is the factor set produced by solving one scenario, plus
// auxiliary structure the query layer ignores.
type Solution struct {
	Factors []*factor.Table
	// Aux carries solver-internal metadata (table counts, regime notes).
	// The query layer treats it as opaque.
	Aux map[string]interface{}
}

// HasUnresolvedSupport reports whether any variable of the problem carries
// the unresolved sentinel in its domain.
func (p *Problem) HasUnresolvedSupport() bool {
	for _, v := range p.Variables {
		if v.HasUnresolved() {
			return true
		}
	}
	return false
}

// Solve produces the scenario-keyed solution store for a problem. The
// result is deterministic: identical input yields value-identical factor
// sets. Factors are never mutated; scenario regimes are applied by mapping
// into fresh tables.
func Solve(p *Problem) map[Scenario]*Solution {
	if !p.HasUnresolvedSupport() {
		return map[Scenario]*Solution{
			ScenarioExact: newSolution(p.Factors, string(ScenarioExact)),
		}
	}
	return map[Scenario]*Solution{
		ScenarioLower: newSolution(dropUnresolvedMass(p.Factors), string(ScenarioLower)),
		ScenarioUpper: newSolution(p.Factors, string(ScenarioUpper)),
	}
}

func newSolution(factors []*factor.Table, regime string) *Solution {
	return &Solution{
		Factors: append([]*factor.Table(nil), factors...),
		Aux: map[string]interface{}{
			"regime":      regime,
			"table_count": len(factors),
		},
	}
}

// dropUnresolvedMass zeroes every table entry whose index tuple assigns an
// unresolved value to any variable, producing the lower-bound factor set.
func dropUnresolvedMass(factors []*factor.Table) []*factor.Table {
	out := make([]*factor.Table, len(factors))
	for i, f := range factors {
		out[i] = zeroUnresolvedRows(f)
	}
	return out
}

func zeroUnresolvedRows(f *factor.Table) *factor.Table {
	vars := f.Variables()
	unresolvedAt := make([]int, 0, len(vars))
	for i, v := range vars {
		if v.HasUnresolved() {
			unresolvedAt = append(unresolvedAt, i)
		}
	}
	if len(unresolvedAt) == 0 {
		return f
	}
	weights := make([]float64, 0, f.Size())
	f.Each(func(idx []int, w float64) bool {
		masked := w
		for _, i := range unresolvedAt {
			if vars[i].ValueAt(idx[i]) == variable.Unresolved {
				masked = 0
				break
			}
		}
		weights = append(weights, masked)
		return true
	})
	masked, err := factor.New(vars, weights)
	if err != nil {
		// New only fails on malformed input; f is already well-formed.
		panic(err)
	}
	return masked
}

// Scenarios returns the sorted scenario keys of a solution store, for
// stable logging and error messages.
func Scenarios(solutions map[Scenario]*Solution) []string {
	keys := make([]string, 0, len(solutions))
	for s := range solutions {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)
	return keys
}
