// Package query is the materialization and query layer of margo. It
// combines each scenario's solved factor set into a joint table once,
// marginalizes that joint to every configured target, and answers
// point-distribution, expectation and joint queries against the result.
//
// The materialized cache is published as an immutable snapshot behind an
// atomic pointer: a repeating solver may call ProcessSolutions any number
// of times, and readers either see the previous snapshot or the new one,
// never a partially rebuilt state. The package takes no locks of its own.
package query

import (
	"fmt"
	"sync/atomic"

	"github.com/margo-labs/margo/internal/factor"
	"github.com/margo-labs/margo/internal/solver"
	"github.com/margo-labs/margo/internal/variable"
	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
)

// Target is a query handle for one variable the Querier was configured to
// track. Targets are resolved against the problem at construction and never
// change afterwards.
type Target struct {
	v *variable.Variable
}

// NewTarget wraps a variable as a query target.
func NewTarget(v *variable.Variable) Target { return Target{v: v} }

// Variable returns the underlying variable.
func (t Target) Variable() *variable.Variable { return t.v }

// Name returns the underlying variable's name.
func (t Target) Name() string { return t.v.Name() }

// Sample is one (probability, value) pair of a point distribution.
type Sample struct {
	Probability float64
	Value       interface{}
}

// JointSample is one (probability, value tuple) pair of a joint
// distribution. Values are ordered by the joint table's native variable
// order; use the reconciliation list returned alongside to interpret the
// positions.
type JointSample struct {
	Probability float64
	Values      []interface{}
}

// Position reconciles one requested target with its slot in the joint
// result tuples. The reconciliation list is sorted ascending by Index, so
// list position i describes tuple component i.
type Position struct {
	Name   string
	Target Target
	// Index is the target variable's position within the joint table's own
	// variable list.
	Index int
}

// snapshot is one fully materialized cache generation: per scenario, the
// marginal table of every configured target. Snapshots are immutable after
// construction.
type snapshot struct {
	marginals map[solver.Scenario]map[*variable.Variable]*factor.Table
	scenarios []string
}

// Querier answers distribution, expectation and joint queries for a fixed
// target list over a solved problem. The zero value is not usable; construct
// with New. Distribution and Expectation read the materialized cache;
// Joint re-derives its own joint combination from the problem's factor set
// and must only be used on single-scenario problems.
type Querier struct {
	problem *solver.Problem
	targets []Target
	cache   atomic.Pointer[snapshot]
}

// New creates a Querier over a solved problem for the given target list.
// The target list is fixed for the lifetime of the Querier. The cache is
// empty until the first ProcessSolutions call.
func New(problem *solver.Problem, targets ...Target) *Querier {
	q := &Querier{
		problem: problem,
		targets: append([]Target(nil), targets...),
	}
	q.cache.Store(&snapshot{marginals: map[solver.Scenario]map[*variable.Variable]*factor.Table{}})
	return q
}

// Targets returns the configured target list.
func (q *Querier) Targets() []Target { return q.targets }

// ProcessSolutions materializes the per-scenario, per-target marginal cache
// from a scenario-keyed solution store. For each scenario the factor set is
// folded into a single joint table (identity-seeded combine) exactly once,
// and that joint is projected down to each target independently. The new
// cache atomically replaces the previous one; stale marginals are never
// patched in place. Callable repeatedly, e.g. by an anytime solver.
func (q *Querier) ProcessSolutions(solutions map[solver.Scenario]*solver.Solution) {
	next := &snapshot{
		marginals: make(map[solver.Scenario]map[*variable.Variable]*factor.Table, len(solutions)),
		scenarios: solver.Scenarios(solutions),
	}
	for scenario, sol := range solutions {
		joint := factor.CombineAll(sol.Factors)
		perTarget := make(map[*variable.Variable]*factor.Table, len(q.targets))
		for _, t := range q.targets {
			perTarget[t.Variable()] = joint.Project(t.Variable())
		}
		next.marginals[scenario] = perTarget
	}
	q.cache.Store(next)
}

// Distribution answers a point-distribution query for one target. It fails
// with an UnresolvedSupportError when the target's domain contains the
// unresolved sentinel, and with a MultipleScenariosError when the cache
// holds more than one scenario; the support check runs first, and no
// partial computation happens on either failure. A marginal whose total
// mass is zero is reported as a ZeroMassError.
//
// On success the returned samples follow the marginal table's native index
// enumeration order, stable across repeated calls, and their probabilities
// sum to 1 within floating-point tolerance.
func (q *Querier) Distribution(target Target) ([]Sample, error) {
	if target.Variable().HasUnresolved() {
		return nil, margoerrors.NewUnresolvedSupportError(target.Name())
	}
	snap := q.cache.Load()
	if len(snap.marginals) != 1 {
		return nil, margoerrors.NewMultipleScenariosError(snap.scenarios)
	}
	var marginal *factor.Table
	for _, perTarget := range snap.marginals {
		marginal = perTarget[target.Variable()]
	}
	if marginal == nil {
		return nil, fmt.Errorf("target '%s' was not configured on this querier", target.Name())
	}
	total := marginal.Sum()
	if total == 0 {
		return nil, margoerrors.NewZeroMassError(fmt.Sprintf("marginal of target '%s'", target.Name()))
	}
	samples := make([]Sample, 0, marginal.Size())
	marginal.Each(func(idx []int, w float64) bool {
		value, err := marginal.ValueOf(target.Variable(), idx)
		if err != nil {
			// The marginal was projected onto exactly this variable.
			panic(err)
		}
		samples = append(samples, Sample{Probability: w / total, Value: value})
		return true
	})
	return samples, nil
}

// Expectation computes the expected value of f under the target's point
// distribution: the sum of probability * f(value) over all samples. It is a
// pure function of Distribution and performs no additional validation.
func (q *Querier) Expectation(target Target, f func(value interface{}) float64) (float64, error) {
	samples, err := q.Distribution(target)
	if err != nil {
		return 0, err
	}
	expectation := 0.0
	for _, s := range samples {
		expectation += s.Probability * f(s.Value)
	}
	return expectation, nil
}

// Joint answers a multi-variable, order-aware joint distribution query
// directly against the problem's factor set; it does not consult the
// materialized cache. Correlations between the requested targets are
// preserved. The caller must ensure single-scenario use: Joint does not
// check the scenario count.
//
// The returned samples cover the joint table's full index space, including
// zero-weight combinations, with value tuples in the TABLE's native
// variable order. The reconciliation list pairs each requested target with
// its tuple position, sorted ascending by that position; callers must use
// it to interpret tuple components rather than assume request order.
func (q *Querier) Joint(targets ...Target) ([]Position, []JointSample, error) {
	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("joint query needs at least one target")
	}
	vars := make([]*variable.Variable, len(targets))
	for i, t := range targets {
		vars[i] = t.Variable()
	}

	joint := factor.CombineAll(q.problem.Factors).Project(vars...)
	normalized, err := joint.Normalize()
	if err != nil {
		return nil, nil, err
	}

	ordering, err := reconcile(targets, normalized.Variables())
	if err != nil {
		return nil, nil, err
	}

	samples := make([]JointSample, 0, normalized.Size())
	normalized.Each(func(idx []int, w float64) bool {
		samples = append(samples, JointSample{Probability: w, Values: normalized.ValuesOf(idx)})
		return true
	})
	return ordering, samples, nil
}

// reconcile sorts the requested (name, target) pairs by the position of
// each target's variable within the joint table's own variable list. Two
// targets mapping to the same position would mean a duplicate variable
// survived deduplication upstream; that is asserted rather than silently
// mis-mapped.
func reconcile(targets []Target, tableVars []*variable.Variable) ([]Position, error) {
	slot := make(map[*variable.Variable]int, len(tableVars))
	for i, v := range tableVars {
		slot[v] = i
	}
	taken := make(map[int]string, len(targets))
	ordering := make([]Position, 0, len(targets))
	for _, t := range targets {
		i, ok := slot[t.Variable()]
		if !ok {
			return nil, fmt.Errorf("target '%s' is not part of the joint table", t.Name())
		}
		if prev, dup := taken[i]; dup {
			return nil, fmt.Errorf("targets '%s' and '%s' map to the same table position %d", prev, t.Name(), i)
		}
		taken[i] = t.Name()
		ordering = append(ordering, Position{Name: t.Name(), Target: t, Index: i})
	}
	// Insertion sort by Index; target lists are short.
	for i := 1; i < len(ordering); i++ {
		for j := i; j > 0 && ordering[j].Index < ordering[j-1].Index; j-- {
			ordering[j], ordering[j-1] = ordering[j-1], ordering[j]
		}
	}
	return ordering, nil
}
