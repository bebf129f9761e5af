package solver_test

import (
	"testing"

	"github.com/margo-labs/margo/internal/factor"
	"github.com/margo-labs/margo/internal/solver"
	"github.com/margo-labs/margo/internal/variable"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func resolvedProblem(t *testing.T) *solver.Problem {
	t.Helper()
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1)
	fab, err := factor.New([]*variable.Variable{a, b}, []float64{1, 3, 2, 4})
	require.NoError(t, err)
	return &solver.Problem{
		Name:      "resolved",
		Variables: []*variable.Variable{a, b},
		Factors:   []*factor.Table{fab},
	}
}

func unresolvedProblem(t *testing.T) (*solver.Problem, *variable.Variable) {
	t.Helper()
	a := variable.MustNew("a", "yes", "no", variable.Unresolved)
	fa, err := factor.New([]*variable.Variable{a}, []float64{2, 3, 5})
	require.NoError(t, err)
	return &solver.Problem{
		Name:      "unresolved",
		Variables: []*variable.Variable{a},
		Factors:   []*factor.Table{fa},
	}, a
}

func TestSolve_ResolvedProblemYieldsSingleExactScenario(t *testing.T) {
	p := resolvedProblem(t)
	require.False(t, p.HasUnresolvedSupport())

	solutions := solver.Solve(p)
	require.Len(t, solutions, 1)
	sol, ok := solutions[solver.ScenarioExact]
	require.True(t, ok)
	require.Len(t, sol.Factors, 1)
	assert.InDelta(t, 10.0, sol.Factors[0].Sum(), epsilon)
}

func TestSolve_UnresolvedProblemYieldsBoundingScenarios(t *testing.T) {
	p, a := unresolvedProblem(t)
	require.True(t, p.HasUnresolvedSupport())

	solutions := solver.Solve(p)
	require.Len(t, solutions, 2)

	lower, ok := solutions[solver.ScenarioLower]
	require.True(t, ok)
	upper, ok := solutions[solver.ScenarioUpper]
	require.True(t, ok)

	// Lower regime drops the mass of the unresolved member, upper keeps it.
	unresolvedIdx, ok := a.IndexOf(variable.Unresolved)
	require.True(t, ok)
	assert.InDelta(t, 0.0, lower.Factors[0].Weight([]int{unresolvedIdx}), epsilon)
	assert.InDelta(t, 5.0, upper.Factors[0].Weight([]int{unresolvedIdx}), epsilon)

	// Resolved members are untouched in both regimes.
	assert.InDelta(t, 2.0, lower.Factors[0].Weight([]int{0}), epsilon)
	assert.InDelta(t, 2.0, upper.Factors[0].Weight([]int{0}), epsilon)
	assert.InDelta(t, 5.0, lower.Factors[0].Sum(), epsilon)
	assert.InDelta(t, 10.0, upper.Factors[0].Sum(), epsilon)
}

func TestSolve_DoesNotMutateInputFactors(t *testing.T) {
	p, a := unresolvedProblem(t)
	unresolvedIdx, _ := a.IndexOf(variable.Unresolved)

	solver.Solve(p)
	assert.InDelta(t, 5.0, p.Factors[0].Weight([]int{unresolvedIdx}), epsilon)
}

func TestSolve_IsDeterministic(t *testing.T) {
	p, _ := unresolvedProblem(t)

	first := solver.Solve(p)
	second := solver.Solve(p)
	require.Equal(t, solver.Scenarios(first), solver.Scenarios(second))
	for key, sol := range first {
		other := second[key]
		require.Len(t, other.Factors, len(sol.Factors))
		for i := range sol.Factors {
			assert.InDelta(t, sol.Factors[i].Sum(), other.Factors[i].Sum(), epsilon)
		}
	}
}

func TestScenarios_SortedKeys(t *testing.T) {
	p, _ := unresolvedProblem(t)
	assert.Equal(t, []string{"lower", "upper"}, solver.Scenarios(solver.Solve(p)))

	assert.Equal(t, []string{"exact"}, solver.Scenarios(solver.Solve(resolvedProblem(t))))
}
