package query_test

import (
	"testing"

	"github.com/margo-labs/margo/internal/factor"
	"github.com/margo-labs/margo/internal/query"
	"github.com/margo-labs/margo/internal/solver"
	"github.com/margo-labs/margo/internal/variable"
	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

// twoCoinProblem builds the canonical two-variable example: binary A and B
// with a single table over (A, B) carrying weights 1, 3, 2, 4. Its exact
// marginal on A is [0.4, 0.6] and its normalized joint is
// [0.1, 0.3, 0.2, 0.4].
func twoCoinProblem(t *testing.T) (*solver.Problem, *variable.Variable, *variable.Variable) {
	t.Helper()
	a := variable.MustNew("A", 0, 1)
	b := variable.MustNew("B", 0, 1)
	fab, err := factor.New([]*variable.Variable{a, b}, []float64{1, 3, 2, 4})
	require.NoError(t, err)
	return &solver.Problem{
		Name:      "two_coin",
		Variables: []*variable.Variable{a, b},
		Factors:   []*factor.Table{fab},
	}, a, b
}

func solvedQuerier(t *testing.T, p *solver.Problem, targets ...query.Target) *query.Querier {
	t.Helper()
	q := query.New(p, targets...)
	q.ProcessSolutions(solver.Solve(p))
	return q
}

func TestDistribution_WorkedExample(t *testing.T) {
	p, a, _ := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a))

	samples, err := q.Distribution(query.NewTarget(a))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, 0, samples[0].Value)
	assert.InDelta(t, 0.4, samples[0].Probability, epsilon)
	assert.Equal(t, 1, samples[1].Value)
	assert.InDelta(t, 0.6, samples[1].Probability, epsilon)
}

func TestDistribution_ProbabilitiesSumToOne(t *testing.T) {
	p, a, b := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b))

	for _, target := range q.Targets() {
		samples, err := q.Distribution(target)
		require.NoError(t, err)
		total := 0.0
		for _, s := range samples {
			total += s.Probability
		}
		assert.InDelta(t, 1.0, total, epsilon)
	}
}

func TestDistribution_StableAcrossRepeatedCalls(t *testing.T) {
	p, a, _ := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a))

	first, err := q.Distribution(query.NewTarget(a))
	require.NoError(t, err)
	second, err := q.Distribution(query.NewTarget(a))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDistribution_BeforeAnySolveIsRejected(t *testing.T) {
	p, a, _ := twoCoinProblem(t)
	q := query.New(p, query.NewTarget(a))

	_, err := q.Distribution(query.NewTarget(a))
	require.Error(t, err)
	assert.True(t, margoerrors.IsMultipleScenarios(err))
}

func TestDistribution_UnresolvedTargetIsRejectedFirst(t *testing.T) {
	a := variable.MustNew("A", "yes", "no", variable.Unresolved)
	fa, err := factor.New([]*variable.Variable{a}, []float64{2, 3, 5})
	require.NoError(t, err)
	p := &solver.Problem{Name: "open", Variables: []*variable.Variable{a}, Factors: []*factor.Table{fa}}

	// Even on a cold cache the support check must fire, not the scenario
	// count check.
	q := query.New(p, query.NewTarget(a))
	_, err = q.Distribution(query.NewTarget(a))
	require.Error(t, err)
	assert.True(t, margoerrors.IsUnresolvedSupport(err))
	assert.False(t, margoerrors.IsMultipleScenarios(err))

	q.ProcessSolutions(solver.Solve(p))
	_, err = q.Distribution(query.NewTarget(a))
	require.Error(t, err)
	assert.True(t, margoerrors.IsUnresolvedSupport(err))
}

func TestDistribution_MultipleScenariosRejected(t *testing.T) {
	// B is fully resolved but shares a problem with unresolved A, so the
	// cache holds the lower and upper scenarios.
	a := variable.MustNew("A", "yes", "no", variable.Unresolved)
	b := variable.MustNew("B", 0, 1)
	fa, err := factor.New([]*variable.Variable{a}, []float64{2, 3, 5})
	require.NoError(t, err)
	fb, err := factor.New([]*variable.Variable{b}, []float64{1, 1})
	require.NoError(t, err)
	p := &solver.Problem{Name: "mixed", Variables: []*variable.Variable{a, b}, Factors: []*factor.Table{fa, fb}}

	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b))
	_, err = q.Distribution(query.NewTarget(b))
	require.Error(t, err)
	assert.True(t, margoerrors.IsMultipleScenarios(err))

	var mse *margoerrors.MultipleScenariosError
	require.ErrorAs(t, err, &mse)
	assert.Equal(t, []string{"lower", "upper"}, mse.Scenarios)
}

func TestDistribution_ZeroMassRejected(t *testing.T) {
	a := variable.MustNew("A", 0, 1)
	fa, err := factor.New([]*variable.Variable{a}, []float64{0, 0})
	require.NoError(t, err)
	p := &solver.Problem{Name: "void", Variables: []*variable.Variable{a}, Factors: []*factor.Table{fa}}

	q := solvedQuerier(t, p, query.NewTarget(a))
	_, err = q.Distribution(query.NewTarget(a))
	require.Error(t, err)
	assert.True(t, margoerrors.IsZeroMass(err))
}

func TestDistribution_UnconfiguredTarget(t *testing.T) {
	p, a, b := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a))

	_, err := q.Distribution(query.NewTarget(b))
	assert.Error(t, err)
}

func TestExpectation_NumericIdentity(t *testing.T) {
	p, a, _ := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a))

	value, err := q.Expectation(query.NewTarget(a), func(v interface{}) float64 {
		return float64(v.(int))
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, value, epsilon)
}

func TestExpectation_IndicatorMatchesMarginal(t *testing.T) {
	// The expectation of the indicator of a value must equal that value's
	// marginal probability.
	p, a, b := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b))

	for _, target := range q.Targets() {
		samples, err := q.Distribution(target)
		require.NoError(t, err)
		for _, s := range samples {
			want := s.Probability
			indicator := func(v interface{}) float64 {
				if v == s.Value {
					return 1
				}
				return 0
			}
			got, err := q.Expectation(target, indicator)
			require.NoError(t, err)
			assert.InDelta(t, want, got, epsilon)
		}
	}
}

func TestExpectation_PropagatesValidationErrors(t *testing.T) {
	a := variable.MustNew("A", "yes", "no", variable.Unresolved)
	fa, err := factor.New([]*variable.Variable{a}, []float64{1, 1, 1})
	require.NoError(t, err)
	p := &solver.Problem{Name: "open", Variables: []*variable.Variable{a}, Factors: []*factor.Table{fa}}

	q := solvedQuerier(t, p, query.NewTarget(a))
	_, err = q.Expectation(query.NewTarget(a), func(interface{}) float64 { return 0 })
	require.Error(t, err)
	assert.True(t, margoerrors.IsUnresolvedSupport(err))
}

func TestJoint_WorkedExample(t *testing.T) {
	p, a, b := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b))

	ordering, samples, err := q.Joint(query.NewTarget(a), query.NewTarget(b))
	require.NoError(t, err)
	require.Len(t, ordering, 2)
	require.Len(t, samples, 4)

	assert.Equal(t, "A", ordering[0].Name)
	assert.Equal(t, "B", ordering[1].Name)

	want := []struct {
		values []interface{}
		prob   float64
	}{
		{[]interface{}{0, 0}, 0.1},
		{[]interface{}{0, 1}, 0.3},
		{[]interface{}{1, 0}, 0.2},
		{[]interface{}{1, 1}, 0.4},
	}
	for i, w := range want {
		assert.Equal(t, w.values, samples[i].Values)
		assert.InDelta(t, w.prob, samples[i].Probability, epsilon)
	}
}

func TestJoint_RequestOrderDoesNotChangeResult(t *testing.T) {
	p, a, b := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b))

	fwdOrdering, fwdSamples, err := q.Joint(query.NewTarget(a), query.NewTarget(b))
	require.NoError(t, err)
	revOrdering, revSamples, err := q.Joint(query.NewTarget(b), query.NewTarget(a))
	require.NoError(t, err)

	// Tuples come back in table-native order either way; the reconciliation
	// list is sorted by tuple position and so is identical too.
	assert.Equal(t, fwdOrdering, revOrdering)
	assert.Equal(t, fwdSamples, revSamples)
}

func TestJoint_ReconciliationIndicesAscend(t *testing.T) {
	a := variable.MustNew("A", 0, 1)
	b := variable.MustNew("B", 0, 1)
	c := variable.MustNew("C", 0, 1)
	fabc, err := factor.New([]*variable.Variable{a, b, c}, []float64{1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	p := &solver.Problem{Name: "tri", Variables: []*variable.Variable{a, b, c}, Factors: []*factor.Table{fabc}}

	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b), query.NewTarget(c))
	ordering, _, err := q.Joint(query.NewTarget(c), query.NewTarget(a))
	require.NoError(t, err)
	require.Len(t, ordering, 2)
	assert.Equal(t, "A", ordering[0].Name)
	assert.Equal(t, "C", ordering[1].Name)
	assert.Less(t, ordering[0].Index, ordering[1].Index)
}

func TestJoint_PreservesCorrelation(t *testing.T) {
	// A and B are perfectly correlated; the product of marginals would put
	// mass on the off-diagonal, the joint must not.
	a := variable.MustNew("A", 0, 1)
	b := variable.MustNew("B", 0, 1)
	fab, err := factor.New([]*variable.Variable{a, b}, []float64{1, 0, 0, 1})
	require.NoError(t, err)
	p := &solver.Problem{Name: "mirror", Variables: []*variable.Variable{a, b}, Factors: []*factor.Table{fab}}

	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b))
	_, samples, err := q.Joint(query.NewTarget(a), query.NewTarget(b))
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.InDelta(t, 0.5, samples[0].Probability, epsilon) // (0,0)
	assert.InDelta(t, 0.0, samples[1].Probability, epsilon) // (0,1)
	assert.InDelta(t, 0.0, samples[2].Probability, epsilon) // (1,0)
	assert.InDelta(t, 0.5, samples[3].Probability, epsilon) // (1,1)
}

func TestJoint_SingleTargetMatchesDistribution(t *testing.T) {
	p, a, _ := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a))

	dist, err := q.Distribution(query.NewTarget(a))
	require.NoError(t, err)
	_, joint, err := q.Joint(query.NewTarget(a))
	require.NoError(t, err)
	require.Len(t, joint, len(dist))
	for i := range dist {
		assert.InDelta(t, dist[i].Probability, joint[i].Probability, epsilon)
		assert.Equal(t, dist[i].Value, joint[i].Values[0])
	}
}

func TestJoint_ZeroMass(t *testing.T) {
	a := variable.MustNew("A", 0, 1)
	fa, err := factor.New([]*variable.Variable{a}, []float64{0, 0})
	require.NoError(t, err)
	p := &solver.Problem{Name: "void", Variables: []*variable.Variable{a}, Factors: []*factor.Table{fa}}

	q := solvedQuerier(t, p, query.NewTarget(a))
	_, _, err = q.Joint(query.NewTarget(a))
	require.Error(t, err)
	assert.True(t, margoerrors.IsZeroMass(err))
}

func TestJoint_NoTargets(t *testing.T) {
	p, a, _ := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a))

	_, _, err := q.Joint()
	assert.Error(t, err)
}

func TestProcessSolutions_ReplacesSnapshotAtomically(t *testing.T) {
	p, a, _ := twoCoinProblem(t)
	target := query.NewTarget(a)
	q := query.New(p, target)

	q.ProcessSolutions(solver.Solve(p))
	first, err := q.Distribution(target)
	require.NoError(t, err)

	// A second pass over the same problem must land on the same answer.
	q.ProcessSolutions(solver.Solve(p))
	second, err := q.Distribution(target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarginalConsistency_AgainstJoint(t *testing.T) {
	// Summing the joint over B must reproduce the marginal on A.
	p, a, b := twoCoinProblem(t)
	q := solvedQuerier(t, p, query.NewTarget(a), query.NewTarget(b))

	dist, err := q.Distribution(query.NewTarget(a))
	require.NoError(t, err)
	ordering, samples, err := q.Joint(query.NewTarget(a), query.NewTarget(b))
	require.NoError(t, err)

	aSlot := -1
	for i, pos := range ordering {
		if pos.Name == "A" {
			aSlot = i
		}
	}
	require.NotEqual(t, -1, aSlot)

	sums := make(map[interface{}]float64)
	for _, s := range samples {
		sums[s.Values[ordering[aSlot].Index]] += s.Probability
	}
	for _, d := range dist {
		assert.InDelta(t, d.Probability, sums[d.Value], epsilon)
	}
}
