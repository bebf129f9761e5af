package factor_test

import (
	"testing"

	"github.com/margo-labs/margo/internal/factor"
	"github.com/margo-labs/margo/internal/variable"
	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func mustTable(t *testing.T, vars []*variable.Variable, weights []float64) *factor.Table {
	t.Helper()
	table, err := factor.New(vars, weights)
	require.NoError(t, err)
	return table
}

func TestNew_ValidatesShape(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", "x", "y", "z")

	_, err := factor.New([]*variable.Variable{a, b}, []float64{1, 2, 3})
	assert.Error(t, err, "weight count must equal the domain product")

	_, err = factor.New([]*variable.Variable{a, a}, []float64{1, 2, 3, 4})
	assert.Error(t, err, "a variable may appear only once per table")

	_, err = factor.New([]*variable.Variable{a}, []float64{1, -2})
	assert.Error(t, err, "weights must be non-negative")

	table, err := factor.New([]*variable.Variable{a, b}, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 6, table.Size())
}

func TestWeight_RowMajorLayout(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", "x", "y", "z")
	table := mustTable(t, []*variable.Variable{a, b}, []float64{1, 2, 3, 4, 5, 6})

	// Last variable varies fastest.
	assert.Equal(t, 1.0, table.Weight([]int{0, 0}))
	assert.Equal(t, 3.0, table.Weight([]int{0, 2}))
	assert.Equal(t, 4.0, table.Weight([]int{1, 0}))
	assert.Equal(t, 6.0, table.Weight([]int{1, 2}))
}

func TestEach_VisitsFullIndexSpaceInOrder(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1)
	table := mustTable(t, []*variable.Variable{a, b}, []float64{1, 2, 3, 4})

	var visited [][]int
	var weights []float64
	table.Each(func(idx []int, w float64) bool {
		visited = append(visited, append([]int(nil), idx...))
		weights = append(weights, w)
		return true
	})

	assert.Equal(t, [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}, visited)
	assert.Equal(t, []float64{1, 2, 3, 4}, weights)
}

func TestCombine_SharedVariable(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1)

	fa := mustTable(t, []*variable.Variable{a}, []float64{2, 3})
	fab := mustTable(t, []*variable.Variable{a, b}, []float64{1, 2, 3, 4})

	joint := fa.Combine(fab)
	require.Equal(t, []*variable.Variable{a, b}, joint.Variables())
	assert.InDelta(t, 2.0, joint.Weight([]int{0, 0}), epsilon)
	assert.InDelta(t, 4.0, joint.Weight([]int{0, 1}), epsilon)
	assert.InDelta(t, 9.0, joint.Weight([]int{1, 0}), epsilon)
	assert.InDelta(t, 12.0, joint.Weight([]int{1, 1}), epsilon)
}

func TestCombine_DisjointVariablesFormProduct(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1)

	fa := mustTable(t, []*variable.Variable{a}, []float64{1, 3})
	fb := mustTable(t, []*variable.Variable{b}, []float64{2, 4})

	joint := fa.Combine(fb)
	require.Equal(t, []*variable.Variable{a, b}, joint.Variables())
	assert.InDelta(t, 2.0, joint.Weight([]int{0, 0}), epsilon)
	assert.InDelta(t, 4.0, joint.Weight([]int{0, 1}), epsilon)
	assert.InDelta(t, 6.0, joint.Weight([]int{1, 0}), epsilon)
	assert.InDelta(t, 12.0, joint.Weight([]int{1, 1}), epsilon)
}

func TestCombine_IsCommutativeInValue(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1, 2)

	fa := mustTable(t, []*variable.Variable{a}, []float64{2, 5})
	fb := mustTable(t, []*variable.Variable{b, a}, []float64{1, 2, 3, 4, 5, 6})

	left := fa.Combine(fb)
	right := fb.Combine(fa)

	// Variable order differs but mass per assignment must agree.
	idx := make([]int, 2)
	for ai := 0; ai < 2; ai++ {
		for bi := 0; bi < 3; bi++ {
			idx[0], idx[1] = ai, bi
			lw := left.Weight(idx)
			idx[0], idx[1] = bi, ai
			rw := right.Weight(idx)
			assert.InDelta(t, lw, rw, epsilon)
		}
	}
}

func TestIdentity_IsCombineNeutral(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	fa := mustTable(t, []*variable.Variable{a}, []float64{2, 3})

	out := factor.Identity().Combine(fa)
	require.Equal(t, []*variable.Variable{a}, out.Variables())
	assert.InDelta(t, 2.0, out.Weight([]int{0}), epsilon)
	assert.InDelta(t, 3.0, out.Weight([]int{1}), epsilon)

	assert.InDelta(t, 1.0, factor.Identity().Sum(), epsilon)
}

func TestProject_SumsOutDroppedVariables(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1)
	table := mustTable(t, []*variable.Variable{a, b}, []float64{1, 2, 3, 4})

	onA := table.Project(a)
	require.Equal(t, []*variable.Variable{a}, onA.Variables())
	assert.InDelta(t, 3.0, onA.Weight([]int{0}), epsilon)
	assert.InDelta(t, 7.0, onA.Weight([]int{1}), epsilon)

	onB := table.Project(b)
	assert.InDelta(t, 4.0, onB.Weight([]int{0}), epsilon)
	assert.InDelta(t, 6.0, onB.Weight([]int{1}), epsilon)
}

func TestProject_ResultOrderFollowsTableOrder(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1)
	c := variable.MustNew("c", 0, 1)
	table := mustTable(t, []*variable.Variable{a, b, c}, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	// Keep order in the request must not matter.
	out := table.Project(c, a)
	assert.Equal(t, []*variable.Variable{a, c}, out.Variables())
}

func TestProject_PreservesTotalMass(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1, 2)
	table := mustTable(t, []*variable.Variable{a, b}, []float64{1, 2, 3, 4, 5, 6})

	assert.InDelta(t, table.Sum(), table.Project(a).Sum(), epsilon)
	assert.InDelta(t, table.Sum(), table.Project(b).Sum(), epsilon)
}

func TestNormalize(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	table := mustTable(t, []*variable.Variable{a}, []float64{1, 3})

	normalized, err := table.Normalize()
	require.NoError(t, err)
	assert.InDelta(t, 0.25, normalized.Weight([]int{0}), epsilon)
	assert.InDelta(t, 0.75, normalized.Weight([]int{1}), epsilon)
	assert.InDelta(t, 1.0, normalized.Sum(), epsilon)
}

func TestNormalize_ZeroMass(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	table := mustTable(t, []*variable.Variable{a}, []float64{0, 0})

	_, err := table.Normalize()
	require.Error(t, err)
	assert.True(t, margoerrors.IsZeroMass(err))
}

func TestCombineAll(t *testing.T) {
	a := variable.MustNew("a", 0, 1)
	b := variable.MustNew("b", 0, 1)

	fa := mustTable(t, []*variable.Variable{a}, []float64{1, 3})
	fb := mustTable(t, []*variable.Variable{b}, []float64{2, 4})

	joint := factor.CombineAll([]*factor.Table{fa, fb})
	require.Len(t, joint.Variables(), 2)
	assert.InDelta(t, 24.0, joint.Sum(), epsilon)

	empty := factor.CombineAll(nil)
	assert.Equal(t, 1, empty.Size())
	assert.InDelta(t, 1.0, empty.Sum(), epsilon)
}

func TestValuesOf(t *testing.T) {
	a := variable.MustNew("a", "lo", "hi")
	b := variable.MustNew("b", 1, 2)
	table := mustTable(t, []*variable.Variable{a, b}, []float64{1, 2, 3, 4})

	assert.Equal(t, []interface{}{"lo", 2}, table.ValuesOf([]int{0, 1}))
	assert.Equal(t, []interface{}{"hi", 1}, table.ValuesOf([]int{1, 0}))
}
