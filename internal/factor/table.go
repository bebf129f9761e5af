// Package factor implements the weight table algebra the query layer is
// built on. A Table is a non-negative real-valued function over the
// Cartesian product of a tuple of variables' domains, stored densely in
// row-major order. Tables are immutable: every operation returns a new
// Table, which is what lets the query layer publish them in lock-free
// snapshots.
package factor

import (
	"fmt"

	"github.com/margo-labs/margo/internal/variable"
	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
)

// Table is a dense weight table over the Cartesian product of its
// variables' domains. The variable tuple contains no duplicates. Weights
// are laid out row-major: the first variable has the largest stride, the
// last variable stride 1.
type Table struct {
	vars    []*variable.Variable
	strides []int
	weights []float64
}

// Identity returns the multiplicative-identity table: no variables, a
// single entry of weight 1. Combining any table with Identity yields an
// equal table, which makes it the seed for folding factor sets.
func Identity() *Table {
	return &Table{weights: []float64{1}}
}

// New constructs a Table over vars with the given row-major weights.
// It rejects duplicate variables, negative weights, and a weight count
// that does not match the product of the domain cardinalities.
func New(vars []*variable.Variable, weights []float64) (*Table, error) {
	seen := make(map[*variable.Variable]struct{}, len(vars))
	size := 1
	for _, v := range vars {
		if v == nil {
			return nil, fmt.Errorf("factor: nil variable")
		}
		if _, dup := seen[v]; dup {
			return nil, fmt.Errorf("factor: duplicate variable '%s' in table", v.Name())
		}
		seen[v] = struct{}{}
		size *= v.Cardinality()
	}
	if len(weights) != size {
		return nil, fmt.Errorf("factor: got %d weights, table over %d variables needs %d", len(weights), len(vars), size)
	}
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("factor: negative weight %g at entry %d", w, i)
		}
	}
	t := &Table{
		vars:    append([]*variable.Variable(nil), vars...),
		weights: append([]float64(nil), weights...),
	}
	t.strides = stridesFor(t.vars)
	return t, nil
}

// stridesFor computes row-major strides for a variable tuple.
func stridesFor(vars []*variable.Variable) []int {
	strides := make([]int, len(vars))
	acc := 1
	for i := len(vars) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= vars[i].Cardinality()
	}
	return strides
}

// Variables returns the table's own variable ordering. Callers must treat
// the result as read-only.
func (t *Table) Variables() []*variable.Variable { return t.vars }

// Size returns the number of entries in the table.
func (t *Table) Size() int { return len(t.weights) }

// position converts an index tuple (one domain index per table variable)
// into a flat offset.
func (t *Table) position(idx []int) int {
	pos := 0
	for i, stride := range t.strides {
		pos += idx[i] * stride
	}
	return pos
}

// Weight returns the weight stored for the given index tuple.
func (t *Table) Weight(idx []int) float64 {
	if len(idx) != len(t.vars) {
		panic(fmt.Sprintf("factor: index tuple of length %d against table over %d variables", len(idx), len(t.vars)))
	}
	return t.weights[t.position(idx)]
}

// ValueOf translates an index tuple to the concrete domain value it denotes
// for the given variable. The variable must belong to the table.
func (t *Table) ValueOf(v *variable.Variable, idx []int) (interface{}, error) {
	for i, tv := range t.vars {
		if tv == v {
			return v.ValueAt(idx[i]), nil
		}
	}
	return nil, fmt.Errorf("factor: variable '%s' is not part of this table", v.Name())
}

// ValuesOf translates an index tuple to the full tuple of concrete domain
// values, in the table's own variable order.
func (t *Table) ValuesOf(idx []int) []interface{} {
	out := make([]interface{}, len(t.vars))
	for i, v := range t.vars {
		out[i] = v.ValueAt(idx[i])
	}
	return out
}

// Indices enumerates all index tuples of the table in a stable row-major
// order. The enumeration is identical across repeated calls on the same
// table. A zero-variable table yields a single empty tuple.
func (t *Table) Indices() [][]int {
	out := make([][]int, 0, len(t.weights))
	t.Each(func(idx []int, _ float64) bool {
		tuple := append([]int(nil), idx...)
		out = append(out, tuple)
		return true
	})
	return out
}

// Each invokes fn for every entry in row-major order, passing the index
// tuple and its weight. The tuple is reused between invocations; fn must
// copy it if it escapes. Returning false stops the enumeration.
func (t *Table) Each(fn func(idx []int, w float64) bool) {
	idx := make([]int, len(t.vars))
	for pos := range t.weights {
		if !fn(idx, t.weights[pos]) {
			return
		}
		// Advance the tuple like a mixed-radix counter, last variable fastest.
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < t.vars[i].Cardinality() {
				break
			}
			idx[i] = 0
		}
	}
}

// Combine returns the pointwise product of t and o joined on their shared
// variables. The result's variable tuple is t's variables followed by o's
// variables not already present. Combine is commutative up to variable
// order and associative in value, so folding a factor set is independent
// of iteration order.
func (t *Table) Combine(o *Table) *Table {
	joined := append([]*variable.Variable(nil), t.vars...)
	inT := make(map[*variable.Variable]int, len(t.vars))
	for i, v := range t.vars {
		inT[v] = i
	}
	for _, v := range o.vars {
		if _, shared := inT[v]; !shared {
			joined = append(joined, v)
		}
	}

	out := &Table{vars: joined, strides: stridesFor(joined)}
	size := 1
	for _, v := range joined {
		size *= v.Cardinality()
	}
	out.weights = make([]float64, size)

	// Map each joined variable to its slot in t and o (-1 when absent).
	tSlot := slotMap(joined, t.vars)
	oSlot := slotMap(joined, o.vars)
	tIdx := make([]int, len(t.vars))
	oIdx := make([]int, len(o.vars))

	pos := 0
	out.Each(func(idx []int, _ float64) bool {
		for j, slot := range tSlot {
			if slot >= 0 {
				tIdx[slot] = idx[j]
			}
		}
		for j, slot := range oSlot {
			if slot >= 0 {
				oIdx[slot] = idx[j]
			}
		}
		out.weights[pos] = t.weights[t.position(tIdx)] * o.weights[o.position(oIdx)]
		pos++
		return true
	})
	return out
}

// slotMap returns, for each variable in joined, its position within vars,
// or -1 when the variable does not occur there.
func slotMap(joined, vars []*variable.Variable) []int {
	pos := make(map[*variable.Variable]int, len(vars))
	for i, v := range vars {
		pos[v] = i
	}
	out := make([]int, len(joined))
	for i, v := range joined {
		if p, ok := pos[v]; ok {
			out[i] = p
		} else {
			out[i] = -1
		}
	}
	return out
}

// Project sum-marginalizes the table onto the listed variables, summing out
// every variable not listed. The result's variable order follows the
// table's own order restricted to keep, not the order of the keep argument;
// callers needing the request order must reconcile positions themselves.
// Variables in keep that are not part of the table are ignored.
func (t *Table) Project(keep ...*variable.Variable) *Table {
	keepSet := make(map[*variable.Variable]struct{}, len(keep))
	for _, v := range keep {
		keepSet[v] = struct{}{}
	}
	kept := make([]*variable.Variable, 0, len(keep))
	for _, v := range t.vars {
		if _, ok := keepSet[v]; ok {
			kept = append(kept, v)
		}
	}

	out := &Table{vars: kept, strides: stridesFor(kept)}
	size := 1
	for _, v := range kept {
		size *= v.Cardinality()
	}
	out.weights = make([]float64, size)

	keptSlot := slotMap(kept, t.vars) // position of each kept variable in t
	outIdx := make([]int, len(kept))
	t.Each(func(idx []int, w float64) bool {
		for j, slot := range keptSlot {
			outIdx[j] = idx[slot]
		}
		out.weights[out.position(outIdx)] += w
		return true
	})
	return out
}

// Fold reduces all weights with the associative operator op, starting from
// seed.
func (t *Table) Fold(seed float64, op func(acc, w float64) float64) float64 {
	acc := seed
	for _, w := range t.weights {
		acc = op(acc, w)
	}
	return acc
}

// Sum returns the total mass of the table.
func (t *Table) Sum() float64 {
	return t.Fold(0, func(acc, w float64) float64 { return acc + w })
}

// Map returns a new table with f applied to every weight.
func (t *Table) Map(f func(w float64) float64) *Table {
	out := &Table{vars: t.vars, strides: t.strides, weights: make([]float64, len(t.weights))}
	for i, w := range t.weights {
		out.weights[i] = f(w)
	}
	return out
}

// Normalize divides every weight by the table's total mass so that the
// result sums to 1. A zero total mass is reported as a ZeroMassError; the
// division is never performed, so NaN and Inf cannot escape.
func (t *Table) Normalize() (*Table, error) {
	total := t.Sum()
	if total == 0 {
		return nil, margoerrors.NewZeroMassError(fmt.Sprintf("table over %d variables", len(t.vars)))
	}
	return t.Map(func(w float64) float64 { return w / total }), nil
}

// CombineAll folds a factor set into one joint table, seeded with the
// multiplicative identity. An empty set yields Identity(). The fold is
// order-independent in value.
func CombineAll(factors []*Table) *Table {
	joint := Identity()
	for _, f := range factors {
		joint = joint.Combine(f)
	}
	return joint
}
