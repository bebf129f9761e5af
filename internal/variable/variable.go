// Package variable defines the discrete random variables a margo model
// ranges over. A variable is immutable once constructed: its name and its
// ordered domain of distinguishable values never change. A domain may
// additionally contain the Unresolved sentinel, which marks values collapsed
// by upstream pruning; such a variable cannot be answered as a point
// distribution and point queries against it are rejected by the query layer.
package variable

import (
	"fmt"
	"strings"
)

// unresolved is the unexported type behind the Unresolved sentinel. Using a
// dedicated type (rather than a magic string) makes collisions with user
// domain values impossible.
type unresolved struct{}

func (unresolved) String() string { return "<unresolved>" }

// Unresolved is the sentinel domain member representing outcomes whose
// identity was collapsed during upstream pruning. A variable whose domain
// contains Unresolved reports HasUnresolved() == true.
var Unresolved = unresolved{}

// Variable identifies one discrete random quantity together with its ordered
// domain of possible values. Instances are immutable; all accessors are safe
// for concurrent use.
type Variable struct {
	name         string
	domain       []interface{}
	index        map[interface{}]int
	hasUnresolved bool
}

// New constructs a Variable with the given name and domain. The domain is
// deduplicated preserving first-occurrence order. An empty name or an empty
// (post-deduplication) domain is rejected.
func New(name string, domain []interface{}) (*Variable, error) {
	if name == "" {
		return nil, fmt.Errorf("variable name cannot be empty")
	}
	if len(domain) == 0 {
		return nil, fmt.Errorf("variable '%s' must have a non-empty domain", name)
	}
	v := &Variable{
		name:   name,
		domain: make([]interface{}, 0, len(domain)),
		index:  make(map[interface{}]int, len(domain)),
	}
	for _, val := range domain {
		if _, seen := v.index[val]; seen {
			continue
		}
		v.index[val] = len(v.domain)
		v.domain = append(v.domain, val)
		if _, ok := val.(unresolved); ok {
			v.hasUnresolved = true
		}
	}
	return v, nil
}

// MustNew is a constructor for statically known-good variables, primarily in
// tests. It panics on the errors New reports.
func MustNew(name string, domain ...interface{}) *Variable {
	v, err := New(name, domain)
	if err != nil {
		panic(err)
	}
	return v
}

// Name returns the variable's identifier.
func (v *Variable) Name() string { return v.name }

// Cardinality returns the number of distinct domain values, including the
// Unresolved sentinel when present.
func (v *Variable) Cardinality() int { return len(v.domain) }

// Domain returns a copy of the ordered domain.
func (v *Variable) Domain() []interface{} {
	out := make([]interface{}, len(v.domain))
	copy(out, v.domain)
	return out
}

// ValueAt returns the domain value at position i. The position must be in
// range; the factor layer only produces in-range indices.
func (v *Variable) ValueAt(i int) interface{} {
	if i < 0 || i >= len(v.domain) {
		panic(fmt.Sprintf("variable '%s': domain index %d out of range [0,%d)", v.name, i, len(v.domain)))
	}
	return v.domain[i]
}

// IndexOf returns the domain position of val and whether it is a member.
func (v *Variable) IndexOf(val interface{}) (int, bool) {
	i, ok := v.index[val]
	return i, ok
}

// HasUnresolved reports whether the domain contains the Unresolved sentinel.
func (v *Variable) HasUnresolved() bool { return v.hasUnresolved }

// String renders the variable as name{v1,v2,...} for logs and errors.
func (v *Variable) String() string {
	parts := make([]string, len(v.domain))
	for i, val := range v.domain {
		parts[i] = fmt.Sprintf("%v", val)
	}
	return fmt.Sprintf("%s{%s}", v.name, strings.Join(parts, ","))
}
