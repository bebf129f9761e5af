package query

import "fmt"

// TypedSample is a Sample whose value has been narrowed to a concrete
// domain value type at the query boundary.
type TypedSample[T any] struct {
	Probability float64
	Value       T
}

// TypedSamples narrows a point distribution to a concrete value type. The
// engine itself only manipulates index tuples and opaque values; callers
// that declared a variable over a homogeneous domain use this at the
// boundary to get typed results back. A value of the wrong dynamic type is
// an error, not a silent skip.
func TypedSamples[T any](samples []Sample) ([]TypedSample[T], error) {
	out := make([]TypedSample[T], len(samples))
	for i, s := range samples {
		v, ok := s.Value.(T)
		if !ok {
			return nil, fmt.Errorf("sample %d holds %T, not the requested value type", i, s.Value)
		}
		out[i] = TypedSample[T]{Probability: s.Probability, Value: v}
	}
	return out, nil
}

// ExpectationOf computes an expectation with a typed payoff function,
// narrowing each value before applying f.
func ExpectationOf[T any](samples []Sample, f func(T) float64) (float64, error) {
	typed, err := TypedSamples[T](samples)
	if err != nil {
		return 0, err
	}
	expectation := 0.0
	for _, s := range typed {
		expectation += s.Probability * f(s.Value)
	}
	return expectation, nil
}
