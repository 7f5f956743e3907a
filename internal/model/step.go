package model

import (
	"fmt"
	"sort"
)

// StepFunction is a right-continuous step function: it takes Y[i] on
// [X[i], X[i+1]) and Y[n-1] from X[n-1] on.
type StepFunction struct {
	X []float64
	Y []float64
}

// At evaluates the function. Before the first breakpoint a survivor
// function is 1.
func (f StepFunction) At(x float64) float64 {
	// first index with X[i] > x
	i := sort.Search(len(f.X), func(i int) bool { return f.X[i] > x })
	if i == 0 {
		return 1
	}
	return f.Y[i-1]
}

// Validate checks the survivor function shape: strictly increasing
// breakpoints and non-increasing probabilities in [0, 1].
func (f StepFunction) Validate() error {
	if len(f.X) != len(f.Y) {
		return fmt.Errorf("%d breakpoints and %d values", len(f.X), len(f.Y))
	}
	for i := range f.X {
		if f.Y[i] < 0 || f.Y[i] > 1 {
			return fmt.Errorf("value %d out of [0,1]: %v", i, f.Y[i])
		}
		if i == 0 {
			continue
		}
		if f.X[i] <= f.X[i-1] {
			return fmt.Errorf("breakpoints not increasing at %d", i)
		}
		if f.Y[i] > f.Y[i-1] {
			return fmt.Errorf("values increase at %d", i)
		}
	}
	return nil
}

func (f StepFunction) Len() int {
	return len(f.X)
}
