package entity

import "fmt"

// RangeError reports a requested time outside an entity's supported span.
type RangeError struct {
	Time     float64
	Min, Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("time %g outside supported range [%g, %g]", e.Time, e.Min, e.Max)
}

// SizeMismatchError reports a parameter buffer whose layout does not match
// the Meta it is being mapped with.
type SizeMismatchError struct {
	What string
	Want int
	Got  int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", e.What, e.Want, e.Got)
}
