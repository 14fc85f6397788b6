// Package num provides arithmetic that is generic over the plain and
// differentiable scalar types used by the estimation core. Residual code is
// written once against Scalar and evaluated with float64 for value passes and
// dual.Number for forward-mode Jacobian passes.
package num

import "gonum.org/v1/gonum/num/dual"

// Scalar is the set of numeric types an entity can be evaluated at.
type Scalar interface {
	float64 | dual.Number
}

// FromFloat lifts a plain constant into T. For dual.Number the derivative
// part is zero, so constants never contribute to Jacobians.
func FromFloat[T Scalar](c float64) T {
	var t T
	switch any(t).(type) {
	case float64:
		return any(c).(T)
	case dual.Number:
		return any(dual.Number{Real: c}).(T)
	}
	panic("num: unsupported scalar type")
}

// Real returns the value part of x.
func Real[T Scalar](x T) float64 {
	switch v := any(x).(type) {
	case float64:
		return v
	case dual.Number:
		return v.Real
	}
	panic("num: unsupported scalar type")
}

// Add returns x + y.
func Add[T Scalar](x, y T) T {
	switch a := any(x).(type) {
	case float64:
		return any(a + any(y).(float64)).(T)
	case dual.Number:
		return any(dual.Add(a, any(y).(dual.Number))).(T)
	}
	panic("num: unsupported scalar type")
}

// Sub returns x - y.
func Sub[T Scalar](x, y T) T {
	switch a := any(x).(type) {
	case float64:
		return any(a - any(y).(float64)).(T)
	case dual.Number:
		return any(dual.Sub(a, any(y).(dual.Number))).(T)
	}
	panic("num: unsupported scalar type")
}

// Mul returns x * y.
func Mul[T Scalar](x, y T) T {
	switch a := any(x).(type) {
	case float64:
		return any(a * any(y).(float64)).(T)
	case dual.Number:
		return any(dual.Mul(a, any(y).(dual.Number))).(T)
	}
	panic("num: unsupported scalar type")
}

// Scale returns c * x for a plain constant c.
func Scale[T Scalar](c float64, x T) T {
	switch a := any(x).(type) {
	case float64:
		return any(c * a).(T)
	case dual.Number:
		return any(dual.Mul(dual.Number{Real: c}, a)).(T)
	}
	panic("num: unsupported scalar type")
}
