package num

// Vec3 is a three-component vector over a Scalar type. Measurements and
// entity evaluations in this module are all 3-vectors.
type Vec3[T Scalar] [3]T

// Vec3FromFloats lifts plain components into a Vec3 of T.
func Vec3FromFloats[T Scalar](x, y, z float64) Vec3[T] {
	return Vec3[T]{FromFloat[T](x), FromFloat[T](y), FromFloat[T](z)}
}

// Reals returns the value parts of v.
func (v Vec3[T]) Reals() [3]float64 {
	return [3]float64{Real(v[0]), Real(v[1]), Real(v[2])}
}

// AddVec returns x + y componentwise.
func AddVec[T Scalar](x, y Vec3[T]) Vec3[T] {
	return Vec3[T]{Add(x[0], y[0]), Add(x[1], y[1]), Add(x[2], y[2])}
}

// SubVec returns x - y componentwise.
func SubVec[T Scalar](x, y Vec3[T]) Vec3[T] {
	return Vec3[T]{Sub(x[0], y[0]), Sub(x[1], y[1]), Sub(x[2], y[2])}
}

// ScaleVec returns s * x with a generic scalar s.
func ScaleVec[T Scalar](s T, x Vec3[T]) Vec3[T] {
	return Vec3[T]{Mul(s, x[0]), Mul(s, x[1]), Mul(s, x[2])}
}

// ScaleVecFloat returns c * x with a plain constant c.
func ScaleVecFloat[T Scalar](c float64, x Vec3[T]) Vec3[T] {
	return Vec3[T]{Scale(c, x[0]), Scale(c, x[1]), Scale(c, x[2])}
}
