package dcterrain

import (
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	tolerance = 1e-9
)

// MinFunc is a minimum function for SDF blending.
type MinFunc func(a, b float64) float64

// MaxFunc is a maximum function for SDF blending.
type MaxFunc func(a, b float64) float64

// Clamp x between a and b, assume a <= b
func Clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}

// Solid reports whether a density sample lies inside the volume. Every
// sign read made while building an octree goes through Solid so that zero
// is classified the same way everywhere.
func Solid(density float64) bool {
	return density < 0
}

// Normal3 returns the normal of a density function at a point (doesn't need to be on the surface).
// Computed by central differences inside a box of side 2*eps centered on p.
// If the gradient vanishes the zero vector is returned.
func Normal3(s Evaluator, p r3.Vec, eps float64) r3.Vec {
	g := r3.Vec{
		X: s.Evaluate(r3.Add(p, r3.Vec{X: eps})) - s.Evaluate(r3.Add(p, r3.Vec{X: -eps})),
		Y: s.Evaluate(r3.Add(p, r3.Vec{Y: eps})) - s.Evaluate(r3.Add(p, r3.Vec{Y: -eps})),
		Z: s.Evaluate(r3.Add(p, r3.Vec{Z: eps})) - s.Evaluate(r3.Add(p, r3.Vec{Z: -eps})),
	}
	if r3.Norm2(g) < tolerance*tolerance {
		return r3.Vec{}
	}
	return r3.Unit(g)
}

// EvaluatorFunc adapts an ordinary function to the Evaluator interface.
type EvaluatorFunc func(p r3.Vec) float64

// Evaluate calls f(p).
func (f EvaluatorFunc) Evaluate(p r3.Vec) float64 { return f(p) }
