package render

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Renderer streams the triangles of a model.
type Renderer interface {
	// ReadTriangles fills t and returns the number of triangles written.
	// io.EOF is returned once the model has been read completely.
	ReadTriangles(t []Triangle3) (int, error)
}

// Triangle3 is a 3D triangle with counter clockwise winding.
type Triangle3 struct {
	V [3]r3.Vec
}

// Normal returns the unit normal of the triangle, or the zero vector for
// a degenerate triangle.
func (t Triangle3) Normal() r3.Vec {
	e1 := r3.Sub(t.V[1], t.V[0])
	e2 := r3.Sub(t.V[2], t.V[0])
	n := r3.Cross(e1, e2)
	if r3.Norm2(n) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(n)
}

// Degenerate returns true if two vertices of the triangle are within tol
// of each other on every axis.
func (t Triangle3) Degenerate(tol float64) bool {
	return equalWithin(t.V[0], t.V[1], tol) ||
		equalWithin(t.V[1], t.V[2], tol) ||
		equalWithin(t.V[2], t.V[0], tol)
}

func equalWithin(a, b r3.Vec, tol float64) bool {
	d := r3.Sub(a, b)
	return d.X <= tol && -d.X <= tol &&
		d.Y <= tol && -d.Y <= tol &&
		d.Z <= tol && -d.Z <= tol
}
