package must3

import (
	"math"

	"github.com/soypat/dcterrain/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

type box struct {
	size  r3.Vec
	round float64
	bb    r3.Box
}

// Box return an SDF3 for a 3d box (rounded corners with round > 0).
func Box(size r3.Vec, round float64) *box {
	if d3.LTEZero(size) {
		panic("size <= 0")
	}
	if round < 0 {
		panic("round < 0")
	}
	size = r3.Scale(0.5, size)
	s := box{
		size:  r3.Sub(size, d3.Elem(round)),
		round: round,
		bb:    r3.Box{Min: r3.Scale(-1, size), Max: size},
	}
	return &s
}

// Evaluate returns the minimum distance to a 3d box.
func (s *box) Evaluate(p r3.Vec) float64 {
	return BoxDistance(p, s.size) - s.round
}

// Bounds returns the bounding box for a 3d box.
func (s *box) Bounds() r3.Box {
	return s.bb
}

// Sphere (exact distance field)

// sphere is a sphere.
type sphere struct {
	radius float64
	bb     r3.Box
}

// Sphere return an SDF3 for a sphere.
func Sphere(radius float64) *sphere {
	if radius <= 0 {
		panic("radius <= 0")
	}
	d := d3.Elem(radius)
	s := sphere{
		radius: radius,
		bb:     r3.Box{Min: r3.Scale(-1, d), Max: d},
	}
	return &s
}

// Evaluate returns the minimum distance to a sphere.
func (s *sphere) Evaluate(p r3.Vec) float64 {
	return SphereDistance(p, s.radius)
}

// Bounds returns the bounding box for a sphere.
func (s *sphere) Bounds() r3.Box {
	return s.bb
}

// plane is the half-space below a plane.
type plane struct {
	normal r3.Vec
	offset float64
}

// Plane returns an SDF3 for the half-space {p : normal·p <= offset}.
// Terrain ground is usually Plane(r3.Vec{Y: 1}, height).
// The bounding box of a plane is infinite.
func Plane(normal r3.Vec, offset float64) *plane {
	if r3.Norm2(normal) == 0 {
		panic("zero plane normal")
	}
	return &plane{normal: r3.Unit(normal), offset: offset}
}

// Evaluate returns the signed distance to the plane.
func (s *plane) Evaluate(p r3.Vec) float64 {
	return r3.Dot(s.normal, p) - s.offset
}

// Bounds returns an infinite bounding box.
func (s *plane) Bounds() r3.Box {
	inf := d3.Elem(math.Inf(1))
	return r3.Box{Min: r3.Scale(-1, inf), Max: inf}
}

// SphereDistance is the exact distance from p to a sphere of the given
// radius centered at the origin.
func SphereDistance(p r3.Vec, radius float64) float64 {
	return r3.Norm(p) - radius
}

// BoxDistance is the exact distance from p to an origin-centered box with
// half extents s.
func BoxDistance(p, s r3.Vec) float64 {
	d := r3.Sub(d3.AbsElem(p), s)
	if d.X > 0 && d.Y > 0 && d.Z > 0 {
		return r3.Norm(d)
	}
	if d.X > 0 && d.Y > 0 {
		return math.Hypot(d.X, d.Y)
	}
	if d.X > 0 && d.Z > 0 {
		return math.Hypot(d.X, d.Z)
	}
	if d.Y > 0 && d.Z > 0 {
		return math.Hypot(d.Y, d.Z)
	}
	if d.X > 0 {
		return d.X
	}
	if d.Y > 0 {
		return d.Y
	}
	if d.Z > 0 {
		return d.Z
	}
	return d3.Max(d)
}
