package density

import (
	"fmt"

	"github.com/soypat/dcterrain/form3/must3"
	"gonum.org/v1/gonum/spatial/r3"
)

// neutralDistance is returned for shapes the field does not know how to
// evaluate.
const neutralDistance = -1

// Shape is the geometry of a sculpt tool, centered at the origin.
// The only implementations are Sphere and Box.
type Shape interface {
	// Bounds returns the origin-centered box enclosing the shape.
	Bounds() r3.Box
	shape()
}

// Sphere is a sculpt sphere of the given radius.
type Sphere struct {
	Radius float64
}

// Box is a sculpt box with the given half extents.
type Box struct {
	HalfExtents r3.Vec
}

func (Sphere) shape() {}
func (Box) shape()    {}

// Bounds returns the box enclosing the sphere.
func (s Sphere) Bounds() r3.Box {
	r := r3.Vec{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return r3.Box{Min: r3.Scale(-1, r), Max: r}
}

// Bounds returns the box itself.
func (b Box) Bounds() r3.Box {
	return r3.Box{Min: r3.Scale(-1, b.HalfExtents), Max: b.HalfExtents}
}

// distance evaluates shape at the local point p.
func distance(shape Shape, p r3.Vec) float64 {
	switch s := shape.(type) {
	case Sphere:
		return must3.SphereDistance(p, s.Radius)
	case Box:
		return must3.BoxDistance(p, s.HalfExtents)
	default:
		return neutralDistance
	}
}

// Tool selects the shape built by NewModifier.
type Tool uint8

const (
	ToolSphere Tool = iota
	ToolBox
)

func (t Tool) String() string {
	switch t {
	case ToolSphere:
		return "sphere"
	case ToolBox:
		return "box"
	}
	return fmt.Sprintf("Tool(%d)", uint8(t))
}

// ParseTool returns the tool named s ("sphere" or "box").
func ParseTool(s string) (Tool, error) {
	switch s {
	case "sphere":
		return ToolSphere, nil
	case "box", "cube":
		return ToolBox, nil
	}
	return 0, fmt.Errorf("unknown sculpt tool %q", s)
}

// Modifier is one sculpt operation. Additive modifiers add material,
// the others carve it away.
type Modifier struct {
	Shape    Shape
	Additive bool
	Position r3.Vec
}

// NewModifier builds a modifier from a tool kind and a scalar size: the
// radius for spheres and the half extent on every axis for boxes.
// An unknown tool yields a modifier without shape which evaluates to a
// constant distance of -1.
func NewModifier(tool Tool, additive bool, position r3.Vec, size float64) Modifier {
	m := Modifier{Additive: additive, Position: position}
	switch tool {
	case ToolSphere:
		m.Shape = Sphere{Radius: size}
	case ToolBox:
		m.Shape = Box{HalfExtents: r3.Vec{X: size, Y: size, Z: size}}
	}
	return m
}

// Distance returns the signed distance from p to the modifier's shape.
func (m Modifier) Distance(p r3.Vec) float64 {
	return distance(m.Shape, r3.Sub(p, m.Position))
}

// Apply folds the modifier into density d sampled at p.
func (m Modifier) Apply(d float64, p r3.Vec) float64 {
	s := m.Distance(p)
	if m.Additive {
		return min(s, d)
	}
	return max(-s, d)
}

// Bounds returns the world space box affected by the modifier. A modifier
// without shape has an empty box at its position.
func (m Modifier) Bounds() r3.Box {
	if m.Shape == nil {
		return r3.Box{Min: m.Position, Max: m.Position}
	}
	bb := m.Shape.Bounds()
	return r3.Box{Min: r3.Add(bb.Min, m.Position), Max: r3.Add(bb.Max, m.Position)}
}
