package render

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vertex is a GPU ready mesh vertex.
type Vertex struct {
	Position mgl32.Vec3
	UV       mgl32.Vec2
	Normal   mgl32.Vec3
}

// NewVertex converts a surface vertex to single precision. Texture
// coordinates are the world XZ coordinates.
func NewVertex(position, normal r3.Vec) Vertex {
	p := vec3(position)
	return Vertex{
		Position: p,
		UV:       mgl32.Vec2{p[0], p[2]},
		Normal:   vec3(normal),
	}
}

func vec3(v r3.Vec) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

func r3From(v mgl32.Vec3) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

// Mesh is an indexed triangle list. Every three indices form a triangle.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Empty reports whether the mesh has no triangles.
func (m *Mesh) Empty() bool { return len(m.Indices) < 3 }

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Triangle returns the i'th triangle of the mesh.
func (m *Mesh) Triangle(i int) Triangle3 {
	idx := m.Indices[3*i : 3*i+3]
	return Triangle3{V: [3]r3.Vec{
		r3From(m.Vertices[idx[0]].Position),
		r3From(m.Vertices[idx[1]].Position),
		r3From(m.Vertices[idx[2]].Position),
	}}
}

// Triangles returns every triangle of the mesh.
func (m *Mesh) Triangles() []Triangle3 {
	t := make([]Triangle3, m.TriangleCount())
	for i := range t {
		t[i] = m.Triangle(i)
	}
	return t
}

// Renderer returns a Renderer streaming the triangles of m.
func (m *Mesh) Renderer() Renderer {
	return &meshReader{m: m}
}

// Bounds returns the bounding box of the mesh vertices.
func (m *Mesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	bb := r3.Box{Min: r3From(m.Vertices[0].Position), Max: r3From(m.Vertices[0].Position)}
	for _, v := range m.Vertices[1:] {
		p := r3From(v.Position)
		bb.Min = r3.Vec{X: min(bb.Min.X, p.X), Y: min(bb.Min.Y, p.Y), Z: min(bb.Min.Z, p.Z)}
		bb.Max = r3.Vec{X: max(bb.Max.X, p.X), Y: max(bb.Max.Y, p.Y), Z: max(bb.Max.Z, p.Z)}
	}
	return bb
}

// Validate checks that the index count is a multiple of three, that every
// index refers to a vertex and that every vertex is finite.
func (m *Mesh) Validate() error {
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("index count %d not a multiple of 3", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("index %d at %d out of range of %d vertices", idx, i, len(m.Vertices))
		}
	}
	for i, v := range m.Vertices {
		if bad3F32(v.Position) || bad3F32(v.Normal) {
			return fmt.Errorf("vertex %d: %w", i, errNonFinite)
		}
	}
	return nil
}

var errNonFinite = errors.New("inf/NaN vertex component")

// NormalizeNormals rescales every non-zero vertex normal to unit length.
func (m *Mesh) NormalizeNormals() {
	for i := range m.Vertices {
		n := m.Vertices[i].Normal
		l := math32.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
		if l > 0 {
			m.Vertices[i].Normal = n.Mul(1 / l)
		}
	}
}
