package density

import (
	"testing"

	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/form3/must3"
	"github.com/soypat/dcterrain/render"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// cube returns the 12 outward wound triangles of the box [-1,1]^3.
func cube() []render.Triangle3 {
	quads := [6][4]r3.Vec{
		{{X: 1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: -1, Z: 1}},
		{{X: -1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: 1}, {X: -1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: -1}},
		{{X: -1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: -1}},
		{{X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: 1}, {X: -1, Y: -1, Z: 1}},
		{{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1}},
		{{X: -1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: 1, Y: -1, Z: -1}},
	}
	var t []render.Triangle3
	for _, q := range quads {
		t = append(t,
			render.Triangle3{V: [3]r3.Vec{q[0], q[1], q[2]}},
			render.Triangle3{V: [3]r3.Vec{q[0], q[2], q[3]}},
		)
	}
	return t
}

func TestMeshMatchesBox(t *testing.T) {
	m, err := NewMesh(cube(), 0)
	require.NoError(t, err)
	require.Equal(t, 12, m.Triangles())
	require.Len(t, m.vertices, 8)
	bb := m.Bounds()
	require.Equal(t, r3.Vec{X: -1, Y: -1, Z: -1}, bb.Min)
	require.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, bb.Max)

	half := r3.Vec{X: 1, Y: 1, Z: 1}
	for x := -2.5; x <= 2.5; x += 0.5 {
		for y := -2.5; y <= 2.5; y += 0.5 {
			for z := -2.5; z <= 2.5; z += 0.5 {
				p := r3.Vec{X: x, Y: y, Z: z}
				require.InDelta(t, must3.BoxDistance(p, half), m.Evaluate(p), 1e-12, "at %v", p)
			}
		}
	}
}

func TestMeshWeldsVertices(t *testing.T) {
	tris := cube()
	// Nudge one copy of a shared corner below the weld tolerance.
	tris[0].V[2] = r3.Add(tris[0].V[2], r3.Vec{X: 1e-5})
	m, err := NewMesh(tris, 1e-3)
	require.NoError(t, err)
	require.Len(t, m.vertices, 8)
	require.Less(t, m.Evaluate(r3.Vec{}), 0.0)
}

func TestNewMeshErrors(t *testing.T) {
	_, err := NewMesh(nil, 0)
	require.Error(t, err)
	_, err = NewMesh(cube(), 5)
	require.Error(t, err)
	_, err = NewMesh(cube(), -1)
	require.Error(t, err)
	p := r3.Vec{X: 1}
	_, err = NewMesh([]render.Triangle3{{V: [3]r3.Vec{p, p, p}}}, 0)
	require.Error(t, err)
}

func TestMeshBase(t *testing.T) {
	m, err := NewMesh(cube(), 0)
	require.NoError(t, err)
	f := NewField(dcterrain.Translate3D(m, r3.Vec{Y: 2}))
	f.AddModifier(NewModifier(ToolSphere, false, r3.Vec{Y: 3}, 0.5))

	pass := f.Begin()
	require.Greater(t, pass.Evaluate(r3.Vec{Y: 3}), 0.0, "carved")
	require.Less(t, pass.Evaluate(r3.Vec{Y: 1.5}), 0.0)
	require.Greater(t, pass.Evaluate(r3.Vec{}), 0.0)
	pass.Commit()

	// Meshes are safe to evaluate from several goroutines.
	done := make(chan float64)
	for i := 0; i < 4; i++ {
		go func() {
			v := 0.0
			for j := 0; j < 100; j++ {
				v += m.Evaluate(r3.Vec{X: 0.25, Y: 0.5})
			}
			done <- v
		}()
	}
	for i := 0; i < 4; i++ {
		require.InDelta(t, -25.0, <-done, 1e-9)
	}
}
