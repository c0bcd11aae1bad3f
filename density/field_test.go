package density

import (
	"math"
	"testing"

	"github.com/soypat/dcterrain/form3/must3"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func groundField() *Field {
	return NewField(must3.Plane(r3.Vec{Y: 1}, 0))
}

func lattice(n int, step float64) []r3.Vec {
	var pts []r3.Vec
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			for k := -n; k <= n; k++ {
				pts = append(pts, r3.Vec{X: float64(i) * step, Y: float64(j) * step, Z: float64(k) * step})
			}
		}
	}
	return pts
}

func TestModifierApply(t *testing.T) {
	p := r3.Vec{X: 1}
	add := NewModifier(ToolSphere, true, r3.Vec{}, 2)
	require.Equal(t, -1.0, add.Apply(5, p))
	require.Equal(t, -3.0, add.Apply(-3, p))

	carve := NewModifier(ToolBox, false, r3.Vec{}, 2)
	require.Equal(t, 1.0, carve.Apply(-5, p))
	require.Equal(t, 5.0, carve.Apply(5, p))

	unknown := NewModifier(Tool(42), true, r3.Vec{}, 2)
	require.Nil(t, unknown.Shape)
	require.Equal(t, -1.0, unknown.Distance(r3.Vec{X: 100}))
}

func TestModifierBounds(t *testing.T) {
	m := NewModifier(ToolSphere, true, r3.Vec{X: 15, Y: 1.5, Z: 1}, 16)
	bb := m.Bounds()
	require.Equal(t, r3.Vec{X: -1, Y: -14.5, Z: -15}, bb.Min)
	require.Equal(t, r3.Vec{X: 31, Y: 17.5, Z: 17}, bb.Max)
}

func TestParseTool(t *testing.T) {
	tool, err := ParseTool("box")
	require.NoError(t, err)
	require.Equal(t, ToolBox, tool)
	_, err = ParseTool("cone")
	require.Error(t, err)
	require.Equal(t, "sphere", ToolSphere.String())
}

func TestPassIdempotent(t *testing.T) {
	f := groundField()
	f.AddModifier(NewModifier(ToolSphere, true, r3.Vec{Y: 2}, 3))
	pass := f.Begin()
	p := r3.Vec{X: 0.3, Y: 1.7, Z: -0.2}
	a := pass.Evaluate(p)
	b := pass.Evaluate(p)
	require.Equal(t, math.Float64bits(a), math.Float64bits(b))
	pass.Commit()

	pass = f.Begin()
	c := pass.Evaluate(p)
	pass.Commit()
	require.Equal(t, math.Float64bits(a), math.Float64bits(c))
	require.Equal(t, math.Float64bits(a), math.Float64bits(f.Evaluate(p)))
}

func TestPassIncrementalExact(t *testing.T) {
	f := groundField()
	f.AddModifier(NewModifier(ToolSphere, true, r3.Vec{X: 2, Y: 1}, 2))
	f.AddModifier(NewModifier(ToolBox, false, r3.Vec{X: -2}, 1.5))
	pts := lattice(4, 1)

	pass := f.Begin()
	before := make(map[r3.Vec]float64, len(pts))
	for _, p := range pts {
		before[p] = pass.Evaluate(p)
	}
	st := pass.Stats()
	require.Equal(t, len(pts), st.Misses)
	require.Zero(t, st.Hits)
	pass.Commit()
	require.Equal(t, 2, f.Applied())

	edit := NewModifier(ToolSphere, false, r3.Vec{X: 3, Y: 3, Z: 3}, 1)
	f.AddModifier(edit)
	pass = f.Begin()
	for _, p := range pts {
		got := pass.Evaluate(p)
		require.Equal(t, f.Evaluate(p), got)
		if edit.Distance(p) > 0 && -edit.Distance(p) <= before[p] {
			require.Equal(t, before[p], got, "position %v", p)
		}
	}
	st = pass.Stats()
	require.Equal(t, len(pts), st.Hits)
	require.Zero(t, st.Misses)
	require.Equal(t, len(pts), st.Replayed)
	pass.Commit()
	require.Equal(t, 3, f.Applied())
}

func TestPassAbortKeepsGeneration(t *testing.T) {
	f := groundField()
	p := r3.Vec{Y: 1}
	pass := f.Begin()
	pass.Evaluate(p)
	pass.Commit()

	f.AddModifier(NewModifier(ToolSphere, true, r3.Vec{}, 4))
	pass = f.Begin()
	pass.Evaluate(p)
	pass.Evaluate(r3.Vec{Y: 2})
	pass.Abort()
	pass.Commit() // no-op on an ended pass.
	require.Zero(t, f.Applied())

	pass = f.Begin()
	require.Equal(t, -3.0, pass.Evaluate(p))
	st := pass.Stats()
	require.Equal(t, 1, st.Hits)
	require.Equal(t, 1, st.Replayed)
	pass.Commit()
	require.Equal(t, 1, f.Applied())
}

func TestBeginTwicePanics(t *testing.T) {
	f := groundField()
	pass := f.Begin()
	require.Panics(t, func() { f.Begin() })
	pass.Abort()
	require.NotPanics(t, func() { f.Begin().Commit() })
}

func TestFieldsDoNotShareCache(t *testing.T) {
	a, b := groundField(), groundField()
	p := r3.Vec{Y: 1}
	pa := a.Begin()
	require.Equal(t, 1.0, pa.Evaluate(p))
	pa.Commit()

	b.AddModifier(NewModifier(ToolSphere, true, r3.Vec{}, 3))
	pb := b.Begin()
	require.Equal(t, -2.0, pb.Evaluate(p))
	require.Zero(t, pb.Stats().Hits)
	pb.Commit()

	pa = a.Begin()
	require.Equal(t, 1.0, pa.Evaluate(p))
	require.Equal(t, 1, pa.Stats().Hits)
	pa.Commit()
}

func TestModifiersCopy(t *testing.T) {
	f := groundField()
	f.AddModifier(NewModifier(ToolBox, true, r3.Vec{}, 1))
	mods := f.Modifiers()
	mods[0].Additive = false
	require.True(t, f.Modifiers()[0].Additive)
}
