package octree

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/qef"
	"github.com/soypat/dcterrain/render"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var sphereCenter = r3.Vec{X: 0.3, Y: 0.2, Z: 0.1}

const sphereRadius = 10

func sphere() Sampler {
	return SamplerFunc(func(p r3.Vec) float64 {
		return r3.Norm(r3.Sub(p, sphereCenter)) - sphereRadius
	})
}

func ground(height float64) Sampler {
	return SamplerFunc(func(p r3.Vec) float64 { return p.Y - height })
}

func buildSphere(t testing.TB, pool *Pool) *Node {
	t.Helper()
	root, err := Builder{Pool: pool}.Build(context.Background(), dcterrain.V3i{-16, -16, -16}, 32, sphere())
	require.NoError(t, err)
	require.NotNil(t, root)
	return root
}

func TestSphereCrossings(t *testing.T) {
	s := sphere()
	root := buildSphere(t, nil)
	leaves := 0
	Walk(root, func(n *Node) bool {
		if n.Kind != Leaf {
			require.Nil(t, n.Draw)
			require.Greater(t, n.Size, 1)
			return true
		}
		leaves++
		require.Equal(t, 1, n.Size)
		require.NotZero(t, n.Draw.Corners)
		require.NotEqual(t, uint8(0xff), n.Draw.Corners)
		require.True(t, n.Contains(n.Draw.Position), "vertex %v outside cell %v", n.Draw.Position, n.Min)
		require.InDelta(t, 1, r3.Norm(n.Draw.Normal), 1e-9)

		origin := n.Min.ToV3()
		for _, e := range edgeCorners {
			p1 := r3.Add(origin, childOffsets[e[0]].ToV3())
			p2 := r3.Add(origin, childOffsets[e[1]].ToV3())
			d1, d2 := s.Evaluate(p1), s.Evaluate(p2)
			if dcterrain.Solid(d1) == dcterrain.Solid(d2) {
				continue
			}
			p := zeroCrossing(p1, p2, d1, d2)
			require.InDelta(t, sphereRadius, r3.Norm(r3.Sub(p, sphereCenter)), 0.02)
		}
		return true
	})
	require.Greater(t, leaves, 100)
	require.Equal(t, leaves, Count(root).Leaf)
}

func TestSphereMeshClosed(t *testing.T) {
	root := buildSphere(t, nil)
	mesh := Contour(root)
	require.NoError(t, mesh.Validate())
	require.Equal(t, Count(root).Vertices(), len(mesh.Vertices))
	require.NotZero(t, mesh.TriangleCount())

	directed := make(map[[2]uint32]int)
	for i := 0; i < len(mesh.Indices); i += 3 {
		a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		require.True(t, a != b && b != c && c != a, "degenerate triangle on uniform grid")
		directed[[2]uint32{a, b}]++
		directed[[2]uint32{b, c}]++
		directed[[2]uint32{c, a}]++
	}
	for e, count := range directed {
		require.Equal(t, 1, count, "edge %v used twice in the same direction", e)
		require.Equal(t, 1, directed[[2]uint32{e[1], e[0]}], "edge %v has no twin", e)
	}

	// Outward winding gives a positive enclosed volume.
	var vol float64
	for _, tri := range mesh.Triangles() {
		vol += r3.Dot(tri.V[0], r3.Cross(tri.V[1], tri.V[2])) / 6
	}
	want := 4 * math.Pi * sphereRadius * sphereRadius * sphereRadius / 3
	require.InEpsilon(t, want, vol, 0.05)
}

func TestVertexIndicesUnique(t *testing.T) {
	root := buildSphere(t, nil)
	mesh := Contour(root)
	seen := make(map[uint32]bool)
	Walk(root, func(n *Node) bool {
		if n.HasVertex() {
			require.False(t, seen[n.Draw.Index])
			seen[n.Draw.Index] = true
			v := mesh.Vertices[n.Draw.Index]
			require.Equal(t, render.NewVertex(n.Draw.Position, n.Draw.Normal), v)
		}
		return true
	})
	require.Len(t, seen, len(mesh.Vertices))
}

func TestGroundWinding(t *testing.T) {
	const height = 3.3
	root, err := Builder{}.Build(context.Background(), dcterrain.V3i{}, 8, ground(height))
	require.NoError(t, err)
	mesh := Contour(root)
	require.NotZero(t, mesh.TriangleCount())
	for _, v := range mesh.Vertices {
		require.InDelta(t, height, v.Position[1], 1e-5)
		require.InDelta(t, 1, v.Normal[1], 1e-6)
	}
	for _, tri := range mesh.Triangles() {
		// Solid is below the surface, so triangles face up.
		require.Greater(t, tri.Normal().Y, 0.99)
	}
}

func TestSimplifyZeroThreshold(t *testing.T) {
	root := buildSphere(t, nil)
	before := Contour(root)
	count := Count(root)
	root, err := Simplify(context.Background(), root, 0, nil, qef.DefaultParams())
	require.NoError(t, err)
	require.Equal(t, count, Count(root))
	require.Zero(t, count.Pseudo)
	after := Contour(root)
	require.Equal(t, before, after)
}

func TestSimplifyCollapsesPlane(t *testing.T) {
	pool := NewPool()
	root, err := Builder{Pool: pool}.Build(context.Background(), dcterrain.V3i{}, 8, ground(3.3))
	require.NoError(t, err)
	leaves := Count(root).Leaf
	require.Greater(t, leaves, 1)

	root, err = Simplify(context.Background(), root, 1e-3, pool, qef.DefaultParams())
	require.NoError(t, err)
	count := Count(root)
	require.Equal(t, PseudoLeaf, root.Kind)
	require.Equal(t, NodeCount{Pseudo: 1}, count)
	require.InDelta(t, 3.3, root.Draw.Position.Y, 1e-9)
	require.True(t, root.Contains(root.Draw.Position))
	// Below the plane is solid, above is air.
	require.Equal(t, uint8(0b00110011), root.Draw.Corners)

	stats := pool.Stats()
	require.Equal(t, 1, stats.LiveNodes())
	require.Equal(t, 1, stats.LiveDraws())
	pool.Release(root)
	stats = pool.Stats()
	require.Zero(t, stats.LiveNodes())
	require.Zero(t, stats.LiveDraws())
}

func TestSimplifiedSphereClosed(t *testing.T) {
	pool := NewPool()
	root := buildSphere(t, pool)
	prev := Count(root)
	for _, threshold := range []float64{1e-3, 0.05, 0.5, 5} {
		var err error
		root, err = Simplify(context.Background(), root, threshold, pool, qef.DefaultParams())
		require.NoError(t, err)
		count := Count(root)
		require.LessOrEqual(t, count.Total(), prev.Total(), "threshold %g", threshold)
		prev = count

		sizes := make(map[int]bool)
		Walk(root, func(n *Node) bool {
			if n.HasVertex() {
				sizes[n.Size] = true
				require.True(t, n.Contains(n.Draw.Position), "vertex %v outside node %v size %d", n.Draw.Position, n.Min, n.Size)
			}
			return true
		})

		mesh := Contour(root)
		require.NoError(t, mesh.Validate())
		require.Equal(t, count.Vertices(), len(mesh.Vertices))
		require.NotZero(t, mesh.TriangleCount())
		// Triangles between cells of different sizes may repeat a vertex,
		// but every edge must still be matched by its reverse.
		directed := make(map[[2]uint32]int)
		for i := 0; i < len(mesh.Indices); i += 3 {
			a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
			directed[[2]uint32{a, b}]++
			directed[[2]uint32{b, c}]++
			directed[[2]uint32{c, a}]++
		}
		for e := range directed {
			if e[0] == e[1] {
				continue
			}
			require.NotZero(t, directed[[2]uint32{e[1], e[0]}], "threshold %g: edge %v has no twin", threshold, e)
		}
		if threshold >= 0.05 {
			require.NotZero(t, count.Pseudo, "threshold %g", threshold)
		}
		if count.Pseudo > 0 && count.Leaf > 0 {
			require.Greater(t, len(sizes), 1)
		}
	}
	require.NotZero(t, prev.Pseudo)
	require.Zero(t, prev.Leaf)

	pool.Release(root)
	stats := pool.Stats()
	require.Zero(t, stats.LiveNodes())
	require.Zero(t, stats.LiveDraws())
}

func TestSimplifyEqualErrorKeeps(t *testing.T) {
	// Cells of a flat plane merge with zero error.
	root, err := Builder{}.Build(context.Background(), dcterrain.V3i{}, 8, ground(3.5))
	require.NoError(t, err)
	count := Count(root)
	require.Zero(t, count.Pseudo)

	root, err = Simplify(context.Background(), root, 0, nil, qef.DefaultParams())
	require.NoError(t, err)
	require.Equal(t, count, Count(root))

	root, err = Simplify(context.Background(), root, 1e-9, nil, qef.DefaultParams())
	require.NoError(t, err)
	require.Equal(t, NodeCount{Pseudo: 1}, Count(root))
}

func TestPoolReuse(t *testing.T) {
	pool := NewPool()
	root := buildSphere(t, pool)
	first := pool.Stats()
	count := Count(root)
	require.Equal(t, count.Total(), first.LiveNodes())
	require.Equal(t, count.Vertices(), first.LiveDraws())
	pool.Release(root)
	released := pool.Stats()
	require.Zero(t, released.LiveNodes())
	require.Zero(t, released.LiveDraws())

	// An identical build is served entirely from the free lists.
	root = buildSphere(t, pool)
	second := pool.Stats()
	require.Equal(t, 2*first.NodesAcquired, second.NodesAcquired)
	require.Equal(t, count, Count(root))
	pool.Release(root)
	again := pool.Stats()
	require.Zero(t, again.LiveNodes())
	require.Equal(t, released.NodesFree, again.NodesFree)
	require.Equal(t, released.DrawFree, again.DrawFree)
}

func TestBuildCancel(t *testing.T) {
	pool := NewPool()
	ctx, cancel := context.WithCancel(context.Background())
	s := sphere()
	calls := 0
	sampler := SamplerFunc(func(p r3.Vec) float64 {
		calls++
		if calls == 20000 {
			cancel()
		}
		return s.Evaluate(p)
	})
	root, err := Builder{Pool: pool}.Build(ctx, dcterrain.V3i{-16, -16, -16}, 32, sampler)
	require.True(t, errors.Is(err, context.Canceled))
	require.Nil(t, root)
	stats := pool.Stats()
	require.NotZero(t, stats.NodesAcquired)
	require.Zero(t, stats.LiveNodes())
	require.Zero(t, stats.LiveDraws())

	root, err = Builder{Pool: pool}.Build(ctx, dcterrain.V3i{}, 8, s)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, root)
	require.Zero(t, pool.Stats().LiveNodes())
}

func TestSimplifyCancel(t *testing.T) {
	pool := NewPool()
	root := buildSphere(t, pool)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := Simplify(ctx, root, 1, pool, qef.Params{})
	require.ErrorIs(t, err, context.Canceled)
	require.Same(t, root, got)
	pool.Release(root)
	require.Zero(t, pool.Stats().LiveNodes())
}

func TestBuildHomogeneous(t *testing.T) {
	pool := NewPool()
	root, err := Builder{Pool: pool}.Build(context.Background(), dcterrain.V3i{}, 16, ground(-100))
	require.NoError(t, err)
	require.Nil(t, root)
	require.Zero(t, pool.Stats().LiveNodes())
	require.Empty(t, Contour(nil).Vertices)

	_, err = Builder{}.Build(context.Background(), dcterrain.V3i{}, 12, ground(0))
	require.Error(t, err)
	_, err = Builder{}.Build(context.Background(), dcterrain.V3i{}, 8, nil)
	require.Error(t, err)
}

func TestBuildMaxCrossings(t *testing.T) {
	root, err := Builder{MaxCrossings: 1}.Build(context.Background(), dcterrain.V3i{}, 8, ground(3.3))
	require.NoError(t, err)
	Walk(root, func(n *Node) bool {
		if n.Kind == Leaf {
			require.Equal(t, 1, n.Draw.QEF.NumPoints)
		}
		return true
	})
}
