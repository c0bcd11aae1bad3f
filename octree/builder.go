package octree

import (
	"context"
	"errors"
	"fmt"

	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/qef"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultMaxCrossings bounds the edge crossings fed to a leaf QEF.
	DefaultMaxCrossings = 6
	// DefaultNormalStep is the central difference step of surface normals.
	DefaultNormalStep = 0.1
	// overscan widens the homogeneity test of a cell so that features
	// close to a cell boundary are not pruned away.
	overscan = 2
)

// Sampler is the density function the octree is built from. Negative
// values are solid.
type Sampler interface {
	Evaluate(p r3.Vec) float64
}

// SamplerFunc adapts an ordinary function to the Sampler interface.
type SamplerFunc func(p r3.Vec) float64

// Evaluate calls f(p).
func (f SamplerFunc) Evaluate(p r3.Vec) float64 { return f(p) }

// Builder constructs octrees. The zero value uses default parameters and
// no pool.
type Builder struct {
	Pool *Pool
	QEF  qef.Params
	// MaxCrossings bounds the edge crossings used per leaf.
	MaxCrossings int
	// NormalStep is the finite difference step used for normals.
	NormalStep float64
}

// Build returns the octree of s over the cube at corner with edge length size,
// which must be a power of two. A nil root with a nil error means no
// surface crosses the cube.
//
// ctx is checked once per visited node. On cancellation the nodes built so
// far are released to the pool and ctx.Err() is returned.
func (b Builder) Build(ctx context.Context, corner dcterrain.V3i, size int, s Sampler) (*Node, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("octree size %d is not a positive power of two", size)
	}
	if s == nil {
		return nil, errors.New("nil sampler")
	}
	b = b.withDefaults()
	root := b.Pool.node()
	root.Min = corner
	root.Size = size
	root.Kind = Internal
	keep, err := b.construct(ctx, root, s)
	if err != nil || !keep {
		b.Pool.Release(root)
		return nil, err
	}
	return root, nil
}

func (b Builder) withDefaults() Builder {
	if b.QEF.Sweeps <= 0 {
		b.QEF = qef.DefaultParams()
	}
	if b.MaxCrossings <= 0 {
		b.MaxCrossings = DefaultMaxCrossings
	}
	if b.NormalStep <= 0 {
		b.NormalStep = DefaultNormalStep
	}
	return b
}

// construct fills in n and reports whether it should be kept. Children
// that survive are attached to n; the caller releases n when it is not
// kept.
func (b Builder) construct(ctx context.Context, n *Node, s Sampler) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if n.Size == 1 {
		return b.constructLeaf(n, s), nil
	}
	if homogeneous(n, s) {
		return false, nil
	}
	childSize := n.Size / 2
	hasChildren := false
	for i := range n.Children {
		child := b.Pool.node()
		child.Size = childSize
		child.Min = n.Min.Add(childOffsets[i].Scale(childSize))
		child.Kind = Internal
		keep, err := b.construct(ctx, child, s)
		if err != nil || !keep {
			b.Pool.Release(child)
			if err != nil {
				return false, err
			}
			continue
		}
		n.Children[i] = child
		hasChildren = true
	}
	return hasChildren, nil
}

// homogeneous reports whether s has the sign of the cell's min corner on
// every lattice point of the cell widened by overscan.
func homogeneous(n *Node, s Sampler) bool {
	origin := n.Min.ToV3()
	ref := dcterrain.Solid(s.Evaluate(origin))
	for x := -overscan; x <= n.Size+overscan-1; x++ {
		for y := -overscan; y <= n.Size+overscan-1; y++ {
			for z := -overscan; z <= n.Size+overscan-1; z++ {
				p := r3.Add(origin, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
				if dcterrain.Solid(s.Evaluate(p)) != ref {
					return false
				}
			}
		}
	}
	return true
}

// constructLeaf places the vertex of a unit cell. It reports false when the
// cell's corners are all solid or all air.
func (b Builder) constructLeaf(n *Node, s Sampler) bool {
	origin := n.Min.ToV3()
	var corners uint8
	var values [8]float64
	for i, off := range childOffsets {
		values[i] = s.Evaluate(r3.Add(origin, off.ToV3()))
		if dcterrain.Solid(values[i]) {
			corners |= 1 << i
		}
	}
	if corners == 0 || corners == 0xff {
		return false
	}

	var solver qef.Solver
	var normal r3.Vec
	crossings := 0
	for _, e := range edgeCorners {
		if crossings >= b.MaxCrossings {
			break
		}
		c1, c2 := e[0], e[1]
		if (corners>>c1)&1 == (corners>>c2)&1 {
			continue
		}
		p1 := r3.Add(origin, childOffsets[c1].ToV3())
		p2 := r3.Add(origin, childOffsets[c2].ToV3())
		p := zeroCrossing(p1, p2, values[c1], values[c2])
		nrm := dcterrain.Normal3(s, p, b.NormalStep)
		solver.Add(p, nrm)
		normal = r3.Add(normal, nrm)
		crossings++
	}

	pos, _ := solver.SolveParams(solver.MassPoint(), b.QEF)
	if !n.Contains(pos) {
		pos = solver.MassPoint()
	}
	d := b.Pool.drawInfo()
	d.Corners = corners
	d.Position = pos
	d.Normal = unit(normal)
	d.QEF = solver.Data()
	n.Kind = Leaf
	n.Draw = d
	return true
}

// zeroCrossing interpolates linearly between p1 and p2, whose densities
// d1 and d2 have different signs.
func zeroCrossing(p1, p2 r3.Vec, d1, d2 float64) r3.Vec {
	if d1 == d2 {
		return r3.Scale(0.5, r3.Add(p1, p2))
	}
	t := -d1 / (d2 - d1)
	return r3.Add(p1, r3.Scale(t, r3.Sub(p2, p1)))
}

// unit normalizes v, leaving a zero vector as is.
func unit(v r3.Vec) r3.Vec {
	if r3.Norm2(v) == 0 {
		return v
	}
	return r3.Unit(v)
}
