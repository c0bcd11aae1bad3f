package octree

import (
	"context"

	"github.com/soypat/dcterrain/qef"
	"gonum.org/v1/gonum/spatial/r3"
)

// Simplify collapses, bottom up, every internal node whose children all
// carry vertices and whose merged QEF error is strictly below threshold
// into a PseudoLeaf. An error equal to threshold keeps the children, so a
// threshold of zero or less leaves the tree unchanged even where the
// merged error is exactly zero. Collapsed children are released to pool.
//
// The tree is modified in place and root is returned. On cancellation the
// tree is left partially simplified but valid, and ctx.Err() is returned.
func Simplify(ctx context.Context, root *Node, threshold float64, pool *Pool, params qef.Params) (*Node, error) {
	if params.Sweeps <= 0 {
		params = qef.DefaultParams()
	}
	s := simplifier{threshold: threshold, pool: pool, params: params}
	err := s.simplify(ctx, root)
	return root, err
}

type simplifier struct {
	threshold float64
	pool      *Pool
	params    qef.Params
}

func (s *simplifier) simplify(ctx context.Context, n *Node) error {
	if n == nil || n.Kind != Internal {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	collapsible := true
	for _, c := range n.Children {
		if err := s.simplify(ctx, c); err != nil {
			return err
		}
		if c != nil && c.Kind == Internal {
			collapsible = false
		}
	}
	if !collapsible {
		return nil
	}

	var solver qef.Solver
	var normal r3.Vec
	var signs [8]int8
	midsign := uint8(0)
	for i, c := range n.Children {
		if c == nil {
			signs[i] = -1
			continue
		}
		solver.AddData(c.Draw.QEF)
		normal = r3.Add(normal, c.Draw.Normal)
		// Corner 7-i of child i is the center of n.
		midsign = (c.Draw.Corners >> (7 - i)) & 1
		signs[i] = int8((c.Draw.Corners >> i) & 1)
	}
	pos, qerr := solver.SolveParams(solver.MassPoint(), s.params)
	if !(qerr < s.threshold) {
		return nil
	}
	if !n.Contains(pos) {
		pos = solver.MassPoint()
	}
	var corners uint8
	for i, sign := range signs {
		if sign < 0 {
			corners |= midsign << i
		} else {
			corners |= uint8(sign) << i
		}
	}

	d := s.pool.drawInfo()
	d.Corners = corners
	d.Position = pos
	d.Normal = unit(normal)
	d.QEF = solver.Data()
	s.pool.releaseChildren(n)
	n.Kind = PseudoLeaf
	n.Draw = d
	return nil
}
