// Package octree builds, simplifies and contours the dual contouring
// octree of a density function.
//
// Nodes cover integer aligned cubes. A node is either Internal, with at
// least one child, or carries a DrawInfo holding the vertex placed in its
// cell: a Leaf at unit size or a PseudoLeaf produced by Simplify.
package octree

import (
	"github.com/soypat/dcterrain"
	"github.com/soypat/dcterrain/internal/d3"
	"github.com/soypat/dcterrain/qef"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind is the role of a node in the tree.
type Kind uint8

const (
	Internal Kind = iota
	Leaf
	PseudoLeaf
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case Leaf:
		return "leaf"
	case PseudoLeaf:
		return "pseudo"
	}
	return "Kind(?)"
}

// Node is an octree cell. Children are owned by their parent: releasing
// a node to a Pool releases its whole subtree.
type Node struct {
	Min      dcterrain.V3i
	Size     int
	Kind     Kind
	Children [8]*Node
	// Draw is set for Leaf and PseudoLeaf nodes.
	Draw *DrawInfo
}

// DrawInfo is the surface vertex of a cell.
type DrawInfo struct {
	// Index is the output vertex index. Only valid after Contour.
	Index uint32
	// Corners has bit i set when corner i of the cell is solid.
	Corners  uint8
	Position r3.Vec
	Normal   r3.Vec
	// QEF is kept so the cell can be merged by a later simplification.
	QEF qef.Data
}

// Bounds returns the box covered by the node.
func (n *Node) Bounds() r3.Box {
	lo := n.Min.ToV3()
	size := float64(n.Size)
	return r3.Box{Min: lo, Max: r3.Add(lo, r3.Vec{X: size, Y: size, Z: size})}
}

// HasVertex reports whether the node carries a surface vertex.
func (n *Node) HasVertex() bool {
	return n.Kind != Internal
}

// Contains reports whether p lies inside the node, boundary included.
func (n *Node) Contains(p r3.Vec) bool {
	return d3.Box(n.Bounds()).Contains(p)
}

// Walk calls fn for n and its descendants in depth first order. Children
// of a node are skipped when fn returns false for it.
func Walk(n *Node, fn func(n *Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// NodeCount tallies the nodes of a tree by kind.
type NodeCount struct {
	Internal int
	Leaf     int
	Pseudo   int
}

// Total returns the number of nodes counted.
func (c NodeCount) Total() int { return c.Internal + c.Leaf + c.Pseudo }

// Vertices returns the number of nodes carrying a vertex.
func (c NodeCount) Vertices() int { return c.Leaf + c.Pseudo }

// Count tallies the nodes under root.
func Count(root *Node) (c NodeCount) {
	Walk(root, func(n *Node) bool {
		switch n.Kind {
		case Internal:
			c.Internal++
		case Leaf:
			c.Leaf++
		case PseudoLeaf:
			c.Pseudo++
		}
		return true
	})
	return c
}
