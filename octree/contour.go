package octree

import (
	"github.com/soypat/dcterrain/render"
)

// Contour extracts the triangle mesh of the tree under root. Every node
// carrying a vertex is assigned its Index, then triangles are emitted
// across each sign changing edge shared by four cells. Neighbouring cells
// of different sizes are connected without cracks.
// A nil root yields an empty mesh.
func Contour(root *Node) render.Mesh {
	var m render.Mesh
	if root == nil {
		return m
	}
	indexVertices(root, &m)
	c := contourer{indices: m.Indices}
	c.cellProc(root)
	m.Indices = c.indices
	return m
}

// indexVertices visits children before their parent.
func indexVertices(n *Node, m *render.Mesh) {
	if n == nil {
		return
	}
	if n.Kind == Internal {
		for _, c := range n.Children {
			indexVertices(c, m)
		}
		return
	}
	n.Draw.Index = uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, render.NewVertex(n.Draw.Position, n.Draw.Normal))
}

type contourer struct {
	indices []uint32
}

func (c *contourer) cellProc(n *Node) {
	if n == nil || n.Kind != Internal {
		return
	}
	for _, child := range n.Children {
		c.cellProc(child)
	}
	for _, f := range cellFaces {
		c.faceProc([2]*Node{n.Children[f[0]], n.Children[f[1]]}, f[2])
	}
	for _, e := range cellEdges {
		c.edgeProc([4]*Node{
			n.Children[e[0]], n.Children[e[1]], n.Children[e[2]], n.Children[e[3]],
		}, e[4])
	}
}

// faceProc contours the face shared by nodes[0] and nodes[1] along axis dir.
func (c *contourer) faceProc(nodes [2]*Node, dir uint8) {
	if nodes[0] == nil || nodes[1] == nil {
		return
	}
	if nodes[0].Kind != Internal && nodes[1].Kind != Internal {
		return
	}
	for _, f := range faceFaces[dir] {
		var sub [2]*Node
		for j := range sub {
			sub[j] = childOrSelf(nodes[j], f[j])
		}
		c.faceProc(sub, f[2])
	}
	for _, e := range faceEdges[dir] {
		order := faceOrders[e[0]]
		var sub [4]*Node
		for j := range sub {
			sub[j] = childOrSelf(nodes[order[j]], e[j+1])
		}
		c.edgeProc(sub, e[5])
	}
}

// edgeProc contours the edge along axis dir shared by four nodes.
func (c *contourer) edgeProc(nodes [4]*Node, dir uint8) {
	for _, n := range nodes {
		if n == nil {
			return
		}
	}
	if nodes[0].Kind != Internal && nodes[1].Kind != Internal &&
		nodes[2].Kind != Internal && nodes[3].Kind != Internal {
		c.processEdge(nodes, dir)
		return
	}
	for _, e := range edgeEdges[dir] {
		var sub [4]*Node
		for j := range sub {
			sub[j] = childOrSelf(nodes[j], e[j])
		}
		c.edgeProc(sub, e[4])
	}
}

// processEdge emits the quad around a minimal edge if its sign changes.
// The smallest of the four cells decides whether the edge is crossed and
// the winding.
func (c *contourer) processEdge(nodes [4]*Node, dir uint8) {
	minSize := -1
	minIndex := 0
	flip := false
	var indices [4]uint32
	var signChange [4]bool
	for i, n := range nodes {
		e := edgeCorners[edgeOfNode[dir][i]]
		m1 := (n.Draw.Corners >> e[0]) & 1
		m2 := (n.Draw.Corners >> e[1]) & 1
		if minSize < 0 || n.Size < minSize {
			minSize = n.Size
			minIndex = i
			flip = m1 == 1
		}
		indices[i] = n.Draw.Index
		signChange[i] = m1 != m2
	}
	if !signChange[minIndex] {
		return
	}
	if !flip {
		c.indices = append(c.indices,
			indices[0], indices[1], indices[3],
			indices[0], indices[3], indices[2],
		)
	} else {
		c.indices = append(c.indices,
			indices[0], indices[3], indices[1],
			indices[0], indices[2], indices[3],
		)
	}
}

// childOrSelf returns child i of an internal node, or n itself when it
// carries a vertex.
func childOrSelf(n *Node, i uint8) *Node {
	if n.Kind != Internal {
		return n
	}
	return n.Children[i]
}
