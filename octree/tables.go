package octree

import "github.com/soypat/dcterrain"

// Corner i of a cell, and child i of a node, sits at offset
// childOffsets[i] scaled by the size. Bit 2 is x, bit 1 is y, bit 0 is z.
var childOffsets = [8]dcterrain.V3i{
	{0, 0, 0},
	{0, 0, 1},
	{0, 1, 0},
	{0, 1, 1},
	{1, 0, 0},
	{1, 0, 1},
	{1, 1, 0},
	{1, 1, 1},
}

// edgeCorners lists the two corners of each of the 12 cell edges,
// four per axis in x, y, z order.
var edgeCorners = [12][2]uint8{
	{0, 4}, {1, 5}, {2, 6}, {3, 7}, // x
	{0, 2}, {1, 3}, {4, 6}, {5, 7}, // y
	{0, 1}, {2, 3}, {4, 5}, {6, 7}, // z
}

// cellFaces lists the child pairs sharing a face inside a cell and the
// axis of that face.
var cellFaces = [12][3]uint8{
	{0, 4, 0}, {1, 5, 0}, {2, 6, 0}, {3, 7, 0},
	{0, 2, 1}, {4, 6, 1}, {1, 3, 1}, {5, 7, 1},
	{0, 1, 2}, {2, 3, 2}, {4, 5, 2}, {6, 7, 2},
}

// cellEdges lists the child quadruples sharing an edge inside a cell and
// the axis of that edge.
var cellEdges = [6][5]uint8{
	{0, 1, 2, 3, 0}, {4, 5, 6, 7, 0},
	{0, 4, 1, 5, 1}, {2, 6, 3, 7, 1},
	{0, 2, 4, 6, 2}, {1, 3, 5, 7, 2},
}

// faceFaces lists, per face axis, the child pairs of two neighbouring
// nodes that share a face.
var faceFaces = [3][4][3]uint8{
	{{4, 0, 0}, {5, 1, 0}, {6, 2, 0}, {7, 3, 0}},
	{{2, 0, 1}, {6, 4, 1}, {3, 1, 1}, {7, 5, 1}},
	{{1, 0, 2}, {3, 2, 2}, {5, 4, 2}, {7, 6, 2}},
}

// faceEdges lists, per face axis, the edges straddling the face of two
// neighbouring nodes: the node order, four children and the edge axis.
var faceEdges = [3][4][6]uint8{
	{{1, 4, 0, 5, 1, 1}, {1, 6, 2, 7, 3, 1}, {0, 4, 6, 0, 2, 2}, {0, 5, 7, 1, 3, 2}},
	{{0, 2, 3, 0, 1, 0}, {0, 6, 7, 4, 5, 0}, {1, 2, 0, 6, 4, 2}, {1, 3, 1, 7, 5, 2}},
	{{1, 1, 0, 3, 2, 0}, {1, 5, 4, 7, 6, 0}, {0, 1, 5, 0, 4, 1}, {0, 3, 7, 2, 6, 1}},
}

// faceOrders picks which of the two face nodes contributes each of the
// four edge nodes.
var faceOrders = [2][4]uint8{
	{0, 0, 1, 1},
	{0, 1, 0, 1},
}

// edgeEdges lists, per edge axis, the children of four nodes around an
// edge that share each half of it.
var edgeEdges = [3][2][5]uint8{
	{{3, 2, 1, 0, 0}, {7, 6, 5, 4, 0}},
	{{5, 1, 4, 0, 1}, {7, 3, 6, 2, 1}},
	{{6, 4, 2, 0, 2}, {7, 5, 3, 1, 2}},
}

// edgeOfNode is, per edge axis, the edge of each of the four nodes around
// it that lies on the shared edge.
var edgeOfNode = [3][4]uint8{
	{3, 2, 1, 0},
	{7, 5, 6, 4},
	{11, 10, 9, 8},
}
