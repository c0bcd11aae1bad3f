package density

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/dcterrain/internal/d3"
	"github.com/soypat/dcterrain/render"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is the signed distance to a closed triangle mesh with outward
// winding. It can serve as the base density of a Field so that imported
// models can be sculpted.
//
// The closest triangle is found with a kd-tree of triangle centroids and
// the sign is taken from the angle weighted pseudo normal of the closest
// feature. Mesh is safe for concurrent use.
type Mesh struct {
	tree      *kdtree.Tree
	vertices  []meshVertex
	triangles []meshTriangle
	// edges holds edge pseudo normals keyed by vertex index, lower first.
	edges map[[2]int]r3.Vec
	// radius is the largest centroid to vertex distance of any triangle.
	radius float64
	bb     d3.Box
}

type meshVertex struct {
	p r3.Vec
	n r3.Vec
}

type meshTriangle struct {
	v [3]int
	n r3.Vec
}

// NewMesh welds vertices of triangles closer than vertexTol and indexes
// the result. A zero vertexTol is inferred from the shortest edge.
func NewMesh(triangles []render.Triangle3, vertexTol float64) (*Mesh, error) {
	if len(triangles) == 0 {
		return nil, errors.New("no triangles")
	}
	bb := d3.Box{Min: d3.Elem(math.MaxFloat64), Max: d3.Elem(-math.MaxFloat64)}
	minEdge2, maxEdge2 := math.MaxFloat64, 0.0
	for _, t := range triangles {
		for j, v := range t.V {
			bb.Min = d3.MinElem(bb.Min, v)
			bb.Max = d3.MaxElem(bb.Max, v)
			e2 := r3.Norm2(r3.Sub(t.V[(j+1)%3], v))
			if e2 > 0 {
				minEdge2 = math.Min(minEdge2, e2)
			}
			maxEdge2 = math.Max(maxEdge2, e2)
		}
	}
	if maxEdge2 == 0 {
		return nil, errors.New("all triangles are degenerate")
	}
	if vertexTol == 0 {
		vertexTol = math.Sqrt(minEdge2) / 256
	}
	if !(vertexTol > 0) || vertexTol > math.Sqrt(maxEdge2)/2 {
		return nil, fmt.Errorf("vertex tolerance %g out of range, try %g", vertexTol, math.Sqrt(minEdge2)/256)
	}
	if d3.Max(d3.AbsElem(bb.Min))/vertexTol > math.MaxInt64/2 || d3.Max(d3.AbsElem(bb.Max))/vertexTol > math.MaxInt64/2 {
		return nil, errors.New("vertex tolerance too small for model extent")
	}

	m := &Mesh{
		triangles: make([]meshTriangle, 0, len(triangles)),
		edges:     make(map[[2]int]r3.Vec),
		bb:        bb,
	}
	welded := make(map[[3]int64]int)
	weld := func(v r3.Vec) int {
		key := [3]int64{
			int64(math.Round(v.X / vertexTol)),
			int64(math.Round(v.Y / vertexTol)),
			int64(math.Round(v.Z / vertexTol)),
		}
		idx, ok := welded[key]
		if !ok {
			idx = len(m.vertices)
			welded[key] = idx
			m.vertices = append(m.vertices, meshVertex{p: v})
		}
		return idx
	}

	var centers centroids
	for _, t := range triangles {
		n := t.Normal()
		if n == (r3.Vec{}) {
			continue
		}
		tri := meshTriangle{n: n}
		for j, v := range t.V {
			tri.v[j] = weld(v)
		}
		if tri.v[0] == tri.v[1] || tri.v[1] == tri.v[2] || tri.v[2] == tri.v[0] {
			continue
		}
		for j, v := range t.V {
			// Weight the vertex pseudo normal by the angle at the vertex.
			e1, e2 := r3.Sub(t.V[(j+1)%3], v), r3.Sub(t.V[(j+2)%3], v)
			alpha := math.Acos(math.Max(-1, math.Min(1, r3.Cos(e1, e2))))
			vtx := &m.vertices[tri.v[j]]
			vtx.n = r3.Add(vtx.n, r3.Scale(alpha, n))

			key := edgeKey(tri.v[j], tri.v[(j+1)%3])
			m.edges[key] = r3.Add(m.edges[key], n)
		}
		c := r3.Scale(1./3, r3.Add(r3.Add(t.V[0], t.V[1]), t.V[2]))
		for _, v := range t.V {
			m.radius = math.Max(m.radius, r3.Norm(r3.Sub(v, c)))
		}
		centers = append(centers, centroid{c: c, tri: len(m.triangles)})
		m.triangles = append(m.triangles, tri)
	}
	if len(m.triangles) == 0 {
		return nil, errors.New("all triangles collapse after welding")
	}
	m.tree = kdtree.New(centers, false)
	return m, nil
}

// Evaluate returns the signed distance from p to the mesh surface.
func (m *Mesh) Evaluate(p r3.Vec) float64 {
	q := centroid{c: p, tri: -1}
	nearest, _ := m.tree.Nearest(q)
	best := m.closest(nearest.(centroid).tri, p)

	// Any closer triangle has its centroid within radius of the surface
	// point found so far.
	r := math.Sqrt(best.dist2) + m.radius
	keep := kdtree.NewDistKeeper(r * r)
	m.tree.NearestSet(keep, q)
	for _, cd := range keep.Heap {
		c, ok := cd.Comparable.(centroid)
		if !ok {
			continue
		}
		if h := m.closest(c.tri, p); h.dist2 < best.dist2 {
			best = h
		}
	}
	return math.Copysign(math.Sqrt(best.dist2), r3.Dot(m.pseudoNormal(best), r3.Sub(p, best.point)))
}

// Bounds returns the bounding box of the mesh vertices.
func (m *Mesh) Bounds() r3.Box { return r3.Box(m.bb) }

// Triangles returns the number of indexed triangles.
func (m *Mesh) Triangles() int { return len(m.triangles) }

type feature uint8

const (
	featureV0 feature = iota
	featureV1
	featureV2
	featureE01
	featureE12
	featureE20
	featureFace
)

type meshHit struct {
	tri   int
	feat  feature
	point r3.Vec
	dist2 float64
}

func (m *Mesh) closest(tri int, p r3.Vec) meshHit {
	t := &m.triangles[tri]
	a, b, c := m.vertices[t.v[0]].p, m.vertices[t.v[1]].p, m.vertices[t.v[2]].p
	point, feat := closestOnTriangle(p, a, b, c)
	return meshHit{tri: tri, feat: feat, point: point, dist2: r3.Norm2(r3.Sub(p, point))}
}

func (m *Mesh) pseudoNormal(h meshHit) r3.Vec {
	t := &m.triangles[h.tri]
	switch h.feat {
	case featureV0, featureV1, featureV2:
		return m.vertices[t.v[h.feat]].n
	case featureE01:
		return m.edges[edgeKey(t.v[0], t.v[1])]
	case featureE12:
		return m.edges[edgeKey(t.v[1], t.v[2])]
	case featureE20:
		return m.edges[edgeKey(t.v[2], t.v[0])]
	}
	return t.n
}

func edgeKey(i, j int) [2]int {
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}
}

// closestOnTriangle returns the point of triangle abc closest to p and the
// feature it lies on, by Voronoi region of the triangle.
func closestOnTriangle(p, a, b, c r3.Vec) (r3.Vec, feature) {
	ab, ac, ap := r3.Sub(b, a), r3.Sub(c, a), r3.Sub(p, a)
	s1, s2 := r3.Dot(ab, ap), r3.Dot(ac, ap)
	if s1 <= 0 && s2 <= 0 {
		return a, featureV0
	}
	bp := r3.Sub(p, b)
	s3, s4 := r3.Dot(ab, bp), r3.Dot(ac, bp)
	if s3 >= 0 && s4 <= s3 {
		return b, featureV1
	}
	vc := s1*s4 - s3*s2
	if vc <= 0 && s1 >= 0 && s3 <= 0 {
		return r3.Add(a, r3.Scale(s1/(s1-s3), ab)), featureE01
	}
	cp := r3.Sub(p, c)
	s5, s6 := r3.Dot(ab, cp), r3.Dot(ac, cp)
	if s6 >= 0 && s5 <= s6 {
		return c, featureV2
	}
	vb := s5*s2 - s1*s6
	if vb <= 0 && s2 >= 0 && s6 <= 0 {
		return r3.Add(a, r3.Scale(s2/(s2-s6), ac)), featureE20
	}
	va := s3*s6 - s5*s4
	if va <= 0 && s4-s3 >= 0 && s5-s6 >= 0 {
		w := (s4 - s3) / ((s4 - s3) + (s5 - s6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b))), featureE12
	}
	denom := 1 / (va + vb + vc)
	return r3.Add(a, r3.Add(r3.Scale(vb*denom, ab), r3.Scale(vc*denom, ac))), featureFace
}

// centroid is a kd-tree entry locating a triangle by its centroid.
type centroid struct {
	c   r3.Vec
	tri int
}

func (c centroid) Compare(q kdtree.Comparable, d kdtree.Dim) float64 {
	o := q.(centroid)
	switch d {
	case 0:
		return c.c.X - o.c.X
	case 1:
		return c.c.Y - o.c.Y
	case 2:
		return c.c.Z - o.c.Z
	}
	panic("unreachable")
}

func (c centroid) Dims() int { return 3 }

// Distance returns the squared distance between centroids.
func (c centroid) Distance(q kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(c.c, q.(centroid).c))
}

type centroids []centroid

func (cs centroids) Index(i int) kdtree.Comparable { return cs[i] }
func (cs centroids) Len() int                      { return len(cs) }
func (cs centroids) Slice(start, end int) kdtree.Interface {
	return cs[start:end]
}

func (cs centroids) Pivot(d kdtree.Dim) int {
	p := centroidPlane{dim: d, centroids: cs}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// centroidPlane sorts centroids along one axis.
type centroidPlane struct {
	dim       kdtree.Dim
	centroids centroids
}

func (p centroidPlane) Less(i, j int) bool {
	return p.centroids[i].Compare(p.centroids[j], p.dim) < 0
}
func (p centroidPlane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}
func (p centroidPlane) Len() int { return len(p.centroids) }
func (p centroidPlane) Slice(start, end int) kdtree.SortSlicer {
	p.centroids = p.centroids[start:end]
	return p
}
