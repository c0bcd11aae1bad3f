/*

Integer 3D Vectors

*/

package dcterrain

import "gonum.org/v1/gonum/spatial/r3"

// V3i is a 3D integer vector. Octree cells use it for their minimum corner.
type V3i [3]int

// Add adds two vectors. Return v = a + b.
func (a V3i) Add(b V3i) V3i {
	return V3i{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// Scale multiplies each component of the vector by k.
func (a V3i) Scale(k int) V3i {
	return V3i{a[0] * k, a[1] * k, a[2] * k}
}

// ToV3 converts V3i (integer) to r3.Vec (float).
func (a V3i) ToV3() r3.Vec {
	return r3.Vec{X: float64(a[0]), Y: float64(a[1]), Z: float64(a[2])}
}
