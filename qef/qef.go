// Package qef implements a solver for the quadratic error function used
// by dual contouring to place one vertex per surface cell.
//
// Each constraint is a plane given by a point on the surface and the
// surface normal there. The solver minimises the sum of squared distances
// to all planes:
//
//	E(x) = Σ (nᵢ·x - nᵢ·pᵢ)² = xᵀAᵀAx - 2xᵀAᵀb + bᵀb
//
// Only AᵀA, Aᵀb and bᵀb are stored so that accumulators of neighbouring
// cells can be merged by plain addition.
package qef

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultErrorTolerance = 1e-6
	DefaultSweeps         = 4
	DefaultPinvTolerance  = 1e-6
)

// Data is the accumulated normal-equation state of a QEF. The zero value
// is an empty accumulator.
type Data struct {
	// ATA is the symmetric matrix AᵀA packed as 00, 01, 02, 11, 12, 22.
	ATA          [6]float64
	ATb          r3.Vec
	BTb          float64
	MassPointSum r3.Vec
	NumPoints    int
}

// Add merges the constraints of other into d.
func (d *Data) Add(other Data) {
	for i := range d.ATA {
		d.ATA[i] += other.ATA[i]
	}
	d.ATb = r3.Add(d.ATb, other.ATb)
	d.BTb += other.BTb
	d.MassPointSum = r3.Add(d.MassPointSum, other.MassPointSum)
	d.NumPoints += other.NumPoints
}

// MassPoint returns the average of all accumulated points or the zero
// vector if there are none.
func (d Data) MassPoint() r3.Vec {
	if d.NumPoints == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/float64(d.NumPoints), d.MassPointSum)
}

// ErrorAt evaluates the residual sum of squares at x.
func (d Data) ErrorAt(x r3.Vec) float64 {
	a := symMat3(d.ATA)
	return r3.Dot(x, a.mulVec(x)) - 2*r3.Dot(x, d.ATb) + d.BTb
}

// Params bundles the tolerances handed to Solver.Solve.
type Params struct {
	ErrorTolerance float64
	Sweeps         int
	PinvTolerance  float64
}

// DefaultParams returns the tolerances used by the octree builder.
func DefaultParams() Params {
	return Params{
		ErrorTolerance: DefaultErrorTolerance,
		Sweeps:         DefaultSweeps,
		PinvTolerance:  DefaultPinvTolerance,
	}
}

// Solver accumulates plane constraints and solves for their least squares
// intersection. The zero value is ready to use.
type Solver struct {
	data        Data
	x           r3.Vec
	hasSolution bool
}

// Add accumulates the plane through p with normal n. The normal is
// normalised; a zero normal only contributes to the mass point.
func (s *Solver) Add(p, n r3.Vec) {
	s.hasSolution = false
	if l := r3.Norm(n); l > 0 {
		n = r3.Scale(1/l, n)
	}
	s.data.ATA[0] += n.X * n.X
	s.data.ATA[1] += n.X * n.Y
	s.data.ATA[2] += n.X * n.Z
	s.data.ATA[3] += n.Y * n.Y
	s.data.ATA[4] += n.Y * n.Z
	s.data.ATA[5] += n.Z * n.Z
	dot := r3.Dot(n, p)
	s.data.ATb = r3.Add(s.data.ATb, r3.Scale(dot, n))
	s.data.BTb += dot * dot
	s.data.MassPointSum = r3.Add(s.data.MassPointSum, p)
	s.data.NumPoints++
}

// AddData merges a previously accumulated QEF into s.
func (s *Solver) AddData(d Data) {
	s.hasSolution = false
	s.data.Add(d)
}

// Data returns a copy of the accumulated state.
func (s *Solver) Data() Data { return s.data }

// Reset clears all constraints.
func (s *Solver) Reset() { *s = Solver{} }

// MassPoint returns the average of all accumulated points.
func (s *Solver) MassPoint() r3.Vec { return s.data.MassPoint() }

// ErrorAt evaluates the residual sum of squares at x.
func (s *Solver) ErrorAt(x r3.Vec) float64 { return s.data.ErrorAt(x) }

// Error returns the residual at the last solution, or 0 if Solve has not
// been called since the last constraint was added.
func (s *Solver) Error() float64 {
	if !s.hasSolution {
		return 0
	}
	return s.data.ErrorAt(s.x)
}

// Solve returns the point minimising the accumulated QEF and the residual
// there. The system is shifted to hint before solving so that directions
// the constraints leave free resolve to hint; callers usually pass
// MassPoint. At most sweeps Jacobi sweeps are run and eigenvalues below
// pinvTol are discarded from the pseudo-inverse. A solver without
// constraints returns the zero vector. A non-finite solution falls back to
// the mass point.
func (s *Solver) Solve(hint r3.Vec, errTol float64, sweeps int, pinvTol float64) (r3.Vec, float64) {
	if s.data.NumPoints == 0 {
		s.x = r3.Vec{}
		s.hasSolution = true
		return s.x, 0
	}
	ata := symMat3(s.data.ATA)
	atb := r3.Sub(s.data.ATb, ata.mulVec(hint))
	x := solveSymmetric(ata, atb, errTol, sweeps, pinvTol)
	x = r3.Add(x, hint)
	if !finite(x) {
		x = s.data.MassPoint()
	}
	s.x = x
	s.hasSolution = true
	return x, s.data.ErrorAt(x)
}

// SolveParams is Solve with tolerances taken from p.
func (s *Solver) SolveParams(hint r3.Vec, p Params) (r3.Vec, float64) {
	return s.Solve(hint, p.ErrorTolerance, p.Sweeps, p.PinvTolerance)
}

func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
