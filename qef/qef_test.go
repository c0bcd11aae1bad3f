package qef

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSolveCorner(t *testing.T) {
	corner := r3.Vec{X: 1, Y: 2, Z: 3}
	var s Solver
	s.Add(corner, r3.Vec{X: 1})
	s.Add(r3.Add(corner, r3.Vec{X: 0.5}), r3.Vec{Y: -2}) // normal length does not matter.
	s.Add(r3.Add(corner, r3.Vec{X: 0.25}), r3.Vec{Z: 1})
	x, e := s.SolveParams(s.MassPoint(), DefaultParams())
	require.InDelta(t, corner.X, x.X, 1e-9)
	require.InDelta(t, corner.Y, x.Y, 1e-9)
	require.InDelta(t, corner.Z, x.Z, 1e-9)
	require.InDelta(t, 0, e, 1e-12)
	require.InDelta(t, 0, s.Error(), 1e-12)
}

func TestSolvePlaneFallsToMassPoint(t *testing.T) {
	// All constraints are the same plane y=0: the free directions resolve
	// to the mass point.
	var s Solver
	s.Add(r3.Vec{X: 0, Y: 0, Z: 0}, r3.Vec{Y: 1})
	s.Add(r3.Vec{X: 2, Y: 0, Z: 1}, r3.Vec{Y: 1})
	x, e := s.Solve(s.MassPoint(), DefaultErrorTolerance, DefaultSweeps, DefaultPinvTolerance)
	require.InDelta(t, 1, x.X, 1e-12)
	require.InDelta(t, 0, x.Y, 1e-12)
	require.InDelta(t, 0.5, x.Z, 1e-12)
	require.InDelta(t, 0, e, 1e-12)
	require.Equal(t, r3.Vec{X: 1, Z: 0.5}, s.MassPoint())
}

func TestSolveHint(t *testing.T) {
	// One plane y=1 leaves x and z to the hint.
	var s Solver
	s.Add(r3.Vec{Y: 1}, r3.Vec{Y: 1})
	hint := r3.Vec{X: 2, Y: 5, Z: -3}
	x, e := s.SolveParams(hint, DefaultParams())
	require.InDelta(t, 2, x.X, 1e-12)
	require.InDelta(t, 1, x.Y, 1e-12)
	require.InDelta(t, -3, x.Z, 1e-12)
	require.InDelta(t, 0, e, 1e-12)

	// A fully constrained corner ignores the hint.
	s.Add(r3.Vec{X: 1}, r3.Vec{X: 1})
	s.Add(r3.Vec{Z: 1}, r3.Vec{Z: 1})
	x, _ = s.SolveParams(hint, DefaultParams())
	require.InDelta(t, 1, x.X, 1e-9)
	require.InDelta(t, 1, x.Y, 1e-9)
	require.InDelta(t, 1, x.Z, 1e-9)
}

func TestSolveEmpty(t *testing.T) {
	var s Solver
	x, e := s.SolveParams(r3.Vec{X: 3}, DefaultParams())
	require.Equal(t, r3.Vec{}, x)
	require.Zero(t, e)
	require.Equal(t, r3.Vec{}, s.MassPoint())
}

func TestMergeMatchesReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	points, normals := randomPlanes(rng, 9)
	var all, a, b Solver
	for i := range points {
		all.Add(points[i], normals[i])
		if i%2 == 0 {
			a.Add(points[i], normals[i])
		} else {
			b.Add(points[i], normals[i])
		}
	}
	var merged Solver
	merged.AddData(a.Data())
	merged.AddData(b.Data())
	got, want := merged.Data(), all.Data()
	for i := range want.ATA {
		require.InDelta(t, want.ATA[i], got.ATA[i], 1e-12)
	}
	require.InDelta(t, want.BTb, got.BTb, 1e-12)
	require.Equal(t, want.NumPoints, got.NumPoints)

	xm, em := merged.SolveParams(merged.MassPoint(), DefaultParams())
	xa, ea := all.SolveParams(all.MassPoint(), DefaultParams())
	require.InDelta(t, 0, r3.Norm(r3.Sub(xm, xa)), 1e-9)
	require.InDelta(t, ea, em, 1e-9)
}

func TestSolveMatchesLeastSquares(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		points, normals := randomPlanes(rng, 6)
		var s Solver
		A := mat.NewDense(len(points), 3, nil)
		b := mat.NewVecDense(len(points), nil)
		for i := range points {
			s.Add(points[i], normals[i])
			n := r3.Unit(normals[i])
			A.SetRow(i, []float64{n.X, n.Y, n.Z})
			b.SetVec(i, r3.Dot(n, points[i]))
		}
		var want mat.VecDense
		err := want.SolveVec(A, b)
		require.NoError(t, err)

		got, e := s.SolveParams(s.MassPoint(), DefaultParams())
		require.InDelta(t, want.AtVec(0), got.X, 1e-6, "trial %d", trial)
		require.InDelta(t, want.AtVec(1), got.Y, 1e-6, "trial %d", trial)
		require.InDelta(t, want.AtVec(2), got.Z, 1e-6, "trial %d", trial)

		var resid mat.VecDense
		resid.MulVec(A, &want)
		resid.SubVec(&resid, b)
		require.InDelta(t, mat.Dot(&resid, &resid), e, 1e-6, "trial %d", trial)
	}
}

func TestEigenSymReconstructs(t *testing.T) {
	m := symMat3{4, 1, -2, 2, 0.5, 3}
	values, v := eigenSym(m, 1e-12, 10)
	full := m.full()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += v[i][k] * values[k] * v[j][k]
			}
			require.InDelta(t, full[i][j], sum, 1e-9)
		}
	}
}

func TestPinvTruncates(t *testing.T) {
	require.Zero(t, pinvValue(1e-9, 1e-6))
	require.Zero(t, pinvValue(1e9, 1e-6))
	require.Equal(t, 0.5, pinvValue(2, 1e-6))
	require.False(t, math.IsInf(pinvValue(0, 1e-6), 0))
}

func randomPlanes(rng *rand.Rand, n int) (points, normals []r3.Vec) {
	for i := 0; i < n; i++ {
		points = append(points, r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()})
		normals = append(normals, r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
	}
	return points, normals
}
