package qef

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// symMat3 is a symmetric 3x3 matrix packed as 00, 01, 02, 11, 12, 22.
type symMat3 [6]float64

type mat3 [3][3]float64

func (m symMat3) mulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[1]*v.X + m[3]*v.Y + m[4]*v.Z,
		Z: m[2]*v.X + m[4]*v.Y + m[5]*v.Z,
	}
}

func (m symMat3) full() mat3 {
	return mat3{
		{m[0], m[1], m[2]},
		{m[1], m[3], m[4]},
		{m[2], m[4], m[5]},
	}
}

func identity3() mat3 {
	return mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func (a *mat3) frobenius() float64 {
	var sum float64
	for i := range a {
		for j := range a[i] {
			sum += a[i][j] * a[i][j]
		}
	}
	return math.Sqrt(sum)
}

func (a *mat3) offDiagonal() float64 {
	return math.Sqrt(2 * (a[0][1]*a[0][1] + a[0][2]*a[0][2] + a[1][2]*a[1][2]))
}

// eigenSym diagonalises m with cyclic Jacobi rotations so that
// m = V·diag(values)·Vᵀ. Iteration stops after sweeps full sweeps or once
// the off-diagonal norm drops below tol relative to the norm of m.
func eigenSym(m symMat3, tol float64, sweeps int) (values [3]float64, v mat3) {
	a := m.full()
	v = identity3()
	delta := tol * a.frobenius()
	for sweep := 0; sweep < sweeps; sweep++ {
		if a.offDiagonal() <= delta {
			break
		}
		jacobiRotate(&a, &v, 0, 1)
		jacobiRotate(&a, &v, 0, 2)
		jacobiRotate(&a, &v, 1, 2)
	}
	return [3]float64{a[0][0], a[1][1], a[2][2]}, v
}

// jacobiRotate zeroes a[p][q] with a plane rotation J, replacing a with
// Jᵀ·a·J and v with v·J.
func jacobiRotate(a, v *mat3, p, q int) {
	apq := a[p][q]
	if apq == 0 {
		return
	}
	theta := (a[q][q] - a[p][p]) / (2 * apq)
	t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
	if theta < 0 {
		t = -t
	}
	c := 1 / math.Sqrt(t*t+1)
	s := t * c
	a[p][p] -= t * apq
	a[q][q] += t * apq
	a[p][q], a[q][p] = 0, 0
	for r := 0; r < 3; r++ {
		if r == p || r == q {
			continue
		}
		arp, arq := a[r][p], a[r][q]
		a[r][p] = c*arp - s*arq
		a[p][r] = a[r][p]
		a[r][q] = s*arp + c*arq
		a[q][r] = a[r][q]
	}
	for r := 0; r < 3; r++ {
		vrp, vrq := v[r][p], v[r][q]
		v[r][p] = c*vrp - s*vrq
		v[r][q] = s*vrp + c*vrq
	}
}

func pinvValue(x, tol float64) float64 {
	if math.Abs(x) < tol || math.Abs(1/x) < tol {
		return 0
	}
	return 1 / x
}

// solveSymmetric returns the pseudo-inverse solution of a·x = b.
func solveSymmetric(a symMat3, b r3.Vec, tol float64, sweeps int, pinvTol float64) r3.Vec {
	sigma, v := eigenSym(a, tol, sweeps)
	inv := [3]float64{
		pinvValue(sigma[0], pinvTol),
		pinvValue(sigma[1], pinvTol),
		pinvValue(sigma[2], pinvTol),
	}
	// x = V·diag(inv)·Vᵀ·b
	var vtb [3]float64
	bv := [3]float64{b.X, b.Y, b.Z}
	for k := 0; k < 3; k++ {
		for r := 0; r < 3; r++ {
			vtb[k] += v[r][k] * bv[r]
		}
		vtb[k] *= inv[k]
	}
	var x [3]float64
	for r := 0; r < 3; r++ {
		for k := 0; k < 3; k++ {
			x[r] += v[r][k] * vtb[k]
		}
	}
	return r3.Vec{X: x[0], Y: x[1], Z: x[2]}
}
