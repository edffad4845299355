package geodesy

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mat3 is a row-major 3x3 double matrix, used for rotations.
type Mat3 [3][3]float64

// Identity3 returns the 3x3 identity.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Mat3FromColumns builds a matrix whose columns are x, y and z.
func Mat3FromColumns(x, y, z r3.Vec) Mat3 {
	return Mat3{
		{x.X, y.X, z.X},
		{x.Y, y.Y, z.Y},
		{x.Z, y.Z, z.Z},
	}
}

// Column returns column i.
func (m Mat3) Column(i int) r3.Vec {
	return r3.Vec{X: m[0][i], Y: m[1][i], Z: m[2][i]}
}

// Mul returns m * o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = m[r][0]*o[0][c] + m[r][1]*o[1][c] + m[r][2]*o[2][c]
		}
	}
	return out
}

// MulVec returns m * v.
func (m Mat3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns the transpose of m.
func (m Mat3) Transpose() Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = m[c][r]
		}
	}
	return out
}

// IsOrthonormal reports whether mᵀm is the identity within tol.
func (m Mat3) IsOrthonormal(tol float64) bool {
	return m.Transpose().Mul(m).ApproxEqual(Identity3(), tol)
}

// Orthonormalize runs Gram-Schmidt over the columns of m, keeping the
// direction of the first column. A degenerate input yields the identity.
func (m Mat3) Orthonormalize() Mat3 {
	x := m.Column(0)
	y := m.Column(1)
	if r3.Norm(x) == 0 {
		return Identity3()
	}
	x = r3.Unit(x)
	y = r3.Sub(y, r3.Scale(r3.Dot(x, y), x))
	if r3.Norm(y) == 0 {
		return Identity3()
	}
	y = r3.Unit(y)
	z := r3.Cross(x, y)
	if r3.Dot(z, m.Column(2)) < 0 {
		// keep the handedness the caller asked for
		z = r3.Scale(-1, z)
	}
	return Mat3FromColumns(x, y, z)
}

// Inverse returns the inverse of m. Orthonormal matrices take the exact
// transpose path; anything else is solved by gonum's LU. ok is false when m
// is singular.
func (m Mat3) Inverse() (inv Mat3, ok bool) {
	if m.IsOrthonormal(1e-12) {
		return m.Transpose(), true
	}
	d := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	var res mat.Dense
	if err := res.Inverse(d); err != nil {
		// gonum reports ill-conditioned results as mat.Condition and still
		// fills res; an infinite condition number means truly singular.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Identity3(), false
		}
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			inv[r][c] = res.At(r, c)
		}
	}
	return inv, true
}

// ApproxEqual compares element-wise within an absolute tolerance.
func (m Mat3) ApproxEqual(o Mat3, tol float64) bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if !scalar.EqualWithinAbs(m[r][c], o[r][c], tol) {
				return false
			}
		}
	}
	return true
}

// Mat4 is a row-major 4x4 double affine matrix. Points are column vectors,
// so translation lives in column 3.
type Mat4 [4][4]float64

// Identity4 returns the 4x4 identity.
func Identity4() Mat4 {
	return Mat4{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Translation returns a pure translation by t.
func Translation(t r3.Vec) Mat4 {
	m := Identity4()
	m[0][3], m[1][3], m[2][3] = t.X, t.Y, t.Z
	return m
}

// FromRotation embeds a 3x3 linear part into an affine matrix with no translation.
func FromRotation(r Mat3) Mat4 {
	return Compose(r, r3.Vec{})
}

// Compose builds the affine matrix with linear part r and translation t.
func Compose(r Mat3, t r3.Vec) Mat4 {
	return Mat4{
		{r[0][0], r[0][1], r[0][2], t.X},
		{r[1][0], r[1][1], r[1][2], t.Y},
		{r[2][0], r[2][1], r[2][2], t.Z},
		{0, 0, 0, 1},
	}
}

// Linear returns the upper-left 3x3 block.
func (m Mat4) Linear() Mat3 {
	return Mat3{
		{m[0][0], m[0][1], m[0][2]},
		{m[1][0], m[1][1], m[1][2]},
		{m[2][0], m[2][1], m[2][2]},
	}
}

// Translation returns column 3 as a vector.
func (m Mat4) Translation() r3.Vec {
	return r3.Vec{X: m[0][3], Y: m[1][3], Z: m[2][3]}
}

// Column returns the xyz part of column i.
func (m Mat4) Column(i int) r3.Vec {
	return r3.Vec{X: m[0][i], Y: m[1][i], Z: m[2][i]}
}

// Mul returns m * o, i.e. o is applied first.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r][c] = m[r][0]*o[0][c] + m[r][1]*o[1][c] + m[r][2]*o[2][c] + m[r][3]*o[3][c]
		}
	}
	return out
}

// MulPoint transforms p as a position (w = 1).
func (m Mat4) MulPoint(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3],
		Y: m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3],
		Z: m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3],
	}
}

// MulDirection transforms d as a direction (w = 0).
func (m Mat4) MulDirection(d r3.Vec) r3.Vec {
	return m.Linear().MulVec(d)
}

// AffineInverse inverts an affine matrix (bottom row 0 0 0 1) through its
// linear block, which keeps the result exactly affine. ok is false when the
// linear block is singular.
func (m Mat4) AffineInverse() (Mat4, bool) {
	lin, ok := m.Linear().Inverse()
	if !ok {
		return Identity4(), false
	}
	t := lin.MulVec(m.Translation())
	return Compose(lin, r3.Scale(-1, t)), true
}

// ApproxEqual compares element-wise within an absolute tolerance.
func (m Mat4) ApproxEqual(o Mat4, tol float64) bool {
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if !scalar.EqualWithinAbs(m[r][c], o[r][c], tol) {
				return false
			}
		}
	}
	return true
}

// Dense copies m into a gonum matrix.
func (m Mat4) Dense() *mat.Dense {
	d := mat.NewDense(4, 4, nil)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			d.Set(r, c, m[r][c])
		}
	}
	return d
}
