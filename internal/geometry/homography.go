// Package geometry implements planar homography estimation and application,
// mapping image pixel coordinates to court coordinates in meters.
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput is returned for malformed or degenerate point sets.
	ErrInvalidInput = errors.New("invalid homography input")
	// ErrSingularMatrix is returned when a matrix cannot be inverted.
	ErrSingularMatrix = errors.New("singular matrix")
)

// Point is a 2D coordinate. It marshals as a two-element JSON array to match
// the persisted calibration format.
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("point must be a [x, y] pair: %w", err)
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// Matrix3 is a row-major 3x3 projective transform.
type Matrix3 [3][3]float64

// ComputeHomography estimates the homography H such that H maps imagePts onto
// courtPts. At least four correspondences are required, and both slices must
// have the same length.
//
// The estimate comes from the Direct Linear Transform system: each
// correspondence (x,y)->(u,v) contributes the rows
//
//	[-x -y -1  0  0  0  ux uy u]
//	[ 0  0  0 -x -y -1  vx vy v]
//
// The null vector is found by pinning h33 = 1 and solving the resulting
// linear system, which is exact for four correspondences and a least-squares
// fit for more. The matrix is normalized so the bottom-right entry is 1.
func ComputeHomography(imagePts, courtPts []Point) (Matrix3, error) {
	if len(imagePts) < 4 || len(courtPts) < 4 {
		return Matrix3{}, fmt.Errorf("%w: at least four point correspondences are required", ErrInvalidInput)
	}
	if len(imagePts) != len(courtPts) {
		return Matrix3{}, fmt.Errorf("%w: image points and court points must have the same length", ErrInvalidInput)
	}

	// With h33 pinned to 1 the DLT rows reduce to two equations per
	// correspondence in the remaining eight unknowns:
	//   h11*x + h12*y + h13 - h31*u*x - h32*u*y = u
	//   h21*x + h22*y + h23 - h31*v*x - h32*v*y = v
	n := len(imagePts)
	rows := make([][8]float64, 0, 2*n)
	rhs := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		x, y := imagePts[i].X, imagePts[i].Y
		u, v := courtPts[i].X, courtPts[i].Y
		rows = append(rows,
			[8]float64{x, y, 1, 0, 0, 0, -u * x, -u * y},
			[8]float64{0, 0, 0, x, y, 1, -v * x, -v * y},
		)
		rhs = append(rhs, u, v)
	}

	// Normal equations: (Aᵀ A) h = Aᵀ b. For the exact four-point case this
	// is equivalent to solving the square system directly.
	var ata [8][8]float64
	var atb [8]float64
	for r, row := range rows {
		for i := 0; i < 8; i++ {
			atb[i] += row[i] * rhs[r]
			for j := 0; j < 8; j++ {
				ata[i][j] += row[i] * row[j]
			}
		}
	}

	h, ok := solve8(ata, atb)
	if !ok {
		return Matrix3{}, fmt.Errorf("%w: degenerate point configuration", ErrInvalidInput)
	}

	return Matrix3{
		{h[0], h[1], h[2]},
		{h[3], h[4], h[5]},
		{h[6], h[7], 1},
	}, nil
}

// solve8 solves an 8x8 linear system by Gaussian elimination with partial
// pivoting. Returns false if the system is singular.
func solve8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	const eps = 1e-12
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < eps {
			return [8]float64{}, false
		}
		if pivot != col {
			a[pivot], a[col] = a[col], a[pivot]
			b[pivot], b[col] = b[col], b[pivot]
		}
		for r := col + 1; r < 8; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < 8; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	var x [8]float64
	for row := 7; row >= 0; row-- {
		sum := b[row]
		for c := row + 1; c < 8; c++ {
			sum -= a[row][c] * x[c]
		}
		x[row] = sum / a[row][row]
	}
	return x, true
}

// Invert returns the inverse homography, renormalized so the bottom-right
// entry is 1. Returns ErrSingularMatrix for non-invertible input.
func (m Matrix3) Invert() (Matrix3, error) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-12 {
		return Matrix3{}, ErrSingularMatrix
	}

	adj := Matrix3{
		{
			m[1][1]*m[2][2] - m[1][2]*m[2][1],
			m[0][2]*m[2][1] - m[0][1]*m[2][2],
			m[0][1]*m[1][2] - m[0][2]*m[1][1],
		},
		{
			m[1][2]*m[2][0] - m[1][0]*m[2][2],
			m[0][0]*m[2][2] - m[0][2]*m[2][0],
			m[0][2]*m[1][0] - m[0][0]*m[1][2],
		},
		{
			m[1][0]*m[2][1] - m[1][1]*m[2][0],
			m[0][1]*m[2][0] - m[0][0]*m[2][1],
			m[0][0]*m[1][1] - m[0][1]*m[1][0],
		},
	}

	var inv Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] = adj[i][j] / det
		}
	}

	if math.Abs(inv[2][2]) < 1e-12 {
		return Matrix3{}, ErrSingularMatrix
	}
	scale := inv[2][2]
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] /= scale
		}
	}
	return inv, nil
}

// Apply transforms each point through the homography with perspective
// division. An empty input yields an empty, non-nil slice.
func (m Matrix3) Apply(pts []Point) []Point {
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		x := m[0][0]*p.X + m[0][1]*p.Y + m[0][2]
		y := m[1][0]*p.X + m[1][1]*p.Y + m[1][2]
		w := m[2][0]*p.X + m[2][1]*p.Y + m[2][2]
		out = append(out, Point{X: x / w, Y: y / w})
	}
	return out
}
