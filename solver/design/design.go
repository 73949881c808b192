// Package design provides prebuilt (W, Z) design-matrix pairs for common
// resolvent splittings.
//
// Each pair is returned in the convention the solver validates: W symmetric
// with zero row sums, Z strictly lower triangular (only the entries the
// resolvent sweep reads). The derived pre-resolvent matrix is
// L = −strict_lower(Z).
package design

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MalitskyTam returns the Malitsky–Tam chain splitting for n ≥ 2 operators:
// W is tridiagonal with diagonal [1, 2, …, 2, 1] and −1 off-diagonals, and
// each resolvent after the first consumes only its predecessor's iterate.
// The communication graph is a path, the minimum any frugal splitting can
// use.
func MalitskyTam(n int) (w, z *mat.Dense, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("malitsky-tam requires at least 2 operators, got %d", n)
	}

	w = mat.NewDense(n, n, nil)
	z = mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		switch i {
		case 0, n - 1:
			w.Set(i, i, 1)
		default:
			w.Set(i, i, 2)
		}
		if i > 0 {
			w.Set(i, i-1, -1)
			w.Set(i-1, i, -1)
			z.Set(i, i-1, -1)
		}
	}
	return w, z, nil
}

// FullyConnected returns the uniform all-to-all splitting for n ≥ 2
// operators: W = 2(I − 𝟙𝟙ᵀ/n), with every pair of nodes exchanging
// iterates each round. Convergence per round is the strongest of the
// prebuilt designs, paid for with dense communication.
func FullyConnected(n int) (w, z *mat.Dense, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("fully connected design requires at least 2 operators, got %d", n)
	}

	off := -2.0 / float64(n)
	w = mat.NewDense(n, n, nil)
	z = mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		w.Set(i, i, 2+off)
		for j := 0; j < n; j++ {
			if j != i {
				w.Set(i, j, off)
			}
			if j < i {
				z.Set(i, j, off)
			}
		}
	}
	return w, z, nil
}

// DouglasRachford returns the classic two-operator Douglas–Rachford pair:
//
//	W = ⎡ 1 −1⎤   L = ⎡0 0⎤
//	    ⎣−1  1⎦       ⎣2 0⎦
//
// Pair it with γ = 0.5 to recover the textbook averaged iteration.
func DouglasRachford() (w, z *mat.Dense) {
	w = mat.NewDense(2, 2, []float64{1, -1, -1, 1})
	z = mat.NewDense(2, 2, []float64{0, 0, -2, 0})
	return w, z
}
