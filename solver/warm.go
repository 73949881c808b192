package solver

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PrimalSeeder converts a primal estimate x̄ into the lifted initial point
// v⁰ = ψ(x̄, L), one vector per node. The routine is supplied by the caller
// (it depends on the matrix-design method that produced the pair); it must
// be pure and its output must sum to zero across nodes.
type PrimalSeeder func(xbar []float64, l mat.Matrix) ([][]float64, error)

// seed builds the initial lifted point v⁰ from the configured warm starts.
// Order matters: the primal seed is computed first, then the dual warm
// start is added component-wise. With neither configured, v⁰ is all zeros.
func (s *Solver) seed() ([][]float64, error) {
	m := s.shape.Size()
	v0 := make([][]float64, s.n)
	for i := range v0 {
		v0[i] = make([]float64, m)
	}

	if s.cfg.warmPrimal != nil {
		seeded, err := s.cfg.seeder(s.cfg.warmPrimal, s.l)
		if err != nil {
			return nil, fmt.Errorf("warm-start primal seeding failed: %w", err)
		}
		if len(seeded) != s.n {
			return nil, fmt.Errorf("%w: primal seeder produced %d vectors for %d nodes",
				ErrShapeMismatch, len(seeded), s.n)
		}
		for i, u := range seeded {
			if len(u) != m {
				return nil, fmt.Errorf("%w: primal seed for node %d has length %d, want %d",
					ErrShapeMismatch, i, len(u), m)
			}
			copy(v0[i], u)
		}
	}

	if s.cfg.warmDual != nil {
		for i, u := range s.cfg.warmDual {
			floats.Add(v0[i], u)
		}
	}

	return v0, nil
}
