package solver_test

import (
	"math"
	"testing"

	"github.com/dshills/resolve-go/solver"
	"github.com/dshills/resolve-go/solver/design"
	"github.com/dshills/resolve-go/solver/prox"
	"gonum.org/v1/gonum/mat"
)

// quadFour builds four distinct two-dimensional quadratic resolvents; a
// fresh set per run keeps runs independent.
func quadFour() []solver.Resolvent {
	centers := [][]float64{{1, -2}, {3, 0.5}, {-1, 4}, {0.25, -0.75}}
	rs := make([]solver.Resolvent, len(centers))
	for i, c := range centers {
		rs[i] = prox.NewQuad(c)
	}
	return rs
}

// The parallel engine reproduces the serial recurrence round for round:
// identical inputs give identical iterates after any number of rounds.
func TestSerialParallelEquivalence(t *testing.T) {
	n := 4
	w, z, err := design.MalitskyTam(n)
	if err != nil {
		t.Fatalf("MalitskyTam failed: %v", err)
	}

	dual := [][]float64{{0.5, -1}, {-0.25, 0.5}, {-0.5, 0.25}, {0.25, 0.25}}

	for _, itrs := range []int{1, 2, 3, 10, 25} {
		newSolver := func() *solver.Solver {
			s, err := solver.New(quadFour(), w, z,
				solver.WithIterations(itrs),
				solver.WithWarmStartDual(dual),
			)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			return s
		}

		serial, err := newSolver().RunSerial(runCtx(t), "equiv-serial")
		if err != nil {
			t.Fatalf("RunSerial(%d) failed: %v", itrs, err)
		}
		parallel, err := newSolver().RunParallel(runCtx(t), "equiv-parallel")
		if err != nil {
			t.Fatalf("RunParallel(%d) failed: %v", itrs, err)
		}

		for i := 0; i < n; i++ {
			for d := range serial.Nodes[i].X {
				if diff := math.Abs(serial.Nodes[i].X[d] - parallel.Nodes[i].X[d]); diff > floatTol {
					t.Errorf("itrs=%d node %d x[%d]: serial %v vs parallel %v",
						itrs, i, d, serial.Nodes[i].X[d], parallel.Nodes[i].X[d])
				}
				if diff := math.Abs(serial.Nodes[i].V[d] - parallel.Nodes[i].V[d]); diff > floatTol {
					t.Errorf("itrs=%d node %d v[%d]: serial %v vs parallel %v",
						itrs, i, d, serial.Nodes[i].V[d], parallel.Nodes[i].V[d])
				}
			}
		}
		for d := range serial.XBar {
			if diff := math.Abs(serial.XBar[d] - parallel.XBar[d]); diff > floatTol {
				t.Errorf("itrs=%d XBar[%d]: serial %v vs parallel %v",
					itrs, d, serial.XBar[d], parallel.XBar[d])
			}
		}
	}
}

// Σᵢ vᵢ stays zero across rounds whenever it starts at zero: W·1 = 0 makes
// every consensus step sum-preserving.
func TestLiftSumZeroPreserved(t *testing.T) {
	n := 4
	w, z, err := design.FullyConnected(n)
	if err != nil {
		t.Fatalf("FullyConnected failed: %v", err)
	}

	dual := [][]float64{{0.5, -1}, {-0.25, 0.5}, {-0.5, 0.25}, {0.25, 0.25}}

	for _, itrs := range []int{0, 1, 5, 50} {
		s, err := solver.New(quadFour(), w, z,
			solver.WithIterations(itrs),
			solver.WithWarmStartDual(dual),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		res, err := s.RunParallel(runCtx(t), "lift-sum")
		if err != nil {
			t.Fatalf("RunParallel failed: %v", err)
		}

		for d := 0; d < 2; d++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += res.Nodes[i].V[d]
			}
			if math.Abs(sum) > 1e-10 {
				t.Errorf("itrs=%d: Σv[%d] = %v, want 0", itrs, d, sum)
			}
		}
	}
}

// A solution with a zero lifted variable is a fixed point: one round moves
// nothing.
func TestFixedPointStationary(t *testing.T) {
	n := 4
	w, z, err := design.MalitskyTam(n)
	if err != nil {
		t.Fatalf("MalitskyTam failed: %v", err)
	}

	// All operators centered at zero: x* = 0 solves 0 ∈ ΣAᵢ(x), and the
	// matching lifted point is v = 0.
	resolvents := make([]solver.Resolvent, n)
	for i := range resolvents {
		resolvents[i] = prox.NewQuad([]float64{0, 0})
	}

	s, err := solver.New(resolvents, w, z, solver.WithIterations(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := s.RunParallel(runCtx(t), "fixed-point")
	if err != nil {
		t.Fatalf("RunParallel failed: %v", err)
	}

	for i, node := range res.Nodes {
		for d := range node.X {
			if math.Abs(node.X[d]) > 1e-12 {
				t.Errorf("Node %d x[%d] = %v, want 0", i, d, node.X[d])
			}
			if math.Abs(node.V[d]) > 1e-12 {
				t.Errorf("Node %d v[%d] = %v, want 0", i, d, node.V[d])
			}
		}
	}
}

// Dual warm-starting with the lifted state of a finished run reproduces
// that state: seeding is additive on v⁰.
func TestWarmStartAdditivity(t *testing.T) {
	w, z := design.DouglasRachford()

	runA, err := solver.New(quadPair(), w, z,
		solver.WithGamma(0.5),
		solver.WithIterations(100),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	resA, err := runA.RunParallel(runCtx(t), "warm-a")
	if err != nil {
		t.Fatalf("RunParallel failed: %v", err)
	}

	dual := [][]float64{resA.Nodes[0].V, resA.Nodes[1].V}
	runB, err := solver.New(quadPair(), w, z,
		solver.WithGamma(0.5),
		solver.WithIterations(0),
		solver.WithWarmStartDual(dual),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	resB, err := runB.RunParallel(runCtx(t), "warm-b")
	if err != nil {
		t.Fatalf("RunParallel failed: %v", err)
	}

	if resB.Iterations != 0 {
		t.Errorf("Expected 0 iterations, got %d", resB.Iterations)
	}
	for i := range dual {
		for d := range dual[i] {
			if resB.Nodes[i].V[d] != resA.Nodes[i].V[d] {
				t.Errorf("Node %d v[%d]: warm-started %v, want %v",
					i, d, resB.Nodes[i].V[d], resA.Nodes[i].V[d])
			}
		}
	}
}

// Primal warm starts flow through the injected seeding routine.
func TestWarmStartPrimalSeeder(t *testing.T) {
	w, z := design.DouglasRachford()

	// The seeding routine is external; tests mock it with a fixed output
	// that sums to zero.
	seeded := [][]float64{{0.25, -0.5}, {-0.25, 0.5}}
	seeder := func(_ []float64, _ mat.Matrix) ([][]float64, error) {
		return seeded, nil
	}

	s, err := solver.New(quadPair(), w, z,
		solver.WithIterations(0),
		solver.WithWarmStartPrimal([]float64{0.5, 0.5}, seeder),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := s.RunParallel(runCtx(t), "warm-primal")
	if err != nil {
		t.Fatalf("RunParallel failed: %v", err)
	}

	for i := range seeded {
		for d := range seeded[i] {
			if res.Nodes[i].V[d] != seeded[i][d] {
				t.Errorf("Node %d v[%d] = %v, want seeded %v", i, d, res.Nodes[i].V[d], seeded[i][d])
			}
		}
	}
}

// The serial engine stops on iterate movement below vartol.
func TestSerialVarTolStopping(t *testing.T) {
	w, z := design.DouglasRachford()
	s, err := solver.New(quadPair(), w, z,
		solver.WithGamma(0.5),
		solver.WithIterations(500),
		solver.WithVarTol(1e-8),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := s.RunSerial(runCtx(t), "serial-vartol")
	if err != nil {
		t.Fatalf("RunSerial failed: %v", err)
	}

	if !res.Terminated {
		t.Error("Expected vartol-based termination")
	}
	if res.Iterations >= 500 {
		t.Errorf("Expected early stop, ran %d iterations", res.Iterations)
	}
	for i, want := range []float64{0.5, 0.5} {
		if math.Abs(res.XBar[i]-want) > 1e-4 {
			t.Errorf("XBar[%d] = %v, want ~%v", i, res.XBar[i], want)
		}
	}
}

// The serial engine stops when the objective value stalls.
func TestSerialObjectiveStopping(t *testing.T) {
	w, z := design.DouglasRachford()
	centers := [][]float64{{1, 0}, {0, 1}}
	objective := func(x []float64) float64 {
		sum := 0.0
		for _, c := range centers {
			for d := range x {
				diff := x[d] - c[d]
				sum += 0.5 * diff * diff
			}
		}
		return sum
	}

	s, err := solver.New(quadPair(), w, z,
		solver.WithGamma(0.5),
		solver.WithIterations(500),
		solver.WithObjective(objective, 1e-10),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := s.RunSerial(runCtx(t), "serial-objtol")
	if err != nil {
		t.Fatalf("RunSerial failed: %v", err)
	}

	if !res.Terminated {
		t.Error("Expected objective-based termination")
	}
	if res.Iterations >= 500 {
		t.Errorf("Expected early stop, ran %d iterations", res.Iterations)
	}
}
