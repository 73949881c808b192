package solver

import (
	"fmt"
	"io"

	"github.com/dshills/resolve-go/solver/emit"
	"github.com/dshills/resolve-go/solver/store"
)

// Option is a functional option for configuring a Solver.
//
// Options are applied by New in order; later options override earlier ones.
// Invalid values are rejected at construction time so a misconfigured run
// never spawns a worker.
//
// Example:
//
//	s, err := solver.New(resolvents, W, Z,
//	    solver.WithIterations(500),
//	    solver.WithGamma(0.5),
//	    solver.WithVarTol(1e-5),
//	)
type Option func(*config) error

type config struct {
	itrs        int
	gamma       float64
	alpha       float64
	vartol      float64 // 0 disables the termination monitor
	checkPeriod int
	tol         float64 // zero threshold for matrix entries

	objective func(x []float64) float64 // serial only
	objtol    float64

	warmPrimal []float64
	seeder     PrimalSeeder
	warmDual   [][]float64

	verbose io.Writer
	emitter emit.Emitter
	metrics *Metrics
	history store.Store
}

func defaultConfig() config {
	return config{
		itrs:        1001,
		gamma:       0.9,
		alpha:       1.0,
		checkPeriod: 1,
		tol:         1e-9,
	}
}

// WithIterations sets the hard upper bound on outer iterations.
//
// Default: 1001. Zero is valid and returns the seeded state untouched,
// which is useful for inspecting warm starts.
func WithIterations(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("iterations must be non-negative, got %d", n)
		}
		c.itrs = n
		return nil
	}
}

// WithGamma sets the scalar step of the consensus update
// vᵢ ← vᵢ − γ·Σⱼ W[i,j]·xⱼ.
//
// Default: 0.9. Must be positive; values at or above 1 can destabilize the
// iteration depending on the design pair.
func WithGamma(g float64) Option {
	return func(c *config) error {
		if g <= 0 {
			return fmt.Errorf("gamma must be positive, got %v", g)
		}
		c.gamma = g
		return nil
	}
}

// WithAlpha sets the resolvent step size α in J_{αA}.
//
// Default: 1.0. Must be positive.
func WithAlpha(a float64) Option {
	return func(c *config) error {
		if a <= 0 {
			return fmt.Errorf("alpha must be positive, got %v", a)
		}
		c.alpha = a
		return nil
	}
}

// WithVarTol enables the termination monitor with the given total-variation
// threshold. When the summed per-node iterate movement stays below vartol
// for ten consecutive checks, the monitor schedules a clean early stop a
// few rounds ahead so in-flight messages drain.
//
// Default: disabled (runs always execute the full iteration budget).
func WithVarTol(tol float64) Option {
	return func(c *config) error {
		if tol <= 0 {
			return fmt.Errorf("vartol must be positive, got %v", tol)
		}
		c.vartol = tol
		return nil
	}
}

// WithCheckPeriod sets the convergence-check cadence, in rounds, for the
// termination monitor and the serial engine's stopping tests.
//
// Default: 1 (check every round).
func WithCheckPeriod(period int) Option {
	return func(c *config) error {
		if period < 1 {
			return fmt.Errorf("check period must be at least 1, got %d", period)
		}
		c.checkPeriod = period
		return nil
	}
}

// WithZeroTolerance sets the threshold below which design-matrix entries are
// treated as exact zeros, both for setup validation and for topology
// planning.
//
// Default: 1e-9.
func WithZeroTolerance(tol float64) Option {
	return func(c *config) error {
		if tol < 0 {
			return fmt.Errorf("zero tolerance must be non-negative, got %v", tol)
		}
		c.tol = tol
		return nil
	}
}

// WithObjective enables objective-based stopping in the serial engine: the
// run stops once the objective value of the running mean iterate moves less
// than objtol between consecutive checks.
//
// The parallel engine ignores this option; use WithVarTol there.
func WithObjective(f func(x []float64) float64, objtol float64) Option {
	return func(c *config) error {
		if f == nil {
			return fmt.Errorf("objective function must not be nil")
		}
		if objtol <= 0 {
			return fmt.Errorf("objtol must be positive, got %v", objtol)
		}
		c.objective = f
		c.objtol = objtol
		return nil
	}
}

// WithWarmStartPrimal seeds v⁰ from a primal estimate x̄ through the
// supplied seeding routine. The seeder is an external pure function
// v⁰ = ψ(x̄, L); it must produce one vector per node whose sum is zero.
func WithWarmStartPrimal(xbar []float64, seeder PrimalSeeder) Option {
	return func(c *config) error {
		if len(xbar) == 0 {
			return fmt.Errorf("warm-start primal vector must not be empty")
		}
		if seeder == nil {
			return fmt.Errorf("warm-start primal requires a seeding routine")
		}
		c.warmPrimal = xbar
		c.seeder = seeder
		return nil
	}
}

// WithWarmStartDual adds the given per-node vectors to v⁰ component-wise.
// The caller guarantees the vectors sum to zero across nodes; shapes are
// validated at construction.
func WithWarmStartDual(u [][]float64) Option {
	return func(c *config) error {
		if len(u) == 0 {
			return fmt.Errorf("warm-start dual list must not be empty")
		}
		c.warmDual = u
		return nil
	}
}

// WithVerbose enables human-readable progress output on the given writer.
func WithVerbose(w io.Writer) Option {
	return func(c *config) error {
		c.verbose = w
		return nil
	}
}

// WithEmitter attaches an observability emitter. Lifecycle events (run and
// worker start and completion, run errors, the monitor's termination
// signal) are emitted through it; nil disables emission.
func WithEmitter(e emit.Emitter) Option {
	return func(c *config) error {
		c.emitter = e
		return nil
	}
}

// WithMetrics attaches a Prometheus metrics collector. All engine metrics
// are updated automatically during a run; nil disables collection.
func WithMetrics(m *Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// WithHistory attaches a run-history store. Final per-node iterates and the
// monitor's convergence samples are recorded there in addition to being
// returned in memory.
func WithHistory(st store.Store) Option {
	return func(c *config) error {
		c.history = st
		return nil
	}
}
