package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pair identifies one directed channel from a sender node to a receiver node.
type Pair struct {
	From int
	To   int
}

// NodePlan holds the five disjoint peer sets that drive one worker's
// send/receive protocol. For node i:
//
//   - WQ: peers j coupled only through W (W[i,j] ≠ 0, no L coupling).
//     The exchange is symmetric; both ends send and receive one iterate per
//     round after their own proximal step.
//   - UpLQ: peers j < i with L[i,j] ≠ 0 and W[i,j] = 0. Their iterates feed
//     the resolvent argument and must arrive before the proximal step.
//   - DownLQ: peers k > i with L[k,i] ≠ 0 and W[k,i] = 0. Node i sends its
//     fresh iterate downstream to them after the proximal step.
//   - UpBQ: peers j < i coupled through both L and W. Their single upstream
//     message serves both accumulations; node i sends its own iterate back
//     after the proximal step so they can finish their consensus sum.
//   - DownBQ: peers k > i coupled through both L and W. Node i sends its
//     iterate down, then receives theirs for the consensus sum.
type NodePlan struct {
	WQ     []int
	UpLQ   []int
	DownLQ []int
	UpBQ   []int
	DownBQ []int
}

// Plan is the communication topology derived from a (W, L) design pair: the
// per-node peer sets plus the exact set of directed channels the round
// protocol requires. A channel (i, j) exists iff the two nodes are coupled
// through W or L in a direction that carries a message.
type Plan struct {
	N     int
	Nodes []NodePlan

	pairs []Pair
	exist map[Pair]bool
}

// BuildPlan derives the communication plan from the design matrices. W must
// be the symmetric consensus matrix and L the strictly lower triangular
// pre-resolvent matrix, both n×n. Entries with absolute value at most tol
// are treated as zero.
//
// Every nonzero off-diagonal coupling ends up in exactly one of the five
// peer sets at each endpoint; pairs with no coupling get no channel at all,
// so the sparsity of the design bounds the traffic of the run.
func BuildPlan(w, l *mat.Dense, tol float64) (*Plan, error) {
	wr, wc := w.Dims()
	lr, lc := l.Dims()
	if wr != wc || lr != lc || wr != lr {
		return nil, fmt.Errorf("%w: W is %dx%d, L is %dx%d", ErrDimensionMismatch, wr, wc, lr, lc)
	}
	n := wr

	p := &Plan{
		N:     n,
		Nodes: make([]NodePlan, n),
		exist: make(map[Pair]bool),
	}

	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			wl := math.Abs(w.At(i, j)) > tol
			ll := math.Abs(l.At(i, j)) > tol
			switch {
			case wl && ll:
				// Both couplings: one upstream message feeds both sums,
				// one downstream message closes the consensus exchange.
				p.addPair(Pair{j, i})
				p.addPair(Pair{i, j})
				p.Nodes[i].UpBQ = append(p.Nodes[i].UpBQ, j)
				p.Nodes[j].DownBQ = append(p.Nodes[j].DownBQ, i)
			case wl:
				// Pure W exchange, symmetric in both directions.
				p.addPair(Pair{i, j})
				p.addPair(Pair{j, i})
				p.Nodes[i].WQ = append(p.Nodes[i].WQ, j)
				p.Nodes[j].WQ = append(p.Nodes[j].WQ, i)
			case ll:
				// L-only: the lower-indexed node streams its iterate up.
				p.addPair(Pair{j, i})
				p.Nodes[i].UpLQ = append(p.Nodes[i].UpLQ, j)
				p.Nodes[j].DownLQ = append(p.Nodes[j].DownLQ, i)
			}
		}
	}

	return p, nil
}

func (p *Plan) addPair(pr Pair) {
	if !p.exist[pr] {
		p.exist[pr] = true
		p.pairs = append(p.pairs, pr)
	}
}

// Channels returns the directed channel set in creation order.
func (p *Plan) Channels() []Pair {
	out := make([]Pair, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// HasChannel reports whether the plan requires a channel from sender to
// receiver.
func (p *Plan) HasChannel(from, to int) bool {
	return p.exist[Pair{from, to}]
}
