package blendshape

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Solver fits weight vectors to observed landmark frames.
type Solver struct {
	cfg SolverConfig
}

// NewSolver creates a Solver with the given configuration.
func NewSolver(cfg SolverConfig) *Solver {
	return &Solver{cfg: cfg}
}

// Solve finds the weights minimizing ||A*x - b||^2, where the columns of A are the flattened
// deltas of basis and b is the flattened offset of frame from the neutral pose.
// Dependent deltas are handled with a truncated SVD, which yields the minimum-norm solution.
func (s *Solver) Solve(basis *DeltaBasis, frame Pose) (*FitResult, error) {
	basis.mu.RLock()
	defer basis.mu.RUnlock()

	neutral := basis.neutral
	if len(frame) != len(neutral) {
		return nil, fmt.Errorf("%w: frame has %d points, basis has %d", ErrDimensionMismatch, len(frame), len(neutral))
	}

	nb := len(basis.deltas)
	if nb == 0 {
		return &FitResult{
			Weights:  Weights{},
			Residual: squaredDistance(frame, neutral),
		}, nil
	}

	rows := 3 * len(neutral)
	a := mat.NewDense(rows, nb, nil)
	for j, d := range basis.deltas {
		for i, p := range d {
			a.Set(3*i, j, p.X)
			a.Set(3*i+1, j, p.Y)
			a.Set(3*i+2, j, p.Z)
		}
	}
	b := mat.NewVecDense(rows, nil)
	for i := range frame {
		d := frame[i].Sub(neutral[i])
		b.SetVec(3*i, d.X)
		b.SetVec(3*i+1, d.Y)
		b.SetVec(3*i+2, d.Z)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, ErrSolveFailed
	}

	rcond := s.cfg.RCond
	if rcond <= 0 {
		rcond = epsilon * float64(max(rows, nb))
	}
	rank := svd.Rank(rcond)

	x := mat.NewVecDense(nb, nil)
	if rank > 0 {
		svd.SolveVecTo(x, b, rank)
	}

	// Residual is recomputed from the solution so it is also valid for under-determined systems.
	var r mat.VecDense
	r.MulVec(a, x)
	r.SubVec(b, &r)

	weights := make(Weights, nb)
	for i := range weights {
		weights[i] = x.AtVec(i)
	}

	return &FitResult{
		Weights:       weights,
		Residual:      mat.Dot(&r, &r),
		Rank:          rank,
		RankDeficient: rank < nb,
	}, nil
}

var epsilon = math.Nextafter(1, 2) - 1
