package percentile

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/pkmc/pkmc/sim"
	"github.com/pkmc/pkmc/sim/estimation"
)

// MaxStandardizedDeviation rejects importance candidates drawn too far in
// the tails of the proposal.
const MaxStandardizedDeviation = 6

// Sampler generates the etas and epsilons of the virtual patients.
type Sampler interface {
	// Name labels the strategy in metrics and logs.
	Name() string
	Sample(ctx context.Context, e *Engine, req *Request, rng *sim.PartitionedRNG) (etas [][]float64, epsilons [][]float64, err error)
}

func nbEpsilons(m sim.ResidualErrorModel) int {
	if m == nil || m.IsEmpty() {
		return 0
	}
	return m.NbEpsilons()
}

// drawEpsilons returns n vectors of standard normal residual deviations.
func drawEpsilons(rng *rand.Rand, n int, model sim.ResidualErrorModel) [][]float64 {
	k := nbEpsilons(model)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, k)
		for j := range out[i] {
			out[i][j] = rng.NormFloat64()
		}
	}
	return out
}

// AprioriSampler draws etas from N(InitialEtas, Omega).
type AprioriSampler struct {
	Omega       mat.Symmetric
	InitialEtas sim.Etas
}

func (AprioriSampler) Name() string { return "apriori" }

func (s AprioriSampler) Sample(_ context.Context, e *Engine, req *Request, rng *sim.PartitionedRNG) ([][]float64, [][]float64, error) {
	etas, err := drawNormalEtas(rng.ForSubsystem(sim.SubsystemEtas), e.Patients, s.Omega, s.InitialEtas)
	if err != nil {
		return nil, nil, err
	}
	return etas, drawEpsilons(rng.ForSubsystem(sim.SubsystemEpsilons), e.Patients, req.ErrorModel), nil
}

// drawNormalEtas returns n draws of root(omega)·z + mean. An empty omega
// yields empty eta vectors, the typical patient.
func drawNormalEtas(rng *rand.Rand, n int, omega mat.Symmetric, mean []float64) ([][]float64, error) {
	k := sim.OmegaSize(omega)
	etas := make([][]float64, n)
	if k == 0 {
		for i := range etas {
			etas[i] = sim.Etas{}
		}
		return etas, nil
	}
	root, err := sim.SquareRoot(omega)
	if err != nil {
		return nil, err
	}
	z := make([]float64, k)
	for i := range etas {
		for j := range z {
			z[j] = rng.NormFloat64()
		}
		etas[i] = sim.CorrelatedDraw(root, z, mean)
	}
	return etas, nil
}

// posterior gathers what the a posteriori strategies need: the likelihood
// restricted to the samples within the treatment, the mode and the Laplace
// covariance around it.
type posterior struct {
	likelihood *estimation.Likelihood
	mode       []float64
	subomega   *mat.SymDense
}

func newPosterior(ctx context.Context, e *Engine, req *Request, omega mat.Symmetric, mapEtas sim.Etas,
	samples sim.SampleSeries) (*posterior, error) {

	inScope, err := samples.WithinTreatment(req.Intakes)
	if err != nil {
		return nil, err
	}

	l, err := estimation.NewLikelihood(omega, req.ErrorModel, inScope, req.Intakes, req.Parameters, e.Calculator)
	if err != nil {
		return nil, err
	}
	mode := []float64(mapEtas)
	if mode == nil {
		est, err := estimation.NewMAPEstimator(e.Calculator).Estimate(ctx, omega, req.ErrorModel, inScope,
			req.Intakes, req.Parameters)
		if err != nil {
			return nil, err
		}
		mode = est.Etas
	}
	subomega, err := estimation.Subomega(l, mode)
	if err != nil {
		return nil, err
	}
	return &posterior{likelihood: l, mode: mode, subomega: subomega}, nil
}

// AposterioriSampler resamples importance-weighted Student-t candidates
// centered at the posterior mode with the Laplace covariance. MAPEtas is
// estimated from the samples when nil.
type AposterioriSampler struct {
	Omega   mat.Symmetric
	MAPEtas sim.Etas
	Samples sim.SampleSeries
}

func (AposterioriSampler) Name() string { return "aposteriori" }

func (s AposterioriSampler) Sample(ctx context.Context, e *Engine, req *Request, rng *sim.PartitionedRNG) ([][]float64, [][]float64, error) {
	post, err := newPosterior(ctx, e, req, s.Omega, s.MAPEtas, s.Samples)
	if err != nil {
		return nil, nil, err
	}
	root, err := sim.SquareRoot(post.subomega)
	if err != nil {
		return nil, nil, sim.StatusAposterioriDegenerateCovariance
	}

	nbEtas := len(post.mode)
	nbCandidates := max(1, e.ImportanceSamples)
	cache := e.MatrixCache
	if cache == nil {
		cache = NewImportanceSampleMatrixCache(int64(rng.Key()))
	}
	avecs := cache.Avecs(nbCandidates, nbEtas)

	proposal, ok := distmv.NewStudentsT(post.mode, post.subomega, 1, nil)
	if !ok {
		return nil, nil, sim.StatusAposterioriDegenerateCovariance
	}

	candidates := make([][]float64, nbCandidates)
	logWeights := make([]float64, nbCandidates)
	var (
		wg      sync.WaitGroup
		aborted atomic.Bool
	)
	workers := e.workers(nbCandidates)
	for w := 0; w < workers; w++ {
		lo, hi := w*nbCandidates/workers, (w+1)*nbCandidates/workers
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := post.likelihood.Clone(req.Intakes.Clone())
			for i := lo; i < hi; i++ {
				if aborted.Load() || sim.ShouldStop(ctx, req.Aborter) {
					aborted.Store(true)
					return
				}
				avec := avecs.RawRowView(i)
				candidates[i] = sim.CorrelatedDraw(root, avec, post.mode)
				logWeights[i] = math.Inf(-1)
				if floats.Max(avec) > MaxStandardizedDeviation || floats.Min(avec) < -MaxStandardizedDeviation {
					continue
				}
				nll := l.NegativeLogLikelihood(candidates[i])
				if nll == math.MaxFloat64 {
					continue
				}
				logWeights[i] = -nll - proposal.LogProb(candidates[i])
			}
		}()
	}
	wg.Wait()
	if aborted.Load() {
		return nil, nil, sim.StatusAborted
	}

	weights, ok := normalizeLogWeights(logWeights)
	if !ok {
		return nil, nil, sim.StatusAposterioriNoLikelySample
	}
	nbResamples := max(1, e.Resamples)
	etas := resample(rng.ForSubsystem(sim.SubsystemResample), candidates, weights, nbResamples)
	return etas, drawEpsilons(rng.ForSubsystem(sim.SubsystemEpsilons), nbResamples, req.ErrorModel), nil
}

// normalizeLogWeights turns log weights into weights scaled so that the
// largest is one. It fails when no weight is positive and finite.
func normalizeLogWeights(logWeights []float64) ([]float64, bool) {
	top := math.Inf(-1)
	for _, lw := range logWeights {
		if !math.IsNaN(lw) && !math.IsInf(lw, 0) && lw > top {
			top = lw
		}
	}
	if math.IsInf(top, -1) {
		return nil, false
	}
	weights := make([]float64, len(logWeights))
	for i, lw := range logWeights {
		if math.IsNaN(lw) || math.IsInf(lw, 0) {
			continue
		}
		weights[i] = math.Exp(lw - top)
	}
	return weights, true
}

// resample draws n candidates with replacement, proportionally to weights.
func resample(rng *rand.Rand, candidates [][]float64, weights []float64, n int) [][]float64 {
	cum := make([]float64, len(weights))
	floats.CumSum(cum, weights)
	total := cum[len(cum)-1]
	out := make([][]float64, n)
	for i := range out {
		u := rng.Float64() * total
		k := sort.Search(len(cum), func(j int) bool { return cum[j] > u })
		if k == len(cum) {
			k = len(cum) - 1
		}
		out[i] = candidates[k]
	}
	return out
}

// NormalApproximationSampler draws from a normal centered at the posterior
// mode with the Laplace covariance. It is cheaper than AposterioriSampler
// but ignores the skewness of the posterior.
type NormalApproximationSampler struct {
	Omega   mat.Symmetric
	MAPEtas sim.Etas
	Samples sim.SampleSeries
}

func (NormalApproximationSampler) Name() string { return "aposteriori_normal" }

func (s NormalApproximationSampler) Sample(ctx context.Context, e *Engine, req *Request, rng *sim.PartitionedRNG) ([][]float64, [][]float64, error) {
	post, err := newPosterior(ctx, e, req, s.Omega, s.MAPEtas, s.Samples)
	if err != nil {
		return nil, nil, err
	}
	return AprioriSampler{Omega: post.subomega, InitialEtas: post.mode}.Sample(ctx, e, req, rng)
}
