package percentile

import (
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/pkmc/pkmc/sim"
)

// MaxStudentDraw truncates the Student-t draws of the importance matrix.
const MaxStudentDraw = 100

type matrixKey struct {
	nbSamples, nbEtas int
}

// ImportanceSampleMatrixCache memoizes matrices of independent Student-t
// (one degree of freedom) draws used as importance-sampling candidates.
// Matrices are generated once per dimension pair and shared by reference;
// callers must not modify them.
type ImportanceSampleMatrixCache struct {
	mu      sync.Mutex
	rng     *rand.Rand
	entries map[matrixKey]*mat.Dense
}

// NewImportanceSampleMatrixCache seeds the cache's generator. A zero seed
// is replaced by a wall-clock derived one.
func NewImportanceSampleMatrixCache(seed int64) *ImportanceSampleMatrixCache {
	key := sim.NewSimulationKey(seed)
	return &ImportanceSampleMatrixCache{
		rng:     sim.NewPartitionedRNG(key).ForSubsystem(sim.SubsystemImportance),
		entries: make(map[matrixKey]*mat.Dense),
	}
}

// Avecs returns the nbSamples × nbEtas draw matrix, generating it on first
// use. Concurrent callers asking for a missing matrix wait for it.
func (c *ImportanceSampleMatrixCache) Avecs(nbSamples, nbEtas int) *mat.Dense {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := matrixKey{nbSamples, nbEtas}
	if m, ok := c.entries[key]; ok {
		return m
	}
	data := make([]float64, nbSamples*nbEtas)
	for i := range data {
		v := sim.StudentT1(c.rng)
		for math.Abs(v) > MaxStudentDraw {
			v = sim.StudentT1(c.rng)
		}
		data[i] = v
	}
	m := mat.NewDense(nbSamples, nbEtas, data)
	c.entries[key] = m
	logrus.Debugf("generated %dx%d importance sample matrix", nbSamples, nbEtas)
	return m
}

// Len is the number of cached matrices.
func (c *ImportanceSampleMatrixCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every cached matrix.
func (c *ImportanceSampleMatrixCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[matrixKey]*mat.Dense)
}
