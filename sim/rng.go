package sim

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible Monte-Carlo run.
// Two runs with the same SimulationKey and identical inputs
// MUST produce bit-for-bit identical percentiles.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value. A zero seed is
// replaced by a wall-clock derived one.
func NewSimulationKey(seed int64) SimulationKey {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemEtas draws the population etas.
	// Uses master seed directly so a given --seed reproduces the same patients.
	SubsystemEtas = "etas"

	// SubsystemEpsilons draws the residual-error epsilons.
	SubsystemEpsilons = "epsilons"

	// SubsystemImportance fills the importance-sampling candidate matrix.
	SubsystemImportance = "importance"

	// SubsystemResample drives the weighted resampling of candidates.
	SubsystemResample = "resample"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemEtas: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Obtain every stream before starting
// workers; each returned *rand.Rand must then be used by a single goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemEtas {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// StudentT1 draws from a Student-t distribution with one degree of freedom
// (standard Cauchy) as the ratio of two independent standard normals.
func StudentT1(rng *rand.Rand) float64 {
	for {
		den := rng.NormFloat64()
		if den != 0 {
			return rng.NormFloat64() / den
		}
	}
}
