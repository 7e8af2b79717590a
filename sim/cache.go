package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"
)

// PrecomputedLogarithms maps a name (for instance "Ke") to the exponential
// terms evaluated at each time point of an interval.
type PrecomputedLogarithms map[string][]float64

func (p PrecomputedLogarithms) clone() PrecomputedLogarithms {
	out := make(PrecomputedLogarithms, len(p))
	for k, v := range p {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

type logarithmsEntry struct {
	durationMs int64
	nbPoints   int
	params     []float64
	values     PrecomputedLogarithms
}

func (e *logarithmsEntry) matches(durationMs int64, nbPoints int, params []float64) bool {
	if e.durationMs != durationMs || e.nbPoints != nbPoints || len(e.params) != len(params) {
		return false
	}
	for i, v := range params {
		if math.Float64bits(e.params[i]) != math.Float64bits(v) {
			return false
		}
	}
	return true
}

// CachedLogarithms memoizes precomputed exponentials per (interval duration,
// point count, parameter values). Entries keep their full key so a hash
// collision is a miss, never a wrong hit. Stored and returned values are
// copies. Not safe for concurrent use; each interval calculator owns one.
type CachedLogarithms struct {
	entries map[uint64][]*logarithmsEntry
	size    int
}

// NewCachedLogarithms returns an empty cache.
func NewCachedLogarithms() *CachedLogarithms {
	return &CachedLogarithms{entries: make(map[uint64][]*logarithmsEntry)}
}

func logarithmsHash(durationMs int64, nbPoints int, params []float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(durationMs))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(nbPoints))
	h.Write(buf[:])
	for _, v := range params {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Get returns a copy of the cached values for the key.
func (c *CachedLogarithms) Get(duration time.Duration, params []float64, nbPoints int) (PrecomputedLogarithms, bool) {
	ms := duration.Milliseconds()
	for _, e := range c.entries[logarithmsHash(ms, nbPoints, params)] {
		if e.matches(ms, nbPoints, params) {
			return e.values.clone(), true
		}
	}
	return nil, false
}

// Set stores a copy of values under the key, replacing a previous entry.
func (c *CachedLogarithms) Set(duration time.Duration, params []float64, nbPoints int, values PrecomputedLogarithms) {
	ms := duration.Milliseconds()
	h := logarithmsHash(ms, nbPoints, params)
	for _, e := range c.entries[h] {
		if e.matches(ms, nbPoints, params) {
			e.values = values.clone()
			return
		}
	}
	c.entries[h] = append(c.entries[h], &logarithmsEntry{
		durationMs: ms,
		nbPoints:   nbPoints,
		params:     append([]float64(nil), params...),
		values:     values.clone(),
	})
	c.size++
}

// Len is the number of cached entries.
func (c *CachedLogarithms) Len() int { return c.size }

// Reset drops every entry.
func (c *CachedLogarithms) Reset() {
	c.entries = make(map[uint64][]*logarithmsEntry)
	c.size = 0
}
