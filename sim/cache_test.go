package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedLogarithms_GetSet(t *testing.T) {
	c := NewCachedLogarithms()
	params := []float64{0.1, 20}

	_, ok := c.Get(12*time.Hour, params, 5)
	assert.False(t, ok, "empty cache")

	c.Set(12*time.Hour, params, 5, PrecomputedLogarithms{"Ke": {1, 0.5}})

	got, ok := c.Get(12*time.Hour, []float64{0.1, 20}, 5)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 0.5}, got["Ke"])

	// Any key component differing is a miss.
	_, ok = c.Get(12*time.Hour, params, 7)
	assert.False(t, ok)
	_, ok = c.Get(6*time.Hour, params, 5)
	assert.False(t, ok)
	_, ok = c.Get(12*time.Hour, []float64{0.1, 21}, 5)
	assert.False(t, ok)
	_, ok = c.Get(12*time.Hour, []float64{0.1}, 5)
	assert.False(t, ok)
}

func TestCachedLogarithms_StoresCopies(t *testing.T) {
	c := NewCachedLogarithms()
	values := PrecomputedLogarithms{"Ke": {1, 2}}
	c.Set(time.Hour, []float64{1}, 2, values)

	values["Ke"][0] = 99
	got, _ := c.Get(time.Hour, []float64{1}, 2)
	assert.Equal(t, 1.0, got["Ke"][0], "mutating the stored input must not leak")

	got["Ke"][1] = 42
	again, _ := c.Get(time.Hour, []float64{1}, 2)
	assert.Equal(t, 2.0, again["Ke"][1], "mutating a returned value must not leak")
}

func TestCachedLogarithms_CollidingHashIsMiss(t *testing.T) {
	// GIVEN an entry planted under the hash of another key
	c := NewCachedLogarithms()
	h := logarithmsHash(time.Hour.Milliseconds(), 3, []float64{2})
	c.entries[h] = append(c.entries[h], &logarithmsEntry{
		durationMs: time.Hour.Milliseconds(),
		nbPoints:   3,
		params:     []float64{1},
		values:     PrecomputedLogarithms{"Ke": {7}},
	})

	// THEN looking up the other key does not return it
	_, ok := c.Get(time.Hour, []float64{2}, 3)
	assert.False(t, ok)
}

func TestCachedLogarithms_SetReplacesAndReset(t *testing.T) {
	c := NewCachedLogarithms()
	c.Set(time.Hour, []float64{1}, 2, PrecomputedLogarithms{"Ke": {1}})
	c.Set(time.Hour, []float64{1}, 2, PrecomputedLogarithms{"Ke": {2}})
	assert.Equal(t, 1, c.Len())

	got, _ := c.Get(time.Hour, []float64{1}, 2)
	assert.Equal(t, []float64{2}, got["Ke"])

	c.Reset()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(time.Hour, []float64{1}, 2)
	assert.False(t, ok)
}
