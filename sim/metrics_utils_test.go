package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentileIndex(t *testing.T) {
	tests := []struct {
		rank float64
		n    int
		want int
	}{
		{0, 10, 0},
		{5, 10, 0},
		{10, 10, 1},
		{50, 10, 5},
		{95, 10, 9},
		{100, 10, 9},
		{50, 1, 0},
		{25, 8, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentileIndex(tt.rank, tt.n), "rank=%v n=%d", tt.rank, tt.n)
	}
}

func TestPercentileAt_ClampsNegatives(t *testing.T) {
	sorted := []float64{-3, -1, 2, 4}
	assert.Equal(t, 0.0, PercentileAt(sorted, 0))
	assert.Equal(t, 2.0, PercentileAt(sorted, 50))
	assert.Equal(t, 4.0, PercentileAt(sorted, 100))
	assert.Equal(t, 0.0, PercentileAt([]int{}, 50))
}

func TestSaveToFile(t *testing.T) {
	// GIVEN a two-cycle prediction
	var pred ConcentrationPrediction
	pred.Append(testStart, []float64{0, 6, 12}, []float64{5, 3, 1})
	pred.Append(testStart, []float64{0, 6, 12}, []float64{6, 4, 2})

	// WHEN it is saved
	path := filepath.Join(t.TempDir(), "pred.dat")
	require.NoError(t, SaveToFile(path, &pred))

	// THEN the last point of each cycle is skipped and times accumulate
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0 5\n6 3\n12 6\n18 4\n", string(data))
}

func TestSaveToFile_BadPath(t *testing.T) {
	var pred ConcentrationPrediction
	err := SaveToFile(filepath.Join(t.TempDir(), "missing", "pred.dat"), &pred)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "creating file"))
}
