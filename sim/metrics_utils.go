// sim/metrics_utils.go
package sim

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type IntOrFloat64 interface {
	int | int64 | float64
}

// PercentileIndex is the index of the rank-th percentile (0-100) in a sorted
// slice of n values: floor(rank/100*n), clamped to [0, n-1].
func PercentileIndex(rank float64, n int) int {
	idx := int(rank / 100.0 * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// PercentileAt reads the rank-th percentile of sorted data without
// interpolation. Negative values are reported as 0.
func PercentileAt[T IntOrFloat64](sorted []T, rank float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	v := float64(sorted[PercentileIndex(rank, len(sorted))])
	if v < 0 {
		return 0
	}
	return v
}

// SaveToFile writes src to fileName, truncating any existing file.
func SaveToFile(fileName string, src io.WriterTo) (err error) {
	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", fileName, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing file %s: %w", fileName, closeErr)
		}
	}()

	writer := bufio.NewWriter(file)
	if _, err = src.WriteTo(writer); err != nil {
		return fmt.Errorf("writing file %s: %w", fileName, err)
	}
	if err = writer.Flush(); err != nil {
		return fmt.Errorf("flushing writer for file %s: %w", fileName, err)
	}

	logrus.Debugf("Successfully wrote to '%s'", fileName)
	return nil
}
