package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.ErrorLevel)
	os.Exit(m.Run())
}

// parseFlags resolves args against a fresh command carrying the root flags
// and those of register.
func parseFlags(t *testing.T, register func(*cobra.Command), args ...string) *viper.Viper {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log", "warn", "")
	cmd.Flags().String("scenario", "", "")
	cmd.Flags().String("out", "", "")
	if register != nil {
		register(cmd)
	}
	require.NoError(t, cmd.ParseFlags(args))
	v, err := newSettings(cmd)
	require.NoError(t, err)
	return v
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func TestLoadEngineSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := LoadEngineSettings(parseFlags(t, addEngineFlags))
		require.NoError(t, err)
		assert.Equal(t, 10000, s.Patients)
		assert.Equal(t, 100000, s.ImportanceSamples)
		assert.Equal(t, 10000, s.Resamples)
		assert.Positive(t, s.Workers)
		assert.Zero(t, s.Seed)
	})
	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("PKMC_PATIENTS", "2000")
		t.Setenv("PKMC_IMPORTANCE_SAMPLES", "5000")
		s, err := LoadEngineSettings(parseFlags(t, addEngineFlags))
		require.NoError(t, err)
		assert.Equal(t, 2000, s.Patients)
		assert.Equal(t, 5000, s.ImportanceSamples)
	})
	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("PKMC_PATIENTS", "2000")
		s, err := LoadEngineSettings(parseFlags(t, addEngineFlags, "--patients", "300", "--seed", "9"))
		require.NoError(t, err)
		assert.Equal(t, 300, s.Patients)
		assert.Equal(t, int64(9), s.Seed)
	})
	t.Run("non-positive size", func(t *testing.T) {
		_, err := LoadEngineSettings(parseFlags(t, addEngineFlags, "--resamples", "0"))
		assert.ErrorContains(t, err, "resamples must be positive")
	})
}

func TestRunPredict(t *testing.T) {
	// GIVEN four boluses of the example scenario, 25 points each
	var out bytes.Buffer

	// WHEN the typical patient is predicted
	err := runPredict(parseFlags(t, addPredictFlags, "--scenario", exampleYAML), &out)

	// THEN every cycle but its last point is dumped, starting at dose/V
	require.NoError(t, err)
	lines := nonEmptyLines(out.String())
	assert.Len(t, lines, 4*24)
	assert.Equal(t, "0 5", lines[0])
}

func TestRunPredict_SteadyStateToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.dat")

	err := runPredict(parseFlags(t, addPredictFlags, "--scenario", exampleYAML, "--steady-state", "--out", path), &bytes.Buffer{})

	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := nonEmptyLines(string(data))
	require.Len(t, lines, 4*24)
	// At steady state the trough carried into the first cycle raises its peak above dose/V.
	assert.NotEqual(t, "0 5", lines[0])
}

func TestRunPercentiles(t *testing.T) {
	tests := []struct {
		mode     string
		strategy string
	}{
		{mode: "apriori", strategy: "apriori"},
		{mode: "aposteriori", strategy: "aposteriori"},
		{mode: "normal", strategy: "aposteriori_normal"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			// GIVEN a small, seeded run
			metrics := filepath.Join(t.TempDir(), "run.prom")
			v := parseFlags(t, addPercentilesFlags, "--scenario", exampleYAML, "--mode", tt.mode,
				"--patients", "300", "--importance-samples", "2000", "--resamples", "300", "--workers", "2",
				"--seed", "5", "--metrics-out", metrics)
			var out bytes.Buffer

			// WHEN percentiles are computed
			err := runPercentiles(context.Background(), v, &out)

			// THEN one line per time point carries the time and five ranks
			require.NoError(t, err)
			lines := nonEmptyLines(out.String())
			require.Len(t, lines, 4*24)
			assert.Len(t, strings.Fields(lines[10]), 6)

			// AND the run is recorded in the metrics file
			data, err := os.ReadFile(metrics)
			require.NoError(t, err)
			assert.Contains(t, string(data), `pkmc_percentile_runs_total{status="ok",strategy="`+tt.strategy+`"} 1`)
			assert.Contains(t, string(data), "pkmc_simulated_patients_total 300")
		})
	}
}

func TestRunPercentiles_Errors(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		v := parseFlags(t, addPercentilesFlags, "--scenario", exampleYAML, "--mode", "bayesian")
		assert.ErrorContains(t, runPercentiles(context.Background(), v, &bytes.Buffer{}), `unknown mode "bayesian"`)
	})
	t.Run("missing scenario", func(t *testing.T) {
		v := parseFlags(t, addPercentilesFlags)
		assert.ErrorContains(t, runPercentiles(context.Background(), v, &bytes.Buffer{}), "--scenario is required")
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		v := parseFlags(t, addPercentilesFlags, "--scenario", exampleYAML, "--patients", "100")
		assert.ErrorContains(t, runPercentiles(ctx, v, &bytes.Buffer{}), "aborted")
	})
}

func TestRunEstimate(t *testing.T) {
	var out bytes.Buffer

	err := runEstimate(context.Background(), parseFlags(t, nil, "--scenario", exampleYAML), &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "etas: [")
	assert.Contains(t, out.String(), "iterations: ")
	assert.Contains(t, out.String(), "subomega:")
}

func TestRootCommand_RejectsBadLogLevel(t *testing.T) {
	rootCmd.SetArgs([]string{"estimate", "--log", "loud", "--scenario", exampleYAML})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { logrus.SetLevel(logrus.ErrorLevel) })

	err := rootCmd.Execute()

	assert.ErrorContains(t, err, "invalid log level: loud")
}
