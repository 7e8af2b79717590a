package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pkmc/pkmc/sim/percentile"
)

// envPrefix namespaces environment overrides: PKMC_PATIENTS=2000 acts as
// --patients 2000 unless the flag is given explicitly.
const envPrefix = "PKMC"

// EngineSettings sizes a percentile run.
type EngineSettings struct {
	Patients          int
	Workers           int
	ImportanceSamples int
	Resamples         int
	Seed              int64
}

// newSettings resolves the command's flags with precedence
// flags > env > flag defaults.
func newSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	return v, nil
}

// addEngineFlags registers the flags read by LoadEngineSettings.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().Int("patients", percentile.DefaultPatients, "Number of virtual patients for a priori and normal approximation runs")
	cmd.Flags().Int("workers", runtime.NumCPU(), "Number of parallel workers")
	cmd.Flags().Int("importance-samples", percentile.DefaultImportanceSamples, "Size of the a posteriori importance candidate pool")
	cmd.Flags().Int("resamples", percentile.DefaultResamples, "Number of a posteriori patients resampled from the pool")
	cmd.Flags().Int64("seed", 0, "Seed of the random streams (0 derives one from the clock)")
}

// LoadEngineSettings reads and validates the engine flags.
func LoadEngineSettings(v *viper.Viper) (EngineSettings, error) {
	s := EngineSettings{
		Patients:          v.GetInt("patients"),
		Workers:           v.GetInt("workers"),
		ImportanceSamples: v.GetInt("importance-samples"),
		Resamples:         v.GetInt("resamples"),
		Seed:              v.GetInt64("seed"),
	}
	for name, n := range map[string]int{
		"patients":           s.Patients,
		"workers":            s.Workers,
		"importance-samples": s.ImportanceSamples,
		"resamples":          s.Resamples,
	} {
		if n <= 0 {
			return EngineSettings{}, fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}
	return s, nil
}

// apply copies the sizes onto e.
func (s EngineSettings) apply(e *percentile.Engine) {
	e.Patients = s.Patients
	e.Workers = s.Workers
	e.ImportanceSamples = s.ImportanceSamples
	e.Resamples = s.Resamples
}
