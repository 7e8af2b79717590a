package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/mat"

	"github.com/pkmc/pkmc/sim"
	"github.com/pkmc/pkmc/sim/estimation"
	"github.com/pkmc/pkmc/sim/percentile"
)

// Percentile strategies accepted by --mode.
const (
	modeApriori     = "apriori"
	modeAposteriori = "aposteriori"
	modeNormal      = "normal"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "pkmc",
	Short: "Monte Carlo pharmacokinetic predictions and percentiles",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := newSettings(cmd)
		if err != nil {
			return err
		}
		level, err := logrus.ParseLevel(v.GetString("log"))
		if err != nil {
			return fmt.Errorf("invalid log level: %s", v.GetString("log"))
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// predictCmd simulates one patient, typical unless the scenario gives etas.
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the concentration profile of a patient",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := newSettings(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := runPredict(v, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Prediction failed: %v", err)
		}
	},
}

// percentilesCmd runs the Monte Carlo percentile engine.
var percentilesCmd = &cobra.Command{
	Use:   "percentiles",
	Short: "Compute concentration percentiles of a population or a patient",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := newSettings(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := runPercentiles(cmd.Context(), v, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Percentiles failed: %v", err)
		}
	},
}

// estimateCmd prints the a posteriori etas of the scenario's samples.
var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the a posteriori etas and their covariance",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := newSettings(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := runEstimate(cmd.Context(), v, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Estimation failed: %v", err)
		}
	},
}

// loadTreatment reads the scenario named by --scenario and expands its intakes.
func loadTreatment(v *viper.Viper) (*Scenario, sim.IntakeSeries, error) {
	path := v.GetString("scenario")
	if path == "" {
		return nil, nil, fmt.Errorf("--scenario is required")
	}
	s, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	intakes, err := s.Intakes()
	if err != nil {
		return nil, nil, err
	}
	return s, intakes, nil
}

// writeResult saves src to path, or to w when path is empty.
func writeResult(path string, w io.Writer, src io.WriterTo) error {
	if path != "" {
		return sim.SaveToFile(path, src)
	}
	_, err := src.WriteTo(w)
	return err
}

func runPredict(v *viper.Viper, w io.Writer) error {
	s, intakes, err := loadTreatment(v)
	if err != nil {
		return err
	}
	from, to := s.Window(intakes)
	var pred sim.ConcentrationPrediction
	if v.GetBool("steady-state") {
		err = sim.ComputeConcentrationsAtSteadyState(&pred, intakes, s.ParameterSeries(), s.Etas, false)
	} else {
		err = sim.Calculator{}.ComputeConcentrations(&pred, from, to, intakes, s.ParameterSeries(), s.Etas,
			nil, nil, false)
	}
	if err != nil {
		return fmt.Errorf("computing concentrations: %w", err)
	}
	for c := 0; c < pred.NbCycles(); c++ {
		logrus.Infof("cycle %d starting %s: AUC %g", c, pred.Starts[c].Format(time.RFC3339), pred.AUC(c))
	}
	logrus.Infof("total AUC %g", pred.TotalAUC())
	return writeResult(v.GetString("out"), w, &pred)
}

// newSampler picks the sampling strategy of --mode.
func newSampler(mode string, s *Scenario, omega mat.Symmetric) (percentile.Sampler, error) {
	switch mode {
	case modeApriori:
		return percentile.AprioriSampler{Omega: omega}, nil
	case modeAposteriori:
		return percentile.AposterioriSampler{Omega: omega, MAPEtas: s.Etas, Samples: s.SampleSeries()}, nil
	case modeNormal:
		return percentile.NormalApproximationSampler{Omega: omega, MAPEtas: s.Etas, Samples: s.SampleSeries()}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q; valid: %s, %s, %s", mode, modeApriori, modeAposteriori, modeNormal)
	}
}

func runPercentiles(ctx context.Context, v *viper.Viper, w io.Writer) error {
	settings, err := LoadEngineSettings(v)
	if err != nil {
		return err
	}
	s, intakes, err := loadTreatment(v)
	if err != nil {
		return err
	}
	omega, err := s.Omega()
	if err != nil {
		return err
	}
	sampler, err := newSampler(v.GetString("mode"), s, omega)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	e := percentile.NewEngine(sim.Calculator{})
	settings.apply(e)
	e.MatrixCache = percentile.NewImportanceSampleMatrixCache(settings.Seed)
	e.Metrics = percentile.NewMetrics(reg)

	from, to := s.Window(intakes)
	req := percentile.Request{
		RecordFrom: from,
		RecordTo:   to,
		Intakes:    intakes,
		Parameters: s.ParameterSeries(),
		ErrorModel: s.ResidualErrorModel(),
		Ranks:      s.RanksOrDefault(),
		Seed:       settings.Seed,
	}
	logrus.Infof("Starting %s percentiles with %d workers", sampler.Name(), settings.Workers)
	started := time.Now()
	pred, err := e.Calculate(ctx, req, sampler)
	if path := v.GetString("metrics-out"); path != "" {
		if werr := prometheus.WriteToTextfile(path, reg); werr != nil {
			logrus.Errorf("writing metrics to %s: %v", path, werr)
		}
	}
	if err != nil {
		return err
	}
	logrus.Infof("Percentiles computed in %s", time.Since(started))
	return writeResult(v.GetString("out"), w, pred)
}

func runEstimate(ctx context.Context, v *viper.Viper, w io.Writer) error {
	s, intakes, err := loadTreatment(v)
	if err != nil {
		return err
	}
	omega, err := s.Omega()
	if err != nil {
		return err
	}
	samples := s.SampleSeries()
	parameters := s.ParameterSeries()
	errorModel := s.ResidualErrorModel()

	est, err := estimation.NewMAPEstimator(sim.Calculator{}).Estimate(ctx, omega, errorModel, samples, intakes, parameters)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "etas: %v\n", []float64(est.Etas))
	fmt.Fprintf(w, "negative log-likelihood: %g\n", est.NegativeLogLikelihood)
	fmt.Fprintf(w, "iterations: %d (converged: %t)\n", est.Iterations, est.Converged)
	if len(samples) == 0 {
		return nil
	}
	if samples, err = samples.WithinTreatment(intakes); err != nil {
		return err
	}

	l, err := estimation.NewLikelihood(omega, errorModel, samples, intakes, parameters, sim.Calculator{})
	if err != nil {
		return err
	}
	subomega, err := estimation.Subomega(l, est.Etas)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "subomega:\n%v\n", mat.Formatted(subomega, mat.Prefix("    ")))
	return err
}

// Execute runs the CLI root command. An interrupt aborts running
// computations.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func addPredictFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("steady-state", false, "Repeat the regimen until steady state before recording")
}

func addPercentilesFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", modeApriori, "Sampling strategy (apriori, aposteriori, normal)")
	cmd.Flags().String("metrics-out", "", "Write run metrics in Prometheus text format to this file")
	addEngineFlags(cmd)
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().String("log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().String("scenario", "", "Scenario file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().String("out", "", "Output file (default stdout)")

	addPredictFlags(predictCmd)
	addPercentilesFlags(percentilesCmd)

	rootCmd.AddCommand(predictCmd, percentilesCmd, estimateCmd)
}
