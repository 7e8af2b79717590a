package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/pkmc/pkmc/sim"
	_ "github.com/pkmc/pkmc/sim/pkmodels"
)

// DefaultNbPoints is the density of a regimen that does not set points.
const DefaultNbPoints = 25

var defaultRanks = []float64{5, 10, 25, 50, 75, 90, 95}

// Scenario is a treatment, its population model and the patient's
// observations. Loaded from YAML or TOML via LoadScenario(path).
type Scenario struct {
	Model        string          `yaml:"model" toml:"model"`
	Start        time.Time       `yaml:"start" toml:"start"`
	Regimens     []RegimenSpec   `yaml:"regimens" toml:"regimens"`
	Parameters   []ParameterSpec `yaml:"parameters" toml:"parameters"`
	Correlations []float64       `yaml:"correlations,omitempty" toml:"correlations,omitempty"` // row-major, one row per eta
	ErrorModel   ErrorModelSpec  `yaml:"error_model" toml:"error_model"`
	Samples      []SampleSpec    `yaml:"samples,omitempty" toml:"samples,omitempty"`
	Record       *WindowSpec     `yaml:"record,omitempty" toml:"record,omitempty"`
	Ranks        []float64       `yaml:"ranks,omitempty" toml:"ranks,omitempty"`
	Etas         []float64       `yaml:"etas,omitempty" toml:"etas,omitempty"` // individual etas; estimated when empty
}

// RegimenSpec is a run of identical intakes. Offsets and durations use
// time.ParseDuration syntax ("12h", "30m").
type RegimenSpec struct {
	Offset   string  `yaml:"offset,omitempty" toml:"offset,omitempty"` // from Scenario.Start
	Count    int     `yaml:"count" toml:"count"`
	Dose     float64 `yaml:"dose" toml:"dose"`
	Unit     string  `yaml:"unit" toml:"unit"`
	Interval string  `yaml:"interval" toml:"interval"`
	Infusion string  `yaml:"infusion,omitempty" toml:"infusion,omitempty"`
	Route    string  `yaml:"route" toml:"route"`
	Points   int     `yaml:"points,omitempty" toml:"points,omitempty"`
}

// ParameterSpec is a population parameter. A variable parameter consumes one
// eta per standard deviation.
type ParameterSpec struct {
	ID          string    `yaml:"id" toml:"id"`
	Value       float64   `yaml:"value" toml:"value"`
	Variability string    `yaml:"variability,omitempty" toml:"variability,omitempty"`
	StdDevs     []float64 `yaml:"stddevs,omitempty" toml:"stddevs,omitempty"`
}

// ErrorModelSpec selects the residual error model.
type ErrorModelSpec struct {
	Type  string    `yaml:"type" toml:"type"`
	Sigma []float64 `yaml:"sigma" toml:"sigma"`
}

// SampleSpec is an observed concentration.
type SampleSpec struct {
	At     string   `yaml:"at" toml:"at"` // from Scenario.Start
	Value  float64  `yaml:"value" toml:"value"`
	Weight *float64 `yaml:"weight,omitempty" toml:"weight,omitempty"` // default 1
}

// WindowSpec bounds the recorded cycles, as offsets from Scenario.Start.
type WindowSpec struct {
	From string `yaml:"from" toml:"from"`
	To   string `yaml:"to" toml:"to"`
}

// LoadScenario reads a scenario file, picking the format from its
// extension. Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s Scenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&s); err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
		}
	case ".toml":
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&s); err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("scenario %s: unknown extension %q; valid: .yaml, .yml, .toml", path, ext)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks that all fields in the scenario are valid.
func (s *Scenario) Validate() error {
	if _, err := sim.NewIntervalCalculator(s.Model); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if s.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	if len(s.Regimens) == 0 {
		return fmt.Errorf("at least one regimen required")
	}
	var previousEnd time.Duration
	for i := range s.Regimens {
		end, err := validateRegimen(&s.Regimens[i], i)
		if err != nil {
			return err
		}
		if offset, _ := parseOffset(s.Regimens[i].Offset); offset < previousEnd {
			return fmt.Errorf("regimen[%d]: starts at %v, before the end of the previous regimen at %v", i, offset, previousEnd)
		}
		previousEnd = end
	}

	seen := make(map[string]bool, len(s.Parameters))
	nbEtas := 0
	for i := range s.Parameters {
		p := &s.Parameters[i]
		if seen[p.ID] {
			return fmt.Errorf("parameter[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if err := validateParameter(p, i); err != nil {
			return err
		}
		nbEtas += len(p.StdDevs)
	}
	if s.Correlations != nil && len(s.Correlations) != nbEtas*nbEtas {
		return fmt.Errorf("correlations: %d entries for %d etas, want %d", len(s.Correlations), nbEtas, nbEtas*nbEtas)
	}
	if len(s.Etas) > 0 && len(s.Etas) != nbEtas {
		return fmt.Errorf("etas: %d values for %d variable parameter etas", len(s.Etas), nbEtas)
	}
	if err := validateErrorModel("error_model", &s.ErrorModel); err != nil {
		return err
	}
	for i := range s.Samples {
		if err := validateSample(&s.Samples[i], i); err != nil {
			return err
		}
	}
	if s.Record != nil {
		from, err := parseOffset(s.Record.From)
		if err != nil {
			return fmt.Errorf("record.from: %w", err)
		}
		to, err := parseOffset(s.Record.To)
		if err != nil {
			return fmt.Errorf("record.to: %w", err)
		}
		if to <= from {
			return fmt.Errorf("record: to (%v) must be after from (%v)", to, from)
		}
	}
	for i, r := range s.Ranks {
		if math.IsNaN(r) || r < 0 || r > 100 {
			return fmt.Errorf("ranks[%d] must be within [0, 100], got %f", i, r)
		}
	}
	return nil
}

// validateRegimen returns the regimen's end offset.
func validateRegimen(r *RegimenSpec, idx int) (time.Duration, error) {
	prefix := fmt.Sprintf("regimen[%d]", idx)
	offset, err := parseOffset(r.Offset)
	if err != nil {
		return 0, fmt.Errorf("%s.offset: %w", prefix, err)
	}
	if r.Count <= 0 {
		return 0, fmt.Errorf("%s: count must be positive, got %d", prefix, r.Count)
	}
	if math.IsNaN(r.Dose) || math.IsInf(r.Dose, 0) || r.Dose < 0 {
		return 0, fmt.Errorf("%s: dose must be a finite non-negative number, got %f", prefix, r.Dose)
	}
	interval, err := time.ParseDuration(r.Interval)
	if err != nil {
		return 0, fmt.Errorf("%s.interval: %w", prefix, err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("%s: interval must be positive, got %v", prefix, interval)
	}
	route, ok := sim.ParseAbsorptionModel(r.Route)
	if !ok {
		return 0, fmt.Errorf("%s: unknown route %q; valid: intravascular, bolus, infusion, extravascular, extravascularlag", prefix, r.Route)
	}
	infusion, err := parseOffset(r.Infusion)
	if err != nil {
		return 0, fmt.Errorf("%s.infusion: %w", prefix, err)
	}
	if route == sim.Infusion && infusion <= 0 {
		return 0, fmt.Errorf("%s: infusion route needs a positive infusion time", prefix)
	}
	if infusion > interval {
		return 0, fmt.Errorf("%s: infusion (%v) longer than the interval (%v)", prefix, infusion, interval)
	}
	if r.Points < 0 {
		return 0, fmt.Errorf("%s: points must be non-negative, got %d", prefix, r.Points)
	}
	return offset + time.Duration(r.Count)*interval, nil
}

func validateParameter(p *ParameterSpec, idx int) error {
	prefix := fmt.Sprintf("parameter[%d]", idx)
	if p.ID == "" {
		return fmt.Errorf("%s: id is required", prefix)
	}
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return fmt.Errorf("%s.value must be a finite number, got %f", prefix, p.Value)
	}
	v, ok := sim.ParseVariabilityType(p.Variability)
	if !ok {
		return fmt.Errorf("%s: unknown variability %q; valid: none, additive, normal, exponential, lognormal, proportional, logit", prefix, p.Variability)
	}
	if v == sim.VariabilityNone && len(p.StdDevs) > 0 {
		return fmt.Errorf("%s: stddevs given without variability", prefix)
	}
	if v != sim.VariabilityNone && len(p.StdDevs) == 0 {
		return fmt.Errorf("%s: %s variability needs at least one standard deviation", prefix, p.Variability)
	}
	for i, sd := range p.StdDevs {
		if math.IsNaN(sd) || math.IsInf(sd, 0) || sd < 0 {
			return fmt.Errorf("%s.stddevs[%d] must be a finite non-negative number, got %f", prefix, i, sd)
		}
	}
	return nil
}

func validateErrorModel(prefix string, m *ErrorModelSpec) error {
	t, ok := sim.ParseErrorType(m.Type)
	if !ok {
		return fmt.Errorf("%s: unknown type %q; valid: none, additive, proportional, exponential, mixed", prefix, m.Type)
	}
	want := 1
	switch t {
	case sim.ErrorNone:
		want = 0
	case sim.ErrorMixed:
		want = 2
	}
	if len(m.Sigma) != want {
		return fmt.Errorf("%s: %q takes %d sigma, got %d", prefix, m.Type, want, len(m.Sigma))
	}
	for i, s := range m.Sigma {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
			return fmt.Errorf("%s.sigma[%d] must be a finite non-negative number, got %f", prefix, i, s)
		}
	}
	return nil
}

func validateSample(s *SampleSpec, idx int) error {
	prefix := fmt.Sprintf("sample[%d]", idx)
	if _, err := parseOffset(s.At); err != nil {
		return fmt.Errorf("%s.at: %w", prefix, err)
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("%s.value must be a finite number, got %f", prefix, s.Value)
	}
	if s.Weight != nil && (math.IsNaN(*s.Weight) || *s.Weight < 0) {
		return fmt.Errorf("%s.weight must be non-negative, got %f", prefix, *s.Weight)
	}
	return nil
}

// parseOffset reads an optional duration; empty means zero.
func parseOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Intakes expands the regimens. All intakes share one calculator.
func (s *Scenario) Intakes() (sim.IntakeSeries, error) {
	calc, err := sim.NewIntervalCalculator(s.Model)
	if err != nil {
		return nil, err
	}
	var intakes sim.IntakeSeries
	for _, r := range s.Regimens {
		offset, _ := parseOffset(r.Offset)
		interval, _ := time.ParseDuration(r.Interval)
		infusion, _ := parseOffset(r.Infusion)
		route, _ := sim.ParseAbsorptionModel(r.Route)
		points := r.Points
		if points == 0 {
			points = DefaultNbPoints
		}
		for _, intake := range sim.NewRegularIntakes(s.Start.Add(offset), r.Count, r.Dose, r.Unit, interval, infusion,
			route, points, calc) {
			intake.OffsetTime = intake.Time.Sub(s.Start)
			intakes = append(intakes, intake)
		}
	}
	return intakes, nil
}

// variableParameters lists the variable parameters in eta order.
func (s *Scenario) variableParameters() []ParameterSpec {
	var out []ParameterSpec
	for _, p := range s.Parameters {
		if len(p.StdDevs) > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParameterSeries returns the population parameters, valid from Start.
func (s *Scenario) ParameterSeries() *sim.ParameterSetSeries {
	event := sim.NewParameterSetEvent(s.Start)
	for _, p := range s.Parameters {
		v, _ := sim.ParseVariabilityType(p.Variability)
		event.Add(sim.ParameterDefinition{ID: p.ID, Value: p.Value, Variability: v, NbEtas: len(p.StdDevs)}, p.Value)
	}
	series := &sim.ParameterSetSeries{}
	series.Add(event)
	return series
}

// Omega is the eta covariance, nil when no parameter is variable.
func (s *Scenario) Omega() (mat.Symmetric, error) {
	var sd []float64
	for _, p := range s.variableParameters() {
		sd = append(sd, p.StdDevs...)
	}
	if len(sd) == 0 {
		return nil, nil
	}
	omega, err := sim.OmegaFromCorrelations(sd, s.Correlations)
	if err != nil {
		return nil, fmt.Errorf("correlations: %w", err)
	}
	return omega, nil
}

// ResidualErrorModel returns nil for the "none" type.
func (s *Scenario) ResidualErrorModel() sim.ResidualErrorModel {
	t, _ := sim.ParseErrorType(s.ErrorModel.Type)
	if t == sim.ErrorNone {
		return nil
	}
	return &sim.SigmaResidualErrorModel{Type: t, Sigma: s.ErrorModel.Sigma}
}

// SampleSeries returns the observations in chronological order.
func (s *Scenario) SampleSeries() sim.SampleSeries {
	samples := make(sim.SampleSeries, 0, len(s.Samples))
	for _, spec := range s.Samples {
		at, _ := parseOffset(spec.At)
		sample := sim.NewSample(s.Start.Add(at), spec.Value)
		if spec.Weight != nil {
			sample.Weight = *spec.Weight
		}
		samples = append(samples, sample)
	}
	samples.Sort()
	return samples
}

// Window is the recording window, the whole treatment by default.
func (s *Scenario) Window(intakes sim.IntakeSeries) (time.Time, time.Time) {
	if s.Record == nil {
		return intakes.TimeSpan()
	}
	from, _ := parseOffset(s.Record.From)
	to, _ := parseOffset(s.Record.To)
	return s.Start.Add(from), s.Start.Add(to)
}

// RanksOrDefault returns the requested ranks, or the usual percentile set.
func (s *Scenario) RanksOrDefault() []float64 {
	if len(s.Ranks) == 0 {
		return defaultRanks
	}
	return s.Ranks
}
