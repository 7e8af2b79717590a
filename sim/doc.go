// Package sim provides the pharmacokinetic simulation core: treatments,
// population parameters and the concentration calculator.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - intake.go: IntakeEvent and IntakeSeries, the treatment being simulated
//   - parameters.go: population parameters and how etas perturb them
//   - concentration.go: the calculator chaining intakes through their residuals
//
// # Architecture
//
// The sim package defines interfaces and shared types; the numerical work
// lives in sub-packages:
//   - sim/pkmodels/: analytical interval calculators (one compartment models)
//   - sim/optimize/: conjugate gradient minimizer with Brent line search
//   - sim/estimation/: likelihood, MAP etas and the Laplace covariance
//   - sim/percentile/: Monte Carlo percentile engine and its sampling strategies
//
// sim/pkmodels registers its factory via init(), setting the package-level
// NewIntervalCalculatorFunc so that models can be created by name.
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - IntervalCalculator: concentrations of one intake over its interval
//   - ConcentrationCalculator: concentrations over a whole intake series
//   - ResidualErrorModel: residual error applied to predictions and likelihoods
//   - Operation: combination of analyte groups into an active moiety
//   - Aborter: cooperative cancellation polled by long computations
package sim
