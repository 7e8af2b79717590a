// Package pkmodels registers its interval calculator factory into the sim
// package variable (NewIntervalCalculatorFunc). This init() runs when any
// package imports sim/pkmodels, breaking the import cycle between sim/
// (interface owner) and sim/pkmodels/ (implementation). Production code
// imports sim/pkmodels directly; test code in package sim uses
// pkmodels_import_test.go for the blank import.
package pkmodels

import "github.com/pkmc/pkmc/sim"

func init() {
	sim.NewIntervalCalculatorFunc = NewIntervalCalculator
}
