package sim_test

// Blank import triggers sim/pkmodels' init(), which registers NewIntervalCalculatorFunc.
// This allows package sim's test files to create interval calculators by name
// without package sim importing sim/pkmodels (which would create an import cycle).
import _ "github.com/pkmc/pkmc/sim/pkmodels"
