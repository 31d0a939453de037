// Package constants provides shared constants for the newsvendor application.
package constants

import "time"

// Moment computation defaults
const (
	// DefaultTruncationFactor bounds the Poisson sum at factor × demand rate
	DefaultTruncationFactor = 5.0

	// DefaultMassTolerance is the minimum retained Poisson probability mass
	DefaultMassTolerance = 0.999

	// DefaultMaxCells caps |supply| × |demand grid| for one profit matrix
	DefaultMaxCells = 4_000_000

	// DefaultMaxSweepCells caps |confidence set| × |supply| × |demand grid|
	// across the robust sweep
	DefaultMaxSweepCells = 200_000_000
)

// Estimation defaults
const (
	// DefaultRelativeWindow is the MLE search half-width relative to the guess
	DefaultRelativeWindow = 0.2

	// DefaultGridSize is the number of candidate demand rates in the MLE search
	DefaultGridSize = 1000

	// DefaultMaxGridSize caps the MLE grid resolution a caller may request
	DefaultMaxGridSize = 1_000_000

	// DefaultAlpha is the likelihood-ratio test significance level
	DefaultAlpha = 0.05

	// DefaultDegreesOfFreedom is the chi-square degrees of freedom of the test
	DefaultDegreesOfFreedom = 1.0
)

// Model defaults
const (
	// DefaultSupplyStep is the spacing of a supply grid given as a range
	DefaultSupplyStep = 1
)

// Numerical tolerances
const (
	// VarianceTolerance absorbs rounding noise when checking E[X²] ≥ E[X]²
	VarianceTolerance = 1e-6

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01

	// DecimalPrecision is the number of decimal places for rendered money
	DecimalPrecision = 2
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix prefixes environment overrides, e.g. NEWSVENDOR_MODEL_PRICE
	EnvPrefix = "NEWSVENDOR"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultRequestTimeout bounds a single decision request
	DefaultRequestTimeout = 60 * time.Second

	// DefaultServerMaxGridSize caps the MLE grid resolution of an API request
	DefaultServerMaxGridSize = 100_000
)
