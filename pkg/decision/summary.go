// Package decision provides shared data structures for decision results.
package decision

// Summary captures the outcome of a single decision run.
type Summary struct {
	RunID            string   `json:"runId,omitempty"`
	SampleSize       int      `json:"sampleSize"`
	SampleMean       float64  `json:"sampleMean"`
	Price            float64  `json:"price"`
	Cost             float64  `json:"cost"`
	RiskAversion     float64  `json:"riskAversion"`
	InitialGuess     float64  `json:"initialGuess"`
	MLE              float64  `json:"mle"`
	MaxLogLikelihood float64  `json:"maxLogLikelihood"`
	ConfidenceSet    Interval `json:"confidenceSet"`
	NominalSupply    int      `json:"nominalSupply"`
	NominalUtility   float64  `json:"nominalUtility"`
	RobustSupply     int      `json:"robustSupply"`
	WorstCaseUtility float64  `json:"worstCaseUtility"`
	WorstCaseLambda  float64  `json:"worstCaseLambda"`
	Curves           []Curve  `json:"curves,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Interval describes the likelihood-ratio confidence set.
type Interval struct {
	Alpha            float64 `json:"alpha"`
	DegreesOfFreedom float64 `json:"degreesOfFreedom"`
	CriticalValue    float64 `json:"criticalValue"`
	Lower            float64 `json:"lower"`
	Upper            float64 `json:"upper"`
	Points           int     `json:"points"`
}

// Curve is one supply level of the nominal and robust utility curves.
type Curve struct {
	Supply           int     `json:"supply"`
	ExpectedProfit   float64 `json:"expectedProfit"`
	Variance         float64 `json:"variance"`
	Utility          float64 `json:"utility"`
	WorstCaseUtility float64 `json:"worstCaseUtility"`
	WorstCaseLambda  float64 `json:"worstCaseLambda"`
}

// Robust reports whether hedging against the confidence set changed the order.
func (s Summary) Robust() bool {
	return s.RobustSupply != s.NominalSupply
}
