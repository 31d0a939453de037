package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/PrinceOfCongo/newsveond/internal/diagnostics"
	"github.com/PrinceOfCongo/newsveond/pkg/decision"
)

func testSummary() decision.Summary {
	return decision.Summary{
		RunID:            "run-1",
		SampleSize:       5,
		SampleMean:       100,
		Price:            3,
		Cost:             1,
		RiskAversion:     0.01,
		InitialGuess:     100,
		MLE:              100,
		MaxLogLikelihood: -18.2,
		ConfidenceSet: decision.Interval{
			Alpha:            0.05,
			DegreesOfFreedom: 1,
			CriticalValue:    3.841459,
			Lower:            91.24,
			Upper:            108.76,
			Points:           439,
		},
		NominalSupply:    101,
		NominalUtility:   1190.5,
		RobustSupply:     100,
		WorstCaseUtility: 1150.25,
		WorstCaseLambda:  91.24,
		Curves: []decision.Curve{
			{Supply: 100, ExpectedProfit: 1200, Variance: 400, Utility: 1196, WorstCaseUtility: 1150.25, WorstCaseLambda: 91.24},
			{Supply: 101, ExpectedProfit: 1201.5, Variance: 410, Utility: 1197.4, WorstCaseUtility: 1149, WorstCaseLambda: 91.24},
		},
		Warnings: []string{"Something to check"},
	}
}

func TestPrettyFormat(t *testing.T) {
	var buf bytes.Buffer
	PrettyFormat(&buf, testSummary())
	output := buf.String()

	expected := []string{
		"--- Decision run-1 ---",
		"5 observations, mean 100.00",
		"$3.00 / $1.00",
		"Nominal order   | 101 units, utility $1,190.50",
		"Robust order    | 100 units, worst-case utility $1,150.25 at rate 91.2400",
		"Hedge           | -1 units against the nominal order",
		"Supply | Expected Profit | Std Dev | Utility | Worst-Case Utility",
		"100 | $1,200.00 | 20.00 | $1,196.00 | $1,150.25 <- robust",
		"101 | $1,201.50 |",
		"<- nominal",
		"  - Something to check",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("PrettyFormat missing %q in:\n%s", want, output)
		}
	}
}

func TestPrettyFormatWithoutCurves(t *testing.T) {
	summary := testSummary()
	summary.RunID = ""
	summary.Curves = nil
	summary.Warnings = nil
	summary.RobustSupply = summary.NominalSupply

	var buf bytes.Buffer
	PrettyFormat(&buf, summary)
	output := buf.String()

	if strings.Contains(output, "Hedge") {
		t.Errorf("PrettyFormat reported a hedge for equal orders:\n%s", output)
	}

	if !strings.Contains(output, "--- Decision ---") {
		t.Errorf("PrettyFormat missing anonymous header")
	}
	if strings.Contains(output, "Supply |") {
		t.Errorf("PrettyFormat printed a curve table without curves")
	}
	if strings.Contains(output, "Warnings:") {
		t.Errorf("PrettyFormat printed an empty warning section")
	}
}

func TestCsvFormat(t *testing.T) {
	output := CsvString(testSummary())
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines:\n%s", len(lines), output)
	}
	if lines[0] != `"supply","expected profit","variance","utility","worst-case utility","worst-case rate"` {
		t.Errorf("Unexpected CSV header %s", lines[0])
	}
	if lines[1] != `"100","1200.00","400.00","1196.00","1150.25","91.240000"` {
		t.Errorf("Unexpected CSV row %s", lines[1])
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := JSONFormat(&buf, testSummary()); err != nil {
		t.Fatalf("JSONFormat() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSONFormat produced invalid JSON: %v", err)
	}
	if decoded["robustSupply"] != 100.0 {
		t.Errorf("Expected robustSupply 100, got %v", decoded["robustSupply"])
	}
	if decoded["runId"] != "run-1" {
		t.Errorf("Expected runId run-1, got %v", decoded["runId"])
	}
	interval, ok := decoded["confidenceSet"].(map[string]interface{})
	if !ok || interval["points"] != 439.0 {
		t.Errorf("Unexpected confidenceSet %v", decoded["confidenceSet"])
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		format    string
		contains  string
		wantError bool
	}{
		{"", "--- Decision", false},
		{"pretty", "--- Decision", false},
		{"csv", `"supply"`, false},
		{"json", `"nominalSupply": 101`, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, testSummary(), tt.format)
			if tt.wantError {
				if err == nil {
					t.Errorf("Write() expected error for format %q", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("Write(%q) missing %q", tt.format, tt.contains)
			}
		})
	}
}

func TestDiagnosticsFormat(t *testing.T) {
	report, err := diagnostics.Compare([]int{1, 9, 2, 12, 0, 7})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	var buf bytes.Buffer
	DiagnosticsFormat(&buf, report)
	output := buf.String()

	for _, want := range []string{"--- Distribution diagnostics ---", "poisson", "lambda=", "Best fit:", "Warning:"} {
		if !strings.Contains(output, want) {
			t.Errorf("DiagnosticsFormat missing %q in:\n%s", want, output)
		}
	}
	if strings.Contains(output, "binomial |") {
		t.Errorf("DiagnosticsFormat printed a binomial fit for an over-dispersed sample")
	}
}
