// Package output provides utilities for formatting and displaying decision results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PrinceOfCongo/newsveond/internal/diagnostics"
	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/decision"
	formatutil "github.com/PrinceOfCongo/newsveond/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Write renders the summary in the requested format. An empty format means pretty.
func Write(w io.Writer, summary decision.Summary, format string) error {
	switch format {
	case "", constants.OutputFormatPretty:
		PrettyFormat(w, summary)
		return nil
	case constants.OutputFormatCSV:
		CsvFormat(w, summary)
		return nil
	case constants.OutputFormatJSON:
		return JSONFormat(w, summary)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, summary decision.Summary) {
	p := message.NewPrinter(language.English)

	if summary.RunID != "" {
		fmt.Fprintf(w, "--- Decision %s ---\n", summary.RunID)
	} else {
		fmt.Fprintf(w, "--- Decision ---\n")
	}
	_, _ = p.Fprintf(w, "Sample          | %d observations, mean %.2f\n", summary.SampleSize, summary.SampleMean)
	fmt.Fprintf(w, "Price / cost    | %s / %s\n", formatutil.Currency(summary.Price), formatutil.Currency(summary.Cost))
	fmt.Fprintf(w, "Risk aversion   | %g\n", summary.RiskAversion)
	_, _ = p.Fprintf(w, "Demand rate     | %.4f (initial guess %.4f)\n", summary.MLE, summary.InitialGuess)
	_, _ = p.Fprintf(w, "Confidence set  | [%.4f, %.4f], %d points, alpha %g, critical value %.4f\n",
		summary.ConfidenceSet.Lower, summary.ConfidenceSet.Upper, summary.ConfidenceSet.Points,
		summary.ConfidenceSet.Alpha, summary.ConfidenceSet.CriticalValue)
	_, _ = p.Fprintf(w, "Nominal order   | %d units, utility %s\n", summary.NominalSupply, formatutil.Currency(summary.NominalUtility))
	_, _ = p.Fprintf(w, "Robust order    | %d units, worst-case utility %s at rate %.4f\n",
		summary.RobustSupply, formatutil.Currency(summary.WorstCaseUtility), summary.WorstCaseLambda)
	if summary.Robust() {
		fmt.Fprintf(w, "Hedge           | %+d units against the nominal order\n", summary.RobustSupply-summary.NominalSupply)
	}

	if len(summary.Curves) > 0 {
		fmt.Fprintf(w, "\nSupply | Expected Profit | Std Dev | Utility | Worst-Case Utility\n")
		fmt.Fprintf(w, "______ | _______________ | _______ | _______ | __________________\n")
		for _, c := range summary.Curves {
			marker := ""
			if c.Supply == summary.RobustSupply {
				marker = " <- robust"
			}
			if c.Supply == summary.NominalSupply {
				marker += " <- nominal"
			}
			_, _ = p.Fprintf(w, "%d | %s | %.2f | %s | %s%s\n",
				c.Supply,
				formatutil.Currency(c.ExpectedProfit),
				sqrt(c.Variance),
				formatutil.Currency(c.Utility),
				formatutil.Currency(c.WorstCaseUtility),
				marker)
		}
	}

	if len(summary.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, warning := range summary.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

// CsvFormat outputs the decision curves in comma-separated value format.
func CsvFormat(w io.Writer, summary decision.Summary) {
	fmt.Fprintf(w, `"supply","expected profit","variance","utility","worst-case utility","worst-case rate"`)
	fmt.Fprintf(w, "\n")
	for _, c := range summary.Curves {
		fmt.Fprintf(w, `"%d","%s","%s","%s","%s","%.6f"`,
			c.Supply,
			formatutil.Plain(c.ExpectedProfit),
			formatutil.Plain(c.Variance),
			formatutil.Plain(c.Utility),
			formatutil.Plain(c.WorstCaseUtility),
			c.WorstCaseLambda)
		fmt.Fprintf(w, "\n")
	}
}

// CsvString returns the CSV rendering as a string.
func CsvString(summary decision.Summary) string {
	var b strings.Builder
	CsvFormat(&b, summary)
	return b.String()
}

// JSONFormat outputs the summary as indented JSON.
func JSONFormat(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DiagnosticsFormat outputs a distribution comparison report.
func DiagnosticsFormat(w io.Writer, report *diagnostics.Report) {
	p := message.NewPrinter(language.English)

	fmt.Fprintf(w, "--- Distribution diagnostics ---\n")
	_, _ = p.Fprintf(w, "Sample   | %d observations, mean %.4f, variance %.4f, range [%d, %d]\n",
		report.Summary.Size, report.Summary.Mean, report.Summary.Variance, report.Summary.Min, report.Summary.Max)
	fmt.Fprintf(w, "\nFamily   | Squared Error | Parameters\n")
	fmt.Fprintf(w, "______   | _____________ | __________\n")
	for _, fit := range report.Fits {
		fmt.Fprintf(w, "%-8s | %.6g | %s\n", fit.Family, fit.SquaredError, parameters(fit.Parameters))
	}
	fmt.Fprintf(w, "\nBest fit: %s\n", report.Best)
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}
