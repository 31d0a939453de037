// Package sample loads the historical demand sample and summarizes it.
package sample

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// Format identifies a sample encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// document is the keyed form accepted by the YAML and JSON loaders.
type document struct {
	Demand []float64 `yaml:"demand" json:"demand"`
}

// Summary describes a demand sample.
type Summary struct {
	Size     int     `json:"size"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Min      int     `json:"min"`
	Max      int     `json:"max"`
}

// Overdispersed reports whether the sample variance reaches the mean.
func (s Summary) Overdispersed() bool {
	return s.Variance >= s.Mean
}

// FormatFromPath infers the encoding from the file extension. Unknown
// extensions are read as CSV, which also covers one value per line.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// LoadFile reads a demand sample from path.
func LoadFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening sample file, %w", err)
	}
	defer f.Close()
	return Load(f, FormatFromPath(path))
}

// Load decodes a demand sample from r.
func Load(r io.Reader, format Format) ([]int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading sample, %w", err)
	}

	var raw []float64
	switch format {
	case FormatYAML:
		raw, err = decodeYAML(data)
	case FormatJSON:
		raw, err = decodeJSON(data)
	case FormatCSV:
		raw, err = decodeCSV(data)
	default:
		return nil, nverr.Invalid("sample.Load", "format", "unsupported sample format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return toCounts(raw)
}

func decodeYAML(data []byte) ([]float64, error) {
	var list []float64
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nverr.Invalid("sample.Load", "sample", "malformed YAML sample: %v", err)
	}
	return doc.Demand, nil
}

func decodeJSON(data []byte) ([]float64, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []float64
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, nverr.Invalid("sample.Load", "sample", "malformed JSON sample: %v", err)
		}
		return list, nil
	}
	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nverr.Invalid("sample.Load", "sample", "malformed JSON sample: %v", err)
	}
	return doc.Demand, nil
}

// decodeCSV reads the last column of every row. A non-numeric first row is
// treated as a header.
func decodeCSV(data []byte) ([]float64, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var out []float64
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nverr.Invalid("sample.Load", "sample", "malformed CSV sample: %v", err)
		}
		field := strings.TrimSpace(record[len(record)-1])
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			if row == 0 {
				continue
			}
			return nil, nverr.Invalid("sample.Load", "sample", "row %d: %q is not a number", row+1, field)
		}
		out = append(out, v)
	}
	return out, nil
}

func toCounts(raw []float64) ([]int, error) {
	const op = "sample.Load"
	if len(raw) == 0 {
		return nil, nverr.Invalid(op, "sample", "sample is empty")
	}
	out := make([]int, len(raw))
	for i, v := range raw {
		if v < 0 || v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, nverr.Invalid(op, "sample", "value %d = %g is not a non-negative integer", i, v)
		}
		out[i] = int(v)
	}
	return out, nil
}

// Summarize returns the size, mean, unbiased variance and range of sample.
// A single observation has zero variance.
func Summarize(sample []int) (Summary, error) {
	if len(sample) == 0 {
		return Summary{}, nverr.Invalid("sample.Summarize", "sample", "sample is empty")
	}
	summary := Summary{
		Size: len(sample),
		Min:  sample[0],
		Max:  sample[0],
	}
	values := make([]float64, len(sample))
	for i, v := range sample {
		values[i] = float64(v)
		summary.Min = min(summary.Min, v)
		summary.Max = max(summary.Max, v)
	}
	if len(values) == 1 {
		summary.Mean = values[0]
		return summary, nil
	}
	summary.Mean, summary.Variance = stat.MeanVariance(values, nil)
	return summary, nil
}
