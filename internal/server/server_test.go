package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"go.uber.org/zap"
)

const decisionYAML = `
model:
  price: 3
  cost: 1
  supply:
    min: 80
    max: 120
estimation:
  gridSize: 101
`

func newTestHandler() http.Handler {
	return NewHandler(zap.NewNop(), nil, "test")
}

func TestHandleDecisionJSON(t *testing.T) {
	handler := newTestHandler()

	payload := map[string]interface{}{
		"config": map[string]interface{}{
			"model": map[string]interface{}{
				"price":  3,
				"cost":   1,
				"supply": map[string]interface{}{"min": 80, "max": 120},
			},
			"estimation": map[string]interface{}{"gridSize": 101},
		},
		"sample": []int{90, 95, 100, 105, 110},
	}
	rr := performJSON(t, handler, payload, "/api/decision")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp decisionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RunID == "" || rr.Header().Get(RunIDHeader) != resp.RunID {
		t.Fatalf("expected matching run id in body and header, got %q and %q", resp.RunID, rr.Header().Get(RunIDHeader))
	}
	if resp.Summary.RunID != resp.RunID {
		t.Fatalf("expected summary run id %q, got %q", resp.RunID, resp.Summary.RunID)
	}
	if resp.Summary.MLE != 100 {
		t.Fatalf("expected MLE 100, got %v", resp.Summary.MLE)
	}
	if resp.Summary.RobustSupply > resp.Summary.NominalSupply {
		t.Fatalf("robust supply %d exceeds nominal supply %d", resp.Summary.RobustSupply, resp.Summary.NominalSupply)
	}
	if len(resp.Summary.Curves) != 41 {
		t.Fatalf("expected 41 curve points, got %d", len(resp.Summary.Curves))
	}
	if resp.CSV == "" {
		t.Fatal("expected CSV data in response")
	}
	if resp.Duration == "" {
		t.Fatal("expected duration in response")
	}
	if !strings.Contains(resp.ConfigYAML, "price: 3") {
		t.Fatalf("expected normalized config YAML, got %q", resp.ConfigYAML)
	}
}

func TestHandleDecisionYAMLDocument(t *testing.T) {
	handler := newTestHandler()

	body := decisionYAML + `
sample:
  values: [90, 95, 100, 105, 110]
`
	req := httptest.NewRequest(http.MethodPost, "/api/decision", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/yaml")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp decisionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Summary.SampleSize != 5 {
		t.Fatalf("expected sample size 5, got %d", resp.Summary.SampleSize)
	}
}

func TestHandleDecisionUpload(t *testing.T) {
	handler := newTestHandler()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writeFormFile(t, writer, "file", "config.yaml", decisionYAML)
	writeFormFile(t, writer, "sample", "demand.csv", "demand\n90\n95\n100\n105\n110\n")
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/decision", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp decisionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Summary.SampleMean != 100 {
		t.Fatalf("expected sample mean 100, got %v", resp.Summary.SampleMean)
	}
}

func TestHandleDecisionUploadTooLarge(t *testing.T) {
	cfg := &Config{}
	cfg.SetUploadSizeBytes(64)
	handler := NewHandler(zap.NewNop(), cfg, "test")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writeFormFile(t, writer, "file", "config.yaml", strings.Repeat("a", 128))
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/decision", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}

	resp := decodeError(t, rr)
	if !strings.Contains(resp.Error, "upload exceeds limit") {
		t.Fatalf("expected upload limit error message, got %q", resp.Error)
	}
}

func TestHandleDecisionMissingFile(t *testing.T) {
	handler := newTestHandler()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/decision", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if !strings.Contains(resp.Error, "missing configuration file") {
		t.Fatalf("expected missing file error, got %q", resp.Error)
	}
	if resp.Kind != "InvalidInput" || resp.Param != "file" {
		t.Fatalf("expected InvalidInput on file, got %s on %s", resp.Kind, resp.Param)
	}
}

func TestHandleDecisionErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
		param  string
	}{
		{
			name:   "Malformed body",
			body:   "model: [",
			status: http.StatusBadRequest,
			kind:   "InvalidInput",
			param:  "body",
		},
		{
			name:   "Negative observation",
			body:   decisionYAML + "sample: [90, -5]\n",
			status: http.StatusBadRequest,
			kind:   "InvalidInput",
			param:  "sample",
		},
		{
			name:   "Missing sample",
			body:   decisionYAML,
			status: http.StatusBadRequest,
			kind:   "InvalidInput",
			param:  "sample",
		},
		{
			name:   "Sample path is not read",
			body:   decisionYAML + "sample:\n  path: /etc/demand.csv\n",
			status: http.StatusBadRequest,
			kind:   "InvalidInput",
			param:  "sample",
		},
		{
			name:   "Invalid model",
			body:   "model:\n  price: -3\n  supply:\n    min: 1\n    max: 2\nsample: [1, 2]\n",
			status: http.StatusBadRequest,
			kind:   "InvalidInput",
			param:  "config",
		},
		{
			name:   "Narrow truncation",
			body:   decisionYAML + "moments:\n  truncationFactor: 1\nsample: [90, 95, 100, 105, 110]\n",
			status: http.StatusBadRequest,
			kind:   "InsufficientTruncation",
			param:  "truncationFactor",
		},
		{
			name:   "Cell budget",
			body:   decisionYAML + "moments:\n  maxCells: 10\nsample: [90, 95, 100, 105, 110]\n",
			status: http.StatusBadRequest,
			kind:   "BudgetExceeded",
			param:  "truncationFactor",
		},
	}

	handler := newTestHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/decision", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/yaml")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			resp := decodeError(t, rr)
			if resp.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s (%s)", tt.kind, resp.Kind, resp.Error)
			}
			if resp.Param != tt.param {
				t.Errorf("expected param %s, got %s (%s)", tt.param, resp.Param, resp.Error)
			}
			if resp.RunID == "" {
				t.Errorf("expected run id on error response")
			}
		})
	}
}

func TestHandleDecisionClampsRequestBudgets(t *testing.T) {
	cfg := &Config{Limits: Limits{MaxGridSize: 500, MaxSweepCells: 1000}}
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	handler := NewHandler(zap.NewNop(), cfg, "test")

	tests := []struct {
		name  string
		body  string
		param string
	}{
		{
			name:  "Grid above the server limit",
			body:  "model:\n  price: 3\n  cost: 1\n  supply:\n    min: 80\n    max: 120\nestimation:\n  gridSize: 3000001\n  maxGridSize: 1000000000\nsample: [90, 95, 100, 105, 110]\n",
			param: "config",
		},
		{
			name:  "Sweep above the server limit",
			body:  decisionYAML + "moments:\n  maxSweepCells: 1000000000\nsample: [90, 95, 100, 105, 110]\n",
			param: "lambdas",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/decision", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/yaml")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if resp := decodeError(t, rr); resp.Param != tt.param {
				t.Errorf("expected param %s, got %s (%s)", tt.param, resp.Param, resp.Error)
			}
		})
	}
}

func TestHandleDecisionStopsWithRequestContext(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, stop := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer stop()

	tests := []struct {
		name   string
		ctx    context.Context
		status int
	}{
		{"Client went away", cancelled, http.StatusServiceUnavailable},
		{"Deadline passed", expired, http.StatusGatewayTimeout},
	}

	handler := newTestHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := decisionYAML + "sample: [90, 95, 100, 105, 110]\n"
			req := httptest.NewRequest(http.MethodPost, "/api/decision", strings.NewReader(body)).WithContext(tt.ctx)
			req.Header.Set("Content-Type", "application/yaml")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestHandleDiagnostics(t *testing.T) {
	handler := newTestHandler()

	tests := []struct {
		name        string
		body        string
		contentType string
		best        bool
		warnings    int
	}{
		{"JSON list", "[90, 95, 100, 105, 110]", "application/json", true, 0},
		{"JSON document", `{"demand": [90, 95, 100, 105, 110]}`, "application/json", true, 0},
		{"CSV body", "demand\n1\n9\n2\n12\n0\n7\n", "text/csv", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/diagnostics", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
			}
			var resp struct {
				RunID  string `json:"runId"`
				Report struct {
					Best     string   `json:"best"`
					Warnings []string `json:"warnings"`
				} `json:"report"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.RunID == "" {
				t.Errorf("expected run id")
			}
			if tt.best && resp.Report.Best == "" {
				t.Errorf("expected a best-fitting family")
			}
			if len(resp.Report.Warnings) != tt.warnings {
				t.Errorf("expected %d warnings, got %v", tt.warnings, resp.Report.Warnings)
			}
		})
	}
}

func TestHandleDiagnosticsRejectsEmptySample(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/diagnostics", strings.NewReader("[]"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Kind != "InvalidInput" {
		t.Fatalf("expected InvalidInput, got %s", resp.Kind)
	}
}

func TestHandleConfigExport(t *testing.T) {
	handler := newTestHandler()

	payload := map[string]interface{}{
		"zeta":       1,
		"output":     map[string]interface{}{"format": "json"},
		"model":      map[string]interface{}{"price": 3},
		"estimation": map[string]interface{}{"alpha": 0.05},
	}
	rr := performJSON(t, handler, payload, "/api/config/export")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	yamlText := resp["configYaml"]
	model := strings.Index(yamlText, "model:")
	estimation := strings.Index(yamlText, "estimation:")
	out := strings.Index(yamlText, "output:")
	zeta := strings.Index(yamlText, "zeta:")
	if model < 0 || !(model < estimation && estimation < out && out < zeta) {
		t.Fatalf("unexpected key order in:\n%s", yamlText)
	}
}

func TestHandleVersionAndHealth(t *testing.T) {
	handler := newTestHandler()

	for _, path := range []string{"/api/version", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: failed to decode response: %v", path, err)
		}
		if resp["version"] != "test" {
			t.Fatalf("%s: expected version test, got %q", path, resp["version"])
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/decision", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{nverr.Invalid("op", "price", "bad"), http.StatusBadRequest},
		{nverr.Truncation("op", 1, 0.5, 0.999), http.StatusBadRequest},
		{nverr.Budget("op", "gridSize", 10, 5), http.StatusBadRequest},
		{&nverr.Error{Kind: nverr.ErrEmptyConfidenceSet, Op: "op"}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{&uploadTooLargeError{limit: 10}, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("run: %w", context.Canceled), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.status {
			t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.status)
		}
	}
}

func writeFormFile(t *testing.T, writer *multipart.Writer, field, filename, content string) {
	t.Helper()

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form data: %v", err)
	}
}

func performJSON(t *testing.T, handler http.Handler, payload map[string]interface{}, path string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}
