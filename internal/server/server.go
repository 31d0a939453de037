package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PrinceOfCongo/newsveond/internal/config"
	"github.com/PrinceOfCongo/newsveond/internal/diagnostics"
	"github.com/PrinceOfCongo/newsveond/internal/optimizer"
	"github.com/PrinceOfCongo/newsveond/internal/sample"
	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/decision"
	"github.com/PrinceOfCongo/newsveond/pkg/nverr"
	"github.com/PrinceOfCongo/newsveond/pkg/output"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RunIDHeader carries the run id on every API response.
const RunIDHeader = "X-Run-ID"

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	workers       int
	limits        Limits
	version       string
	started       time.Time
}

// NewHandler constructs the HTTP handler that serves the decision API.
func NewHandler(logger *zap.Logger, cfg *Config, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{}
		_ = cfg.normalize()
	}

	maxUploadSize := cfg.UploadSizeBytes()
	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:        logger,
		maxUploadSize: maxUploadSize,
		workers:       cfg.Workers,
		limits:        cfg.Limits.withDefaults(),
		version:       trimmedVersion,
		started:       time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/decision", h.handleDecision)
		r.Post("/diagnostics", h.handleDiagnostics)
		r.Post("/config/export", h.handleConfigExport)
		r.Get("/version", h.handleVersion)
	})

	return r
}

type decisionResponse struct {
	RunID      string           `json:"runId"`
	Summary    decision.Summary `json:"summary"`
	CSV        string           `json:"csv"`
	Duration   string           `json:"duration"`
	ConfigYAML string           `json:"configYaml,omitempty"`
}

type diagnosticsResponse struct {
	RunID  string              `json:"runId"`
	Report *diagnostics.Report `json:"report"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Param string `json:"param,omitempty"`
	RunID string `json:"runId,omitempty"`
}

func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request served",
			zap.String("op", "server.requestLogger"),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleDecision"
	start := time.Now()
	runID := uuid.NewString()
	w.Header().Set(RunIDHeader, runID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var (
		configBytes []byte
		data        []int
		err         error
	)
	if isMultipart(r) {
		configBytes, data, err = h.readDecisionUpload(r)
	} else {
		configBytes, data, err = readDecisionBody(r.Body)
	}
	if err != nil {
		h.respondError(w, op, runID, err)
		return
	}

	cfg, err := config.LoadConfigurationFromReader(bytes.NewReader(configBytes))
	if err != nil {
		h.respondError(w, op, runID, nverr.Invalid(op, "config", "%v", err))
		return
	}
	if cfg.Workers == 0 {
		cfg.Workers = h.workers
	}
	if lowered := h.limits.clamp(cfg); len(lowered) > 0 {
		h.logger.Warn("request budget lowered to server limits",
			zap.String("op", op),
			zap.String("runId", runID),
			zap.Strings("keys", lowered),
		)
	}

	if len(data) == 0 {
		data = cfg.Sample.Values
	}
	if len(data) == 0 && cfg.Sample.Path != "" {
		h.respondError(w, op, runID, nverr.Invalid(op, "sample", "sample.path is not read by the server; send the values"))
		return
	}

	runner, err := optimizer.NewRunner(h.logger.With(zap.String("runId", runID)), cfg)
	if err != nil {
		h.respondError(w, op, runID, nverr.Invalid(op, "config", "%v", err))
		return
	}
	result, err := runner.RunContext(r.Context(), data)
	if err != nil {
		h.respondError(w, op, runID, err)
		return
	}

	summary := result.Summary()
	summary.RunID = runID

	normalized, err := yaml.Marshal(cfg)
	if err != nil {
		h.logger.Warn("failed to marshal normalized configuration",
			zap.String("op", op),
			zap.Error(err),
		)
	}

	elapsed := time.Since(start)
	h.logger.Info("decision computed",
		zap.String("op", op),
		zap.String("runId", runID),
		zap.Int("robustSupply", summary.RobustSupply),
		zap.Int("nominalSupply", summary.NominalSupply),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, decisionResponse{
		RunID:      runID,
		Summary:    summary,
		CSV:        output.CsvString(summary),
		Duration:   elapsed.String(),
		ConfigYAML: string(normalized),
	})
}

// readDecisionUpload reads a multipart request with the YAML configuration in
// "file" and an optional sample file in "sample".
func (h *handler) readDecisionUpload(r *http.Request) ([]byte, []int, error) {
	const op = "server.readDecisionUpload"
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return nil, nil, uploadError(op, err)
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, nverr.Invalid(op, "file", "missing configuration file")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()
	configBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	sampleFile, header, err := r.FormFile("sample")
	if errors.Is(err, http.ErrMissingFile) {
		return configBytes, nil, nil
	}
	if err != nil {
		return nil, nil, nverr.Invalid(op, "sample", "unreadable sample upload: %v", err)
	}
	defer sampleFile.Close()

	data, err := sample.Load(sampleFile, sample.FormatFromPath(header.Filename))
	if err != nil {
		return nil, nil, err
	}
	return configBytes, data, nil
}

// readDecisionBody accepts a JSON or YAML document. A "config" key holds the
// configuration and a top-level list under "sample" holds the demand sample;
// without a "config" key the whole document is the configuration.
func readDecisionBody(body io.Reader) ([]byte, []int, error) {
	const op = "server.readDecisionBody"
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, uploadError(op, err)
	}
	payload, err := decodeYAMLToMap(raw)
	if err != nil {
		return nil, nil, nverr.Invalid(op, "body", "malformed request body: %v", err)
	}

	var data []int
	if rawSample, ok := payload["sample"]; ok {
		if _, isSection := rawSample.(map[string]interface{}); !isSection {
			data, err = toSample(rawSample)
			if err != nil {
				return nil, nil, err
			}
			delete(payload, "sample")
		}
	}

	configPayload := payload
	if rawConfig, ok := payload["config"]; ok {
		cfgMap, ok := rawConfig.(map[string]interface{})
		if !ok {
			return nil, nil, nverr.Invalid(op, "config", "invalid config payload: expected object")
		}
		configPayload = cfgMap
	}

	configBytes, err := yaml.Marshal(configPayload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	return configBytes, data, nil
}

func (h *handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleDiagnostics"
	runID := uuid.NewString()
	w.Header().Set(RunIDHeader, runID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, op, runID, uploadError(op, err))
		return
	}

	var data []int
	if mediaType(r) == "text/csv" || mediaType(r) == "text/plain" {
		data, err = sample.Load(bytes.NewReader(raw), sample.FormatCSV)
	} else {
		data, err = sample.Load(bytes.NewReader(raw), sample.FormatYAML)
	}
	if err != nil {
		h.respondError(w, op, runID, err)
		return
	}

	report, err := diagnostics.Compare(data)
	if err != nil {
		h.respondError(w, op, runID, err)
		return
	}
	if report.Degenerate != nil {
		h.logger.Warn("degenerate sample",
			zap.String("op", op),
			zap.String("runId", runID),
			zap.Error(report.Degenerate),
		)
	}

	h.writeJSON(w, http.StatusOK, diagnosticsResponse{RunID: runID, Report: report})
}

func (h *handler) handleConfigExport(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleConfigExport"
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, op, "", nverr.Invalid(op, "body", "failed to decode configuration: %v", err))
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}

	yamlBytes, err := marshalOrderedConfigYAML(payload)
	if err != nil {
		h.respondError(w, op, "", nverr.Invalid(op, "body", "failed to encode configuration: %v", err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"configYaml": string(yamlBytes),
	})
}

// configKeyOrder lists the sections in the order of config.yaml.example.
var configKeyOrder = []string{"model", "estimation", "moments", "sample", "workers", "logging", "output"}

func marshalOrderedConfigYAML(payload map[string]interface{}) ([]byte, error) {
	items := make([]orderedItem, 0, len(payload))
	seen := make(map[string]struct{})

	for _, key := range configKeyOrder {
		if value, ok := payload[key]; ok {
			items = append(items, orderedItem{key: key, value: value})
			seen[key] = struct{}{}
		}
	}

	remainingKeys := make([]string, 0, len(payload))
	for key := range payload {
		if _, already := seen[key]; already {
			continue
		}
		remainingKeys = append(remainingKeys, key)
	}
	sort.Strings(remainingKeys)
	for _, key := range remainingKeys {
		items = append(items, orderedItem{key: key, value: payload[key]})
	}

	ordered := orderedConfig{items: items}
	return yaml.Marshal(ordered)
}

type orderedConfig struct {
	items []orderedItem
}

type orderedItem struct {
	key   string
	value interface{}
}

func (o orderedConfig) MarshalYAML() (interface{}, error) {
	mapNode := &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
	}

	for _, item := range o.items {
		keyNode := &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Value: item.key,
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(item.value); err != nil {
			return nil, err
		}
		mapNode.Content = append(mapNode.Content, keyNode, valueNode)
	}

	return mapNode, nil
}

func decodeYAMLToMap(data []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return make(map[string]interface{}), nil
	}

	var result map[string]interface{}
	if err := yaml.Unmarshal(trimmed, &result); err != nil {
		return nil, err
	}
	if result == nil {
		result = make(map[string]interface{})
	}
	return result, nil
}

// toSample validates a decoded list of counts.
func toSample(value interface{}) ([]int, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, nverr.Invalid("server.toSample", "sample", "sample is not a list of counts")
	}
	return sample.Load(bytes.NewReader(encoded), sample.FormatJSON)
}

func isMultipart(r *http.Request) bool {
	return mediaType(r) == "multipart/form-data"
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// uploadError maps body read failures, keeping oversize uploads distinguishable.
func uploadError(op string, err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &uploadTooLargeError{limit: maxBytesErr.Limit}
	}
	return nverr.Invalid(op, "body", "failed to parse upload: %v", err)
}

type uploadTooLargeError struct {
	limit int64
}

func (e *uploadTooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds limit of %d bytes", e.limit)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *uploadTooLargeError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, nverr.ErrInvalidInput),
		errors.Is(err, nverr.ErrInsufficientTruncation),
		errors.Is(err, nverr.ErrBudgetExceeded),
		errors.Is(err, nverr.ErrDegenerateSample):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondError(w http.ResponseWriter, op, runID string, err error) {
	status := statusFor(err)
	resp := errorResponse{
		Error: err.Error(),
		Param: nverr.ParamOf(err),
		RunID: runID,
	}
	if kind := nverr.KindName(err); kind != "internal" || status == http.StatusInternalServerError {
		resp.Kind = kind
	}

	h.logger.Error("request failed",
		zap.String("op", op),
		zap.String("runId", runID),
		zap.Int("status", status),
		zap.String("kind", resp.Kind),
		zap.String("param", resp.Param),
		zap.Error(err),
	)

	h.writeJSON(w, status, resp)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
