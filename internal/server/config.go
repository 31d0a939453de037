package server

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PrinceOfCongo/newsveond/internal/config"
	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config defines runtime parameters for the HTTP server.
type Config struct {
	Address         string               `yaml:"address"`
	MaxUploadSize   string               `yaml:"maxUploadSize"`
	RequestTimeout  string               `yaml:"requestTimeout"`
	Workers         int                  `yaml:"workers"`
	Limits          Limits               `yaml:"limits"`
	Logging         config.LoggingConfig `yaml:"logging"`
	uploadSizeBytes int64
	requestTimeout  time.Duration
}

// Limits caps the computational budget a decision request may ask for.
// Request values above a limit are lowered to it.
type Limits struct {
	MaxGridSize   int `yaml:"maxGridSize"`
	MaxCells      int `yaml:"maxCells"`
	MaxSweepCells int `yaml:"maxSweepCells"`
}

func (l Limits) withDefaults() Limits {
	if l.MaxGridSize <= 0 {
		l.MaxGridSize = constants.DefaultServerMaxGridSize
	}
	if l.MaxCells <= 0 {
		l.MaxCells = constants.DefaultMaxCells
	}
	if l.MaxSweepCells <= 0 {
		l.MaxSweepCells = constants.DefaultMaxSweepCells
	}
	return l
}

// clamp lowers the budgets of conf to the limits and returns the keys it
// changed.
func (l Limits) clamp(conf *config.Configuration) []string {
	var lowered []string
	if conf.Estimation.MaxGridSize > l.MaxGridSize {
		conf.Estimation.MaxGridSize = l.MaxGridSize
		lowered = append(lowered, "estimation.maxGridSize")
	}
	if conf.Moments.MaxCells > l.MaxCells {
		conf.Moments.MaxCells = l.MaxCells
		lowered = append(lowered, "moments.maxCells")
	}
	if conf.Moments.MaxSweepCells > l.MaxSweepCells {
		conf.Moments.MaxSweepCells = l.MaxSweepCells
		lowered = append(lowered, "moments.maxSweepCells")
	}
	return lowered
}

// LoadConfig loads the server configuration from YAML. If the file does not exist,
// defaults are returned without error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Address:         constants.DefaultServerAddress,
		MaxUploadSize:   fmt.Sprintf("%d", constants.DefaultMaxUploadSizeBytes),
		RequestTimeout:  constants.DefaultRequestTimeout.String(),
		Limits:          Limits{}.withDefaults(),
		uploadSizeBytes: constants.DefaultMaxUploadSizeBytes,
		requestTimeout:  constants.DefaultRequestTimeout,
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UploadSizeBytes returns the configured upload size in bytes.
func (c *Config) UploadSizeBytes() int64 {
	return c.uploadSizeBytes
}

// Timeout returns the per-request computation timeout.
func (c *Config) Timeout() time.Duration {
	return c.requestTimeout
}

// SetUploadSizeBytes overrides the configured upload size.
func (c *Config) SetUploadSizeBytes(size int64) {
	if size > 0 {
		c.uploadSizeBytes = size
		c.MaxUploadSize = fmt.Sprintf("%d", size)
	}
}

func (c *Config) normalize() error {
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}
	c.Workers = max(c.Workers, 0)
	c.Limits = c.Limits.withDefaults()

	c.requestTimeout = constants.DefaultRequestTimeout
	if timeout := strings.TrimSpace(c.RequestTimeout); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid request timeout %q: %w", timeout, err)
		}
		if d > 0 {
			c.requestTimeout = d
		}
	}
	c.RequestTimeout = c.requestTimeout.String()

	size, err := parseSize(c.MaxUploadSize)
	if err != nil {
		return err
	}
	c.uploadSizeBytes = constants.DefaultMaxUploadSizeBytes
	if size > 0 {
		c.uploadSizeBytes = size
	}
	return nil
}

var sizeUnits = map[string]int64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
	"G":  1 << 30,
	"GB": 1 << 30,
}

// parseSize reads a byte count with an optional K, M or G suffix. An empty
// value means the default upload limit.
func parseSize(value string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	digits := strings.TrimRightFunc(trimmed, func(r rune) bool { return !unicode.IsDigit(r) })
	unit := strings.TrimSpace(trimmed[len(digits):])
	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unsupported size unit %q", unit)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size %q overflows", value)
	}
	return n * multiplier, nil
}
