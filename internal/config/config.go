// Package config defines the data structures related to configuration and
// includes functions for loading, normalizing and validating the config.
package config

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for a newsvendor decision run.
type Configuration struct {
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Estimation EstimationConfig `yaml:"estimation" mapstructure:"estimation"`
	Moments    MomentsConfig    `yaml:"moments" mapstructure:"moments"`
	Sample     SampleConfig     `yaml:"sample,omitempty" mapstructure:"sample"`
	Workers    int              `yaml:"workers,omitempty" mapstructure:"workers"`
	Logging    LoggingConfig    `yaml:"logging,omitempty" mapstructure:"logging"`
	Output     OutputConfig     `yaml:"output,omitempty" mapstructure:"output"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

// SampleConfig locates the historical demand sample. Inline values take
// precedence over Path.
type SampleConfig struct {
	Path   string `yaml:"path,omitempty" mapstructure:"path"`
	Values []int  `yaml:"values,omitempty" mapstructure:"values"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Environment variables prefixed with NEWSVENDOR_
// override file values, e.g. NEWSVENDOR_MODEL_PRICE.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML (or JSON) configuration document
// from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}

	v := newViper()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("error reading config data, %s", err)
		}
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register every key so environment overrides reach Unmarshal.
	v.SetDefault("model.price", 0.0)
	v.SetDefault("model.cost", 0.0)
	v.SetDefault("model.riskAversion", 0.0)
	v.SetDefault("model.supply.min", 0)
	v.SetDefault("model.supply.max", 0)
	v.SetDefault("model.supply.step", constants.DefaultSupplyStep)
	v.SetDefault("estimation.initialGuess", 0.0)
	v.SetDefault("estimation.relativeWindow", constants.DefaultRelativeWindow)
	v.SetDefault("estimation.gridSize", constants.DefaultGridSize)
	v.SetDefault("estimation.maxGridSize", constants.DefaultMaxGridSize)
	v.SetDefault("estimation.alpha", constants.DefaultAlpha)
	v.SetDefault("estimation.degreesOfFreedom", constants.DefaultDegreesOfFreedom)
	v.SetDefault("moments.truncationFactor", constants.DefaultTruncationFactor)
	v.SetDefault("moments.massTolerance", constants.DefaultMassTolerance)
	v.SetDefault("moments.maxCells", constants.DefaultMaxCells)
	v.SetDefault("moments.maxSweepCells", constants.DefaultMaxSweepCells)
	v.SetDefault("sample.path", "")
	v.SetDefault("workers", 0)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", "")
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	configuration.Normalize()
	return &configuration, nil
}

// Normalize applies defaults to every section.
func (c *Configuration) Normalize() {
	c.Model.Normalize()
	c.Estimation.Normalize()
	c.Moments.Normalize()
	if c.Workers < 0 {
		c.Workers = 0
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// Validate returns the first hard configuration error.
func (c *Configuration) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := c.Estimation.Validate(); err != nil {
		return fmt.Errorf("estimation: %w", err)
	}
	if err := c.Moments.Validate(); err != nil {
		return fmt.Errorf("moments: %w", err)
	}
	if c.Output.Format != "" {
		if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	return nil
}

// ValidateConfiguration performs general validation of the configuration
// against the sample and returns warnings. guess is the center of the
// likelihood window actually searched, i.e. the sample mean when
// estimation.initialGuess is zero.
func (c *Configuration) ValidateConfiguration(sample []int, guess float64) []string {
	supply, _ := c.Model.Supply.Grid()
	mv := validation.ModelValidator{
		Price:          c.Model.Price,
		Cost:           c.Model.Cost,
		RiskAversion:   c.Model.RiskAversion,
		Supply:         supply,
		InitialGuess:   guess,
		RelativeWindow: c.Estimation.RelativeWindow,
		GridSize:       c.Estimation.GridSize,
		Sample:         sample,
	}
	return mv.ValidateAll()
}
