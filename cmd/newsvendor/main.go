package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/PrinceOfCongo/newsveond/internal/config"
	"github.com/PrinceOfCongo/newsveond/internal/diagnostics"
	"github.com/PrinceOfCongo/newsveond/internal/optimizer"
	"github.com/PrinceOfCongo/newsveond/internal/sample"
	"github.com/PrinceOfCongo/newsveond/internal/server"
	"github.com/PrinceOfCongo/newsveond/pkg/constants"
	"github.com/PrinceOfCongo/newsveond/pkg/output"
	"github.com/PrinceOfCongo/newsveond/pkg/validation"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var conf zap.Config
	switch format {
	case "console":
		conf = zap.NewDevelopmentConfig()
	case "json":
		conf = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	conf.Level = zap.NewAtomicLevelAt(zapLevel)

	// Reports go to stdout, so logs default to stderr.
	conf.OutputPaths = []string{"stderr"}
	conf.ErrorOutputPaths = []string{"stderr"}

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		if file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		} else {
			_ = file.Close()
		}

		conf.OutputPaths = []string{loggingConfig.OutputFile}
		conf.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return conf.Build()
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": %q}\n", err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "newsvendor",
		Usage:   "Robust newsvendor order quantities from a Poisson demand sample",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   constants.DefaultConfigFile,
				Usage:   "path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level override (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "output-format",
				Usage: "type of output override: pretty, csv, json",
			},
		},
		Commands: []*cli.Command{
			decideCommand(),
			diagnoseCommand(),
			simulateCommand(),
			serveCommand(),
		},
	}
}

func decideCommand() *cli.Command {
	return &cli.Command{
		Name:  "decide",
		Usage: "Estimate the demand rate and compute the nominal and robust supply",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sample",
				Aliases: []string{"s"},
				Usage:   "demand sample file (csv, json, yaml); overrides the configured sample",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "parallel workers for the likelihood and robust grids (0 uses all CPUs)",
			},
		},
		Action: runDecide,
	}
}

func runDecide(c *cli.Context) error {
	configLocation := c.String("config")
	conf, err := config.LoadConfiguration(configLocation)
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", configLocation, err)
	}

	logger, err := initializeLogger(conf.Logging, c.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	outputFormat, err := resolveOutputFormat(conf.Output.Format, c.String("output-format"))
	if err != nil {
		return err
	}
	if c.IsSet("workers") {
		conf.Workers = c.Int("workers")
	}

	data, err := resolveSample(conf.Sample, c.String("sample"), filepath.Dir(configLocation))
	if err != nil {
		return fmt.Errorf("failed to load demand sample: %w", err)
	}

	runner, err := optimizer.NewRunner(logger, conf)
	if err != nil {
		return err
	}
	result, err := runner.RunContext(c.Context, data)
	if err != nil {
		logger.Error("failed to compute decision",
			zap.String("op", "main"),
			zap.Error(err),
		)
		return err
	}

	summary := result.Summary()
	summary.RunID = uuid.NewString()
	return output.Write(c.App.Writer, summary, outputFormat)
}

func diagnoseCommand() *cli.Command {
	return &cli.Command{
		Name:  "diagnose",
		Usage: "Compare Poisson, binomial and normal fits to a demand sample",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sample",
				Aliases: []string{"s"},
				Usage:   "demand sample file (csv, json, yaml); defaults to the configured sample",
			},
		},
		Action: runDiagnose,
	}
}

func runDiagnose(c *cli.Context) error {
	logger, err := initializeLogger(config.LoggingConfig{}, c.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var (
		data       []int
		sampleConf config.SampleConfig
		formatConf string
	)
	if path := c.String("sample"); path != "" {
		data, err = sample.LoadFile(path)
	} else {
		configLocation := c.String("config")
		conf, loadErr := config.LoadConfiguration(configLocation)
		if loadErr != nil {
			return fmt.Errorf("failed to load configuration at %s: %w", configLocation, loadErr)
		}
		sampleConf, formatConf = conf.Sample, conf.Output.Format
		data, err = resolveSample(sampleConf, "", filepath.Dir(configLocation))
	}
	if err != nil {
		return fmt.Errorf("failed to load demand sample: %w", err)
	}

	outputFormat, err := resolveOutputFormat(formatConf, c.String("output-format"))
	if err != nil {
		return err
	}

	report, err := diagnostics.Compare(data)
	if err != nil {
		return err
	}
	if report.Degenerate != nil {
		logger.Warn("degenerate sample",
			zap.String("op", "main"),
			zap.Error(report.Degenerate),
		)
	}

	return writeDiagnostics(c.App.Writer, report, outputFormat)
}

func writeDiagnostics(w io.Writer, report *diagnostics.Report, outputFormat string) error {
	if outputFormat == constants.OutputFormatJSON {
		return output.JSONFormat(w, report)
	}
	output.DiagnosticsFormat(w, report)
	return nil
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Draw a reproducible Poisson demand sample as CSV",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "rate",
				Usage:    "Poisson demand rate",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "n",
				Value: 30,
				Usage: "number of observations",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Value: 1,
				Usage: "random source seed",
			},
		},
		Action: func(c *cli.Context) error {
			data, err := sample.Simulate(c.Float64("rate"), c.Int("n"), c.Uint64("seed"))
			if err != nil {
				return err
			}
			return writeSampleCSV(c.App.Writer, data)
		},
	}
}

func writeSampleCSV(w io.Writer, data []int) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"demand"}); err != nil {
		return err
	}
	for _, v := range data {
		if err := writer.Write([]string{strconv.Itoa(v)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the decision API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server-config",
				Value: constants.DefaultServerConfigFile,
				Usage: "path to server configuration file",
			},
			&cli.StringFlag{
				Name:    "address",
				Usage:   "listen address override",
				EnvVars: []string{constants.EnvPrefix + "_SERVER_ADDRESS"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	serverConfigPath := c.String("server-config")
	cfg, err := server.LoadConfig(serverConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load server configuration at %s: %w", serverConfigPath, err)
	}
	if address := c.String("address"); address != "" {
		cfg.Address = address
	}

	logger, err := initializeLogger(cfg.Logging, c.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           server.NewHandler(logger, cfg, version),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("op", "main"),
			zap.String("address", cfg.Address),
			zap.Int64("maxUploadBytes", cfg.UploadSizeBytes()),
			zap.Duration("requestTimeout", cfg.Timeout()),
			zap.Int("maxGridSize", cfg.Limits.MaxGridSize),
			zap.Int("maxSweepCells", cfg.Limits.MaxSweepCells),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down server", zap.String("op", "main"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// resolveOutputFormat applies the CLI override over the configured format.
func resolveOutputFormat(configured, override string) (string, error) {
	outputFormat := configured
	if override != "" {
		outputFormat = override
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		return "", err
	}
	return outputFormat, nil
}

// resolveSample picks the demand sample: an explicit file first, then inline
// values, then the configured path. Relative configured paths are resolved
// against baseDir.
func resolveSample(conf config.SampleConfig, override, baseDir string) ([]int, error) {
	if override != "" {
		return sample.LoadFile(override)
	}
	if len(conf.Values) > 0 {
		return append([]int(nil), conf.Values...), nil
	}
	if conf.Path == "" {
		return nil, fmt.Errorf("no demand sample configured; set sample.values, sample.path or --sample")
	}
	path := conf.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return sample.LoadFile(path)
}
