package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	margo "github.com/margo-labs/margo/pkg/margo/v1"
	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
	margolog "github.com/margo-labs/margo/pkg/margo/v1/log"

	"github.com/margo-labs/margo/internal/config"
	"github.com/margo-labs/margo/internal/engine"
	"github.com/margo-labs/margo/internal/events"
	"github.com/margo-labs/margo/internal/logger"
	"github.com/margo-labs/margo/internal/metrics"
	"github.com/margo-labs/margo/internal/tracing"
)

const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsageError      = 2
	ExitTimeout         = 124
	ExitSigBase         = 128
	ExitSigInt          = ExitSigBase + int(syscall.SIGINT)
	ExitSigTerm         = ExitSigBase + int(syscall.SIGTERM)
	DefaultLogLevel     = "info"
	DefaultLogFmt       = "text"
	DefaultEventBusSize = 256
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "validate" {
		runValidateCommand(os.Args[2:])
		return
	}
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		printVersion()
		os.Exit(ExitSuccess)
	}
	exitCode := runExecuteCommand(os.Args[1:])
	os.Exit(exitCode)
}

func printVersion() {
	fmt.Printf("margo version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runValidateCommand(args []string) {
	validateFlags := flag.NewFlagSet("validate", flag.ExitOnError)
	modelPath := validateFlags.String("model", "", "Path to the model YAML file to validate (required)")
	logLevel := validateFlags.String("log-level", DefaultLogLevel, "Log level for validation output (debug, info, warn, error)")

	validateFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s validate -model <path> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Validates the structure and schema compatibility of a margo model.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		validateFlags.PrintDefaults()
	}

	if err := validateFlags.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing validate flags: %v\n", err)
		os.Exit(ExitUsageError)
	}

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -model flag is required for validation")
		validateFlags.Usage()
		os.Exit(ExitUsageError)
	}

	log := logger.NewLogger(*logLevel, "text", os.Stderr)
	log.Infof("Validating model: %s", *modelPath)

	modelBytes, err := os.ReadFile(*modelPath)
	if err != nil {
		log.Errorf("Failed to read model file '%s': %v", *modelPath, err)
		os.Exit(ExitFailure)
	}

	model, err := config.LoadModel(modelBytes, *modelPath)
	if err != nil {
		var validationErr *margoerrors.ValidationError
		var configErr *margoerrors.ConfigError
		if errors.As(err, &validationErr) {
			log.Errorf("Model validation failed:\n%s", validationErr.Error())
		} else if errors.As(err, &configErr) {
			log.Errorf("Model configuration error:\n%s", configErr.Error())
		} else {
			log.Errorf("Failed to load or validate model: %v", err)
		}
		os.Exit(ExitFailure)
	}
	if _, err := config.Compile(model); err != nil {
		log.Errorf("Model failed to compile:\n%s", err.Error())
		os.Exit(ExitFailure)
	}

	log.Infof("Model validation successful: %s", *modelPath)
	os.Exit(ExitSuccess)
}

func runExecuteCommand(args []string) int {
	execFlags := flag.NewFlagSet("margo", flag.ExitOnError)
	modelPath := execFlags.String("model", "", "Path to the model YAML file (required)")
	logLevel := execFlags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	logFormat := execFlags.String("log-format", DefaultLogFmt, "Log format (text, json)")
	solveMode := execFlags.String("mode", "", "Override the model's solve mode (oneshot, anytime)")
	solveInterval := execFlags.Duration("interval", 0, "Override the anytime solve interval (e.g. 250ms)")
	timeout := execFlags.Duration("timeout", 0, "Bound the whole run; anytime runs answer queries on expiry (0 = none)")
	reportPath := execFlags.String("report", "", "Write the full query report as YAML ('-' for stdout)")
	versionFlag := execFlags.Bool("version", false, "Print version information and exit")

	execFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags...] -model <path>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Solves a margo factor model and answers its declared queries.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		execFlags.PrintDefaults()
	}

	if err := execFlags.Parse(args); err != nil {
		return ExitUsageError
	}

	if *versionFlag {
		printVersion()
		return ExitSuccess
	}

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -model flag is required")
		execFlags.Usage()
		return ExitUsageError
	}
	if *logFormat != "text" && *logFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: -log-format must be 'text' or 'json'")
		return ExitUsageError
	}

	var logWriter io.Writer = os.Stderr
	log := logger.NewLogger(*logLevel, *logFormat, logWriter)
	log = log.With("margo_version", version)

	log.Infof("Margo query engine v%s starting...", version)
	log.Debugf("Log level: %s", *logLevel)
	log.Debugf("Log format: %s", *logFormat)

	eventBus := events.NewChannelEventBus(DefaultEventBusSize, log)
	defer eventBus.Close()
	metricsProvider := metrics.NewPrometheusRegistryProvider()
	tracerProvider, err := tracing.NewProviderFromEnv(context.Background())
	if err != nil {
		log.Warnf("Failed to initialize tracing from environment: %v. Using NoOp tracer.", err)
		tracerProvider, _ = tracing.NewNoOpProvider()
	}

	engineOpts := []margo.EngineOption{
		margo.WithEventBus(eventBus),
		margo.WithTracerProvider(tracerProvider),
		margo.WithMetricsRegistryProvider(metricsProvider),
	}
	if *solveMode != "" {
		engineOpts = append(engineOpts, margo.WithSolveMode(*solveMode))
	}
	if *solveInterval > 0 {
		engineOpts = append(engineOpts, margo.WithSolveInterval(*solveInterval))
	}

	internalEngine, err := engine.NewEngine(log, engineOpts...)
	if err != nil {
		log.Errorf("Failed to create margo engine: %v", err)
		return ExitFailure
	}
	var margoEngine margo.EngineV1 = internalEngine

	log.Infof("Loading model: %s", *modelPath)
	modelBytes, err := os.ReadFile(*modelPath)
	if err != nil {
		log.Errorf("Failed to read model file '%s': %v", *modelPath, err)
		return ExitFailure
	}

	ctx := context.Background()
	var cancelTimeout context.CancelFunc
	if *timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(ctx, *timeout)
		defer cancelTimeout()
	}
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	listener := events.NewMetricsEventListener(eventBus, internalEngine.Instruments(), log)
	go listener.Start(runCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	defer close(sigChan)

	var receivedSignal os.Signal
	var sigMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			sigMu.Lock()
			receivedSignal = sig
			sigMu.Unlock()
			cancelRun()
		case <-runCtx.Done():
			log.Debugf("Signal handler exiting because run context is done.")
		}
	}()
	defer wg.Wait()

	log.Infof("Starting model run...")
	report, runErr := margoEngine.RunModel(runCtx, modelBytes)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if shutdownErr := tracerProvider.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warnf("Error shutting down tracer provider: %v", shutdownErr)
	}

	printReportSummary(log, report, runErr)

	if report != nil && *reportPath != "" {
		if err := writeReport(report, *reportPath); err != nil {
			log.Errorf("Failed to write report: %v", err)
			return ExitFailure
		}
	}

	sigMu.Lock()
	finalSignal := receivedSignal
	sigMu.Unlock()
	return determineExitCode(report, runErr, finalSignal, log)
}

func writeReport(report *margo.QueryReport, path string) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printReportSummary(log margolog.Logger, report *margo.QueryReport, runErr error) {
	if report == nil {
		log.Warnf("Run finished but no report was generated (likely due to early failure).")
		if runErr != nil {
			logRunErrorReason(log, runErr)
		}
		return
	}

	statusLine := fmt.Sprintf("Model '%s' finished. Status: %s", report.ModelName, report.OverallStatus)
	duration := report.Duration.Truncate(time.Millisecond)
	summaryLine := fmt.Sprintf("Duration: %v. Solve passes: %d. Queries: Total=%d, Answered=%d, Rejected=%d",
		duration,
		report.SolvePasses, report.TotalQueries, report.AnsweredQueries, report.RejectedQueries)

	if report.OverallStatus == engine.StatusFailed || runErr != nil {
		log.Errorf("%s. %s", statusLine, summaryLine)
		if report.Error != "" {
			log.Errorf("Overall Error: %s", report.Error)
		} else if runErr != nil {
			logRunErrorReason(log, runErr)
		}
		logFailedQueries(log, report)
	} else {
		log.Infof("%s. %s", statusLine, summaryLine)
	}
}

func logRunErrorReason(log margolog.Logger, runErr error) {
	if errors.Is(runErr, context.Canceled) {
		log.Warnf("Run Reason: Cancelled.")
	} else if errors.Is(runErr, context.DeadlineExceeded) {
		log.Errorf("Run Reason: Timeout.")
	} else {
		log.Errorf("Run Error: %v", runErr)
	}
}

func logFailedQueries(log margolog.Logger, report *margo.QueryReport) {
	for _, result := range report.Results {
		if result.Status == engine.StatusFailed {
			log.Errorf("  - Query '%s': %s", result.Name, result.Error)
		}
	}
}

func determineExitCode(report *margo.QueryReport, runErr error, sig os.Signal, log margolog.Logger) int {
	exitCode := ExitSuccess

	if runErr != nil {
		exitCode = ExitFailure
		if errors.Is(runErr, context.Canceled) && sig != nil {
			switch sig {
			case syscall.SIGINT:
				exitCode = ExitSigInt
				log.Warnf("Model run interrupted by signal: SIGINT")
			case syscall.SIGTERM:
				exitCode = ExitSigTerm
				log.Warnf("Model run terminated by signal: SIGTERM")
			default:
				log.Warnf("Model run terminated by signal: %v", sig)
			}
		} else if errors.Is(runErr, context.DeadlineExceeded) {
			exitCode = ExitTimeout
			log.Errorf("Model run timed out.")
		}
	} else if report != nil && report.OverallStatus == engine.StatusFailed {
		log.Errorf("Model run finished but reported overall status as Failed.")
		exitCode = ExitFailure
	} else {
		log.Infof("Model run completed successfully.")
		exitCode = ExitSuccess
	}
	return exitCode
}
