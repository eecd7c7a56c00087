package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/churnscore/internal/testbatches"
)

// Default configuration constants.
const (
	defaultTimeout     = 60 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		rows       = flag.Int("rows", testbatches.DefaultRows, "Number of customer rows to generate")
		badRows    = flag.Int("bad-rows", 0, "Number of rows to corrupt on purpose")
		threshold  = flag.Float64("threshold", testbatches.DefaultThreshold, "Decision threshold sent with each upload")
		seed       = flag.Uint64("seed", 0, "Generator seed; 0 derives one from the clock")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for the scored table (default: churn_predictions_TIMESTAMP.csv)")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testbatches.ShowHelp()
		return
	}

	closer, err := testbatches.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &testbatches.Config{
		BaseURL:    *baseURL,
		Rows:       *rows,
		BadRows:    *badRows,
		Threshold:  *threshold,
		Seed:       *seed,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	if _, err := testbatches.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		closer.Close()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: closer is released above
	}
}
