package testbatches

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/churnscore/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to both the console and a file. If logFile
// is empty, a timestamped filename is generated. The returned closer
// releases the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "test_log_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithFormat(logger.FormatText, io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file, nil
}

// ShowHelp prints usage information for the batch test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Churn Batch Test Tool
=====================

Generates a synthetic telecom customer table, scores it through a running
service both synchronously and asynchronously, and verifies the results.

Usage:
  go run ./cmd/test-batches [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -rows int
        Number of customer rows to generate (default 5000)
  -bad-rows int
        Number of rows to corrupt on purpose (default 0)
  -threshold float
        Decision threshold sent with each upload (default 0.7)
  -seed uint
        Generator seed; 0 derives one from the clock
  -timeout duration
        HTTP request timeout (default 60s)
  -output string
        Output file for the scored table (default: churn_predictions_TIMESTAMP.csv)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run ./cmd/test-batches

  # Larger table with some invalid rows
  go run ./cmd/test-batches -rows 50000 -bad-rows 25 -url http://localhost:8080
`)
}
