// Package testbatches drives a running scoring service end to end and checks
// the scored tables it returns.
package testbatches

import "time"

// Config holds configuration for the batch test.
type Config struct {
	BaseURL      string        // Base URL of the service
	Rows         int           // Number of customer rows to generate
	BadRows      int           // Number of rows made invalid on purpose
	Threshold    float64       // Decision threshold sent with each upload
	Seed         uint64        // Generator seed; zero picks one from the clock
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Delay between async status checks
	OutputFile   string        // Output file for the scored table
	LogFile      string        // Log file for test output
	Verbose      bool          // Enable verbose logging
}

// Stats holds test statistics.
type Stats struct {
	RowsGenerated int
	BadRows       int
	RowsScored    int
	RowsFailed    int
	SyncDuration  time.Duration
	AsyncDuration time.Duration
	BatchID       string
	Duplicate     bool
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}
