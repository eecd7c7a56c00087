package testbatches

import "time"

// Default test parameters.
const (
	DefaultRows         = 5_000
	DefaultThreshold    = 0.7
	DefaultPollInterval = 200 * time.Millisecond
)

// Output columns appended by the service.
const (
	ColumnProbability = "Churn Probability"
	ColumnPrediction  = "Churn Prediction"
)
