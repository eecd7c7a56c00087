package model

import "time"

// Job is an accepted asynchronous batch waiting for a worker.
type Job struct {
	BatchID              string
	Key                  string // dedupe fingerprint, released if the job is dropped
	Data                 []byte
	Threshold            float64
	ExpectedModelVersion string
	EnqueuedAt           time.Time
}
