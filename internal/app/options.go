package service

import (
	"time"

	"github.com/okian/churnscore/internal/adapters/repository"
	"github.com/okian/churnscore/internal/domain/classifier"
	"github.com/okian/churnscore/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of async batch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued async batches.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many upload fingerprints are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithScoreParallelism bounds concurrent chunks inside one batch.
func WithScoreParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.scoreParallelism = n
		}
	}
}

// WithScoreChunkSize sets rows per chunk inside one batch.
func WithScoreChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.scoreChunkSize = n
		}
	}
}

// WithMaxUploadBytes rejects larger uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithMaxRows rejects tables with more data rows.
func WithMaxRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

// WithDefaultThreshold sets the cutoff used when a request omits one.
func WithDefaultThreshold(t float64) Option {
	return func(s *Service) {
		s.defaultThreshold = t
	}
}

// WithSyncTimeout bounds synchronous scoring.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// WithModel installs m instead of the bundled model.
func WithModel(m *classifier.Model) Option {
	return func(s *Service) {
		s.model = m
	}
}

// WithStore sets the report store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
