package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/churnscore/internal/app"
	"github.com/okian/churnscore/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrUpload     = errors.New("unreadable upload")
)

// opError tags an error with the handler operation that produced it.
type opError struct {
	Op   string
	Kind error
	Err  error
}

func (e *opError) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *opError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{Op: op, Err: err}
}

// WrapKind tags err with op and a sentinel kind.
func WrapKind(op string, kind, err error) error {
	return &opError{Op: op, Kind: kind, Err: err}
}

// NewKind returns an op-tagged sentinel.
func NewKind(op string, kind error) error {
	return &opError{Op: op, Kind: kind}
}

// classify maps err to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var be *model.BatchError
	var me *model.ModelError
	switch {
	case errors.As(err, &be):
		switch be.Kind {
		case model.BatchTooLarge, model.BatchTooManyRows:
			return http.StatusRequestEntityTooLarge, string(be.Kind)
		case model.BatchMissingColumns, model.BatchDuplicateColumns:
			return http.StatusUnprocessableEntity, string(be.Kind)
		default:
			return http.StatusBadRequest, string(be.Kind)
		}
	case errors.As(err, &me):
		if me.Kind == model.ModelVersionMismatch {
			return http.StatusConflict, string(me.Kind)
		}
		return http.StatusServiceUnavailable, string(me.Kind)
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrUpload):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
