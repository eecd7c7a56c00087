// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/churnscore/internal/app"
	"github.com/okian/churnscore/internal/domain/batch"
	"github.com/okian/churnscore/internal/domain/model"
	"github.com/okian/churnscore/internal/domain/types"
)

// Query parameters and form fields shared by the upload endpoints.
const (
	paramThreshold    = "threshold"
	paramModelVersion = "model_version"
	paramLimit        = "limit"
	paramRows         = "rows"
	formFile          = "file"

	defaultListLimit = 20
	maxListLimit     = 1000

	// multipartOverhead bounds form framing on top of the upload limit.
	multipartOverhead = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	DefaultThreshold() float64
	MaxUploadBytes() int64

	// ScoreSync scores an upload on the request goroutine.
	ScoreSync(ctx context.Context, sub service.Submission) (*batch.Result, error)

	// Submit queues an upload for async scoring.
	Submit(ctx context.Context, sub service.Submission) (service.Accepted, error)

	// Read operations expose stored batches.
	Batch(ctx context.Context, id string) (*types.Batch, error)
	Batches(ctx context.Context, limit int) ([]types.Batch, error)
	Download(ctx context.Context, id string) ([]byte, error)
	Preview(ctx context.Context, id string, rows int) (*types.Preview, error)

	ModelInfo(ctx context.Context) (types.ModelInfo, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	scoreHandler   *ScoreHandler
	batchesHandler *BatchesHandler
	modelHandler   *ModelHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		scoreHandler:   NewScoreHandler(deps),
		batchesHandler: NewBatchesHandler(deps),
		modelHandler:   NewModelHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/v1/score", MetricsMiddleware(s.scoreHandler.HandleScore, "score"))
	mux.HandleFunc("/v1/batches", MetricsMiddleware(s.batchesHandler.HandleCollection, "batches"))
	mux.HandleFunc("/v1/batches/", MetricsMiddleware(s.batchesHandler.HandleItem, "batch"))
	mux.HandleFunc("/v1/model", MetricsMiddleware(s.modelHandler.HandleGetModel, "model"))
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Columns []string `json:"columns,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	resp := errorResponse{Code: code, Message: http.StatusText(status)}
	if err != nil {
		resp.Message = err.Error()
		var be *model.BatchError
		if errors.As(err, &be) {
			resp.Columns = be.Columns
		}
	}
	writeJSON(w, status, resp)
}

// writeFailure classifies err and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// wantsCSV reports whether the client asked for the scored table itself.
func wantsCSV(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "text/csv" {
			return true
		}
	}
	return false
}

// readSubmission extracts the upload and its scoring parameters from r.
// The body is either the raw table or a multipart form with a file field.
func readSubmission(w http.ResponseWriter, r *http.Request, deps Dependencies) (service.Submission, error) {
	sub := service.Submission{
		Threshold:    deps.DefaultThreshold(),
		ModelVersion: strings.TrimSpace(r.URL.Query().Get(paramModelVersion)),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get(paramThreshold)); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return sub, model.NewBatchError(model.BatchInvalidThreshold,
				fmt.Sprintf("threshold %q is not a number", raw), err)
		}
		sub.Threshold = t
	}

	limit := deps.MaxUploadBytes()
	body := io.Reader(r.Body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		f, _, err := r.FormFile(formFile)
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return sub, tooLarge(limit)
			}
			return sub, WrapKind("api.read_upload", ErrUpload, err)
		}
		defer f.Close()
		body = f
	}

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return sub, WrapKind("api.read_upload", ErrUpload, err)
	}
	if int64(len(data)) > limit {
		return sub, tooLarge(limit)
	}
	sub.Data = data
	return sub, nil
}

func tooLarge(limit int64) error {
	return model.NewBatchError(model.BatchTooLarge,
		fmt.Sprintf("upload exceeds %d bytes", limit), nil)
}

// intParam parses an optional positive integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrBadRequest, name)
	}
	return n, nil
}
