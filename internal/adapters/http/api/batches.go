package api

import (
	"net/http"
	"strings"
)

// BatchesHandler handles async batch requests.
type BatchesHandler struct {
	deps Dependencies
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(deps Dependencies) *BatchesHandler {
	return &BatchesHandler{deps: deps}
}

// HandleCollection handles POST /v1/batches and GET /v1/batches.
func (h *BatchesHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *BatchesHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_batch"
	sub, err := readSubmission(w, r, h.deps)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	acc, err := h.deps.Submit(r.Context(), sub)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	status := http.StatusAccepted
	if acc.Duplicate {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/v1/batches/"+acc.BatchID)
	writeJSON(w, status, acc)
}

func (h *BatchesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_batches"
	limit, err := intParam(r, paramLimit, defaultListLimit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	list, err := h.deps.Batches(r.Context(), limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleItem handles GET /v1/batches/{id}, /v1/batches/{id}/download and
// /v1/batches/{id}/preview.
func (h *BatchesHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_batch"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" || strings.Contains(action, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	switch action {
	case "":
		b, err := h.deps.Batch(r.Context(), id)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, b)
	case "download":
		out, err := h.deps.Download(r.Context(), id)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		writeCSV(w, predictionsFilename, out)
	case "preview":
		rows, err := intParam(r, paramRows, 0)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		p, err := h.deps.Preview(r.Context(), id, rows)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		http.NotFound(w, r)
	}
}
