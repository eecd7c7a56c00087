package api

import "net/http"

// ModelHandler serves the loaded classifier's description.
type ModelHandler struct {
	deps Dependencies
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps Dependencies) *ModelHandler {
	return &ModelHandler{deps: deps}
}

// HandleGetModel handles GET /v1/model requests.
func (h *ModelHandler) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	info, err := h.deps.ModelInfo(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.get_model", err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}
