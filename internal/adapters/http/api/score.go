package api

import (
	"net/http"
)

// predictionsFilename names the scored table offered for download.
const predictionsFilename = "churn_predictions.csv"

// ScoreHandler handles synchronous scoring requests.
type ScoreHandler struct {
	deps Dependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Dependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// HandleScore handles POST /v1/score requests. The response is the JSON
// report, or the scored table when the client accepts text/csv.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	sub, err := readSubmission(w, r, h.deps)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	res, err := h.deps.ScoreSync(r.Context(), sub)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if wantsCSV(r) {
		writeCSV(w, predictionsFilename, res.Output)
		return
	}
	writeJSON(w, http.StatusOK, res.Report)
}
