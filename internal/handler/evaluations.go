package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scriptbridge/internal/repository"
	"scriptbridge/internal/service"
)

type EvaluationHandler struct {
	svc *service.EvaluationService
}

func NewEvaluationHandler(svc *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

type EvaluationResponse struct {
	ID           string          `json:"id"`
	Config       string          `json:"config"`
	Expression   string          `json:"expression"`
	Outcome      string          `json:"outcome"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Optimization string          `json:"optimization"`
	DurationMs   *int64          `json:"durationMs,omitempty"`
	CreatedAt    string          `json:"createdAt"`
}

func toEvaluationResponse(ev repository.Evaluation) EvaluationResponse {
	item := EvaluationResponse{
		ID:           ev.ID,
		Config:       ev.ConfigName,
		Expression:   ev.Expression,
		Outcome:      ev.Outcome,
		Error:        ev.Error.String,
		Optimization: service.OptimizationLevel(ev.Optimization).String(),
		CreatedAt:    formatTime(ev.CreatedAt),
	}
	if ev.Result.Valid && json.Valid([]byte(ev.Result.String)) {
		item.Result = json.RawMessage(ev.Result.String)
	}
	if ev.DurationMs.Valid {
		duration := ev.DurationMs.Int64
		item.DurationMs = &duration
	}
	return item
}

// List returns the most recent evaluations, optionally filtered by the
// "config" query parameter.
func (h *EvaluationHandler) List(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.ListEvaluations(r.Context(), r.URL.Query().Get("config"), parseLimit(r, 100))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]EvaluationResponse, 0, len(history))
	for _, ev := range history {
		resp = append(resp, toEvaluationResponse(ev))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *EvaluationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.GetEvaluation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Evaluation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toEvaluationResponse(ev))
}

func (h *EvaluationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEvaluation(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Evaluation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
