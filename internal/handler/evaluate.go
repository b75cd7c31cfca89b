package handler

import (
	"errors"
	"net/http"

	"scriptbridge/internal/middleware"
	"scriptbridge/internal/service"
)

type EvaluateHandler struct {
	svc *service.EvaluationService
}

func NewEvaluateHandler(svc *service.EvaluationService) *EvaluateHandler {
	return &EvaluateHandler{svc: svc}
}

type EvaluateRequest struct {
	Expression string            `json:"expression"`
	Response   *service.Response `json:"response,omitempty"`
	Body       *string           `json:"body,omitempty"`
}

type EvaluateResponse struct {
	ID           string      `json:"id"`
	Config       string      `json:"config"`
	Value        interface{} `json:"value"`
	Optimization string      `json:"optimization"`
	DurationMs   int64       `json:"durationMs"`
}

type ScriptErrorResponse struct {
	ID     string `json:"id"`
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Expression == "" {
		respondError(w, http.StatusBadRequest, "Expression is required")
		return
	}

	ev, err := h.svc.Evaluate(r.Context(), service.EvaluationRequest{
		ConfigName: middleware.GetConfigName(r.Context()),
		Expression: req.Expression,
		Response:   req.Response,
		Body:       req.Body,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyExpression) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if ev.Err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, ScriptErrorResponse{
			ID:     ev.ID,
			Error:  ev.Err.Message,
			Kind:   "ScriptError",
			Line:   ev.Err.Line,
			Column: ev.Err.Column,
		})
		return
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		ID:           ev.ID,
		Config:       ev.ConfigName,
		Value:        ev.Value,
		Optimization: ev.Optimization.String(),
		DurationMs:   ev.Duration.Milliseconds(),
	})
}
