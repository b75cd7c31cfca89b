package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scriptbridge/internal/service"
)

type SymbolHandler struct {
	svc *service.EvaluationService
}

func NewSymbolHandler(svc *service.EvaluationService) *SymbolHandler {
	return &SymbolHandler{svc: svc}
}

type SymbolResponse struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PutSymbolRequest struct {
	Value string `json:"value"`
}

func (h *SymbolHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Symbols().Snapshot())
}

func (h *SymbolHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	value, err := h.svc.GetSymbol(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "Symbol not found")
		return
	}
	respondJSON(w, http.StatusOK, SymbolResponse{Name: name, Value: value})
}

func (h *SymbolHandler) Put(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req PutSymbolRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.svc.PutSymbol(r.Context(), name, req.Value); err != nil {
		if errors.Is(err, service.ErrEmptySymbolName) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SymbolResponse{Name: name, Value: req.Value})
}

func (h *SymbolHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.DeleteSymbol(r.Context(), name); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Symbol not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear resets the symbol table between test runs.
func (h *SymbolHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearSymbols(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
