package handler

import (
	"net/http"

	"scriptbridge/internal/middleware"
	"scriptbridge/internal/service"
)

type WebSocketHandler struct {
	console *service.Console
}

func NewWebSocketHandler(console *service.Console) *WebSocketHandler {
	return &WebSocketHandler{console: console}
}

func (h *WebSocketHandler) Console(w http.ResponseWriter, r *http.Request) {
	h.console.HandleConsole(w, r, middleware.GetConfigName(r.Context()))
}
