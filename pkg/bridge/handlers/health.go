// Package handlers holds the HTTP endpoints: the media-stream
// websocket, the health probe, and a JSON 404 for everything else.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/voicebridge/pkg/bridge/call"
)

// HealthHandler reports liveness and the number of active calls.
type HealthHandler struct {
	Registry *call.Registry
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}

	type healthResp struct {
		Status      string `json:"status"`
		ActiveCalls int    `json:"active_calls"`
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResp{
		Status:      "ok",
		ActiveCalls: h.Registry.Count(),
	})
}

// NotFoundHandler answers every unrouted path with a JSON 404.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
}
