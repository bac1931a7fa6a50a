package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// maxLogValueLen caps query values echoed into logs; the longest valid
// value is a 32x32 hash in hex.
const maxLogValueLen = 256

var logReplacer = strings.NewReplacer("\n", "", "\r", "", "\t", " ")

// sanitizeForLog strips line breaks and truncates a client-supplied value.
func sanitizeForLog(s string) string {
	s = logReplacer.Replace(s)
	if len(s) > maxLogValueLen {
		s = s[:maxLogValueLen] + "..."
	}
	return s
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// respondJSON sends a JSON response. Results only change when serve restarts
// with new documents, so clients must revalidate rather than cache.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Status: status})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
