// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeAppError maps a service error to its HTTP shape: structured AppErrors
// surface their status, code, and details; anything else is an opaque 500.
func writeAppError(w http.ResponseWriter, err error) {
	if appErr := apperr.As(err); appErr != nil {
		body := map[string]interface{}{
			"error": appErr.Message,
			"code":  appErr.Code,
		}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		writeJSON(w, appErr.Status, body)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}
