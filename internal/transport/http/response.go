package httptransport

import (
	"encoding/json"
	"net/http"
)

// apiError is the error envelope every job and file endpoint returns:
// a single human-readable message, e.g. {"message":"job not found"}.
type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr wraps msg in the apiError envelope.
func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}
