// Package respond writes the API's JSON envelopes. All handlers go through
// it so clients see one error shape regardless of which subsystem failed.
package respond

import (
	"encoding/json"
	"net/http"
)

// Error kinds surfaced to clients.
const (
	KindValidation    = "validation"
	KindConfiguration = "configuration"
	KindNotFound      = "not_found"
	KindConflict      = "conflict"
	KindUnauthorized  = "unauthorized"
	KindRateLimited   = "rate_limited"
	KindInternal      = "internal"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// Error writes the error envelope {"error": {"kind": ..., "message": ...}}.
func Error(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, map[string]errorBody{
		"error": {Kind: kind, Message: message},
	})
}

// Internal writes a generic 500 without leaking the underlying error.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, KindInternal, "internal error")
}
