package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// SuccessResponse is the envelope around every successful JSON body.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent, so all we can do is log.
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteSuccess writes data inside a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	WriteJSON(w, status, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// WriteError writes a JSON error response. code is the machine readable
// error code and message the human readable one.
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
		Details: details,
	}
	WriteJSON(w, status, resp)
}
