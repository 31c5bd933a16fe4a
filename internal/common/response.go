package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the payload under "error" in every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON renders v with status. Encoding happens before the header is sent so
// an unencodable value still yields a well formed 500.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]ErrorBody{"error": {Code: "INTERNAL", Message: "response encoding failed"}})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// JSONError renders the canonical error envelope.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]ErrorBody{"error": {Code: code, Message: message, Details: details}})
}

// WriteAppError renders e with its own status.
func WriteAppError(w http.ResponseWriter, e *AppError) {
	JSONError(w, e.HTTPStatus, e.Code, e.Message, e.Details)
}
