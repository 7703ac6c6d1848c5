package apierror

import (
	"encoding/json"
	"net/http"
)

// APIError is an error with an HTTP status code, safe to return to clients.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// ToJSON serializes the error body. Falls back to a static payload if
// marshaling somehow fails.
func (e *APIError) ToJSON() []byte {
	b, err := json.Marshal(map[string]*APIError{"error": e})
	if err != nil {
		return []byte(`{"error":{"code":"INTERNAL","message":"internal server error"}}`)
	}
	return b
}

func BadRequest(msg string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: msg}
}

func Unauthorized(msg string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: msg}
}

func NotFound(msg string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: msg}
}

func Conflict(msg string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: msg}
}

func InternalError(msg string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: msg}
}
