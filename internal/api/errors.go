package api

import (
	"encoding/json"
	"net/http"
)

// ErrorCode is the machine-readable error taxonomy for pre-stream
// failures. Everything after stream establishment travels in-stream.
type ErrorCode string

const (
	CodeBadRequest   ErrorCode = "bad_request"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeRateLimit    ErrorCode = "rate_limit"
	CodeOffline      ErrorCode = "offline"
)

type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *APIError) Status() int {
	switch e.Code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status())
	_ = json.NewEncoder(w).Encode(apiErr)
}
