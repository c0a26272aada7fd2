package response

import (
	"encoding/json"
	"net/http"
)

// Code is the machine-readable error code carried in every error envelope.
type Code string

const (
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeInvalidProductID  Code = "INVALID_PRODUCT_ID"
	CodeInvalidIntentID   Code = "INVALID_INTENT_ID"
	CodeInvalidJobID      Code = "INVALID_JOB_ID"
	CodeInvalidKeyID      Code = "INVALID_KEY_ID"
	CodeInvalidScope      Code = "INVALID_SCOPE"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeForbidden         Code = "FORBIDDEN"
	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeIntentNotFound    Code = "INTENT_NOT_FOUND"
	CodeJobNotFound       Code = "JOB_NOT_FOUND"
	CodeKeyNotFound       Code = "KEY_NOT_FOUND"
	CodeKeyNameConflict   Code = "KEY_NAME_CONFLICT"
	CodeRateLimited       Code = "RATE_LIMIT_EXCEEDED"
	CodeGenerationFailed  Code = "GENERATION_FAILED"
	CodeGenerationTimeout Code = "GENERATION_TIMEOUT"
	CodeDegraded          Code = "DEGRADED"
	CodeNotImplemented    Code = "NOT_IMPLEMENTED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

var codeStatus = map[Code]int{
	CodeInvalidRequest:    http.StatusBadRequest,
	CodeInvalidProductID:  http.StatusBadRequest,
	CodeInvalidIntentID:   http.StatusBadRequest,
	CodeInvalidJobID:      http.StatusBadRequest,
	CodeInvalidKeyID:      http.StatusBadRequest,
	CodeInvalidScope:      http.StatusBadRequest,
	CodeInvalidToken:      http.StatusUnauthorized,
	CodeForbidden:         http.StatusForbidden,
	CodeProductNotFound:   http.StatusNotFound,
	CodeIntentNotFound:    http.StatusNotFound,
	CodeJobNotFound:       http.StatusNotFound,
	CodeKeyNotFound:       http.StatusNotFound,
	CodeKeyNameConflict:   http.StatusConflict,
	CodeRateLimited:       http.StatusTooManyRequests,
	CodeGenerationFailed:  http.StatusUnprocessableEntity,
	CodeGenerationTimeout: http.StatusGatewayTimeout,
	CodeDegraded:          http.StatusServiceUnavailable,
	CodeNotImplemented:    http.StatusNotImplemented,
	CodeInternal:          http.StatusInternalServerError,
}

// Status returns the HTTP status an error with this code is sent with.
// Unknown codes are server errors.
func (c Code) Status() int {
	if s, ok := codeStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// Paginate cuts one 1-based page out of items. A page past the end is empty.
func Paginate[T any](items []T, page, limit int) ([]T, PaginationMeta) {
	meta := PaginationMeta{Page: page, Limit: limit, Total: len(items)}
	out := []T{}
	start := (page - 1) * limit
	end := start + limit
	if start < len(items) {
		out = items[start:min(end, len(items))]
	}
	meta.HasNext = end < len(items)
	return out, meta
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error envelope with the status that belongs to code.
func Error(w http.ResponseWriter, code Code, message string, details any) {
	writeJSON(w, code.Status(), errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// writeJSON encodes before writing the header so a value that cannot be
// encoded turns into a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope{Error: errorBody{
			Code:    CodeInternal,
			Message: "Failed to encode response",
		}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
