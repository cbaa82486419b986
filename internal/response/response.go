// Package response writes the JSON envelope every API endpoint answers with
// and maps engine errors onto HTTP status codes.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"fms/internal/apperr"
	"fms/internal/models"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

func write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusOK, models.APIResponse{Data: data})
}

// Created writes data with status 201.
func Created(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusCreated, models.APIResponse{Data: data})
}

// JSONMeta writes a successful API response with pagination metadata.
func JSONMeta(w http.ResponseWriter, data interface{}, total, page, limit int) {
	write(w, http.StatusOK, models.APIResponse{
		Data: data,
		Meta: &models.Meta{Total: total, Page: page, Limit: limit},
	})
}

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	write(w, code, ErrorBody{Error: msg, Code: codeName(code)})
}

func codeName(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}

// Status returns the HTTP status an engine error maps to.
func Status(err error) int {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
		pe *apperr.PermissionError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &pe):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the status it maps to. Unclassified errors are
// logged and answered with a generic message.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	code := Status(err)
	if code == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		Err(w, "internal error", code)
		return
	}
	body := ErrorBody{Error: err.Error(), Code: codeName(code)}
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		body.Details = ve
	case errors.As(err, &nf):
		body.Details = nf
	case errors.As(err, &ce):
		body.Details = ce
	}
	write(w, code, body)
}

// DecodeBody decodes a JSON request body into the given value.
func DecodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &apperr.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
