// Package httputil writes the JSON response envelope used by every endpoint:
//
//	{"success": true, "data": ..., "message": ..., "pagination": {...}}
//	{"success": false, "error": "<code>", "error_description": "..."}
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/pagination"
	"vtrack/pkg/platform/sentinel"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var devMode bool

// SetDevMode controls whether internal error causes are exposed in responses.
func SetDevMode(enabled bool) {
	devMode = enabled
}

type envelope struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Data       any              `json:"data,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

type errorEnvelope struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// WriteMessage writes a success envelope without data.
func WriteMessage(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}

// WritePage writes a paginated success envelope.
func WritePage[T any](w http.ResponseWriter, page pagination.Page[T]) {
	meta := page.Meta
	WriteJSON(w, http.StatusOK, envelope{Success: true, Data: page.Items, Pagination: &meta})
}

// WriteError maps a domain error to its status and writes the error envelope.
// Internal errors never carry a description outside dev mode. An internal
// error caused by an unreachable database is reported as unavailable, one
// caused by a value the database rejected as invalid argument.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := ""
	if de, ok := dErrors.As(err); ok {
		code = de.Code
		message = de.Message
	}
	if code == dErrors.CodeInternal {
		switch {
		case errors.Is(err, sentinel.ErrUnavailable):
			code = dErrors.CodeUnavailable
			message = "service temporarily unavailable"
		case errors.Is(err, sentinel.ErrInvalid):
			code = dErrors.CodeInvalidArgument
			message = "a field value was rejected as too long or out of range"
		}
	}
	body := errorEnvelope{Success: false, Error: string(code)}
	if code != dErrors.CodeInternal {
		body.Description = message
	} else if devMode && err != nil {
		body.Detail = err.Error()
	}
	WriteJSON(w, StatusFor(code), body)
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidArgument, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes a bounded JSON body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeInvalidArgument, "request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeInvalidArgument, "invalid request body")
	}
	return nil
}
