package httputil

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "vtrack/pkg/domain-errors"
	"vtrack/pkg/requestcontext"
)

// PathUUID parses the chi URL parameter key as a UUID.
func PathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidArgument, "invalid %s", key)
	}
	return id, nil
}

// QueryUUID parses an optional UUID query parameter.
func QueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeInvalidArgument, "invalid %s", key)
	}
	return &id, nil
}

// QueryTime parses an optional ISO 8601 date or timestamp query parameter.
func QueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeInvalidArgument, "invalid date format for %s", key)
	}
	return &t, nil
}

// ParseTime accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC).
func ParseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, key string) (*bool, error) {
	switch r.URL.Query().Get(key) {
	case "":
		return nil, nil
	case "true", "1":
		v := true
		return &v, nil
	case "false", "0":
		v := false
		return &v, nil
	}
	return nil, dErrors.Newf(dErrors.CodeInvalidArgument, "invalid %s", key)
}

// Fail logs err at a level matching its code and writes the error envelope.
func Fail(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, msg string) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.CodeOf(err) == dErrors.CodeUnavailable {
		level = slog.LevelError
	}
	if logger != nil {
		logger.Log(ctx, level, msg,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	WriteError(w, err)
}
