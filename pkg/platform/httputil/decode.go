package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "coitrack/pkg/domain-errors"
)

// Validatable is implemented by request DTOs that validate and parse their
// own fields.
type Validatable interface {
	Validate() error
}

const maxBodyBytes = 1 << 20

// DecodeAndPrepare decodes a JSON request body into T, runs its Validate
// hook when present, and writes the error response on failure. The boolean
// reports whether the handler should proceed.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "request decode failed", "request_id", requestID, "error", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}
