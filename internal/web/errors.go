package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scriptyard/scriptyard/internal/auth"
	"github.com/scriptyard/scriptyard/internal/engine"
	"github.com/scriptyard/scriptyard/internal/queue"
	"github.com/scriptyard/scriptyard/internal/store"
)

// errorKind names one bucket of the error taxonomy in spec.md §7. HTTP
// bodies are {error_kind, message}, never a raw error string.
type errorKind string

const (
	errorKindValidation errorKind = "validation"
	errorKindConflict   errorKind = "conflict"
	errorKindCapacity   errorKind = "capacity"
	errorKindNotFound   errorKind = "not_found"
	errorKindAuth       errorKind = "auth"
	errorKindInternal   errorKind = "internal"
)

type errorBody struct {
	ErrorKind errorKind `json:"error_kind"`
	Message   string    `json:"message"`
}

var errInvalidArgs = errors.New("invalid argument")

// encodeError maps err to the error taxonomy of spec.md §7 and writes the
// matching {error_kind, message} JSON body, mirroring the teacher's single
// encodeError chokepoint (internal/admin/handlers/errors.go) generalized
// from a switch-on-sentinel to errors.Is against this repo's own sentinels.
func encodeError(w http.ResponseWriter, err error) {
	kind, status := classifyError(err)
	writeJSON(w, status, errorBody{ErrorKind: kind, Message: err.Error()})
}

func classifyError(err error) (errorKind, int) {
	switch {
	case errors.Is(err, errInvalidArgs), errors.Is(err, store.ErrInvalidInput):
		return errorKindValidation, http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return errorKindNotFound, http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists), errors.Is(err, engine.ErrAlreadyRunning):
		return errorKindConflict, http.StatusConflict
	case errors.Is(err, queue.ErrQueueFull):
		return errorKindCapacity, http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, auth.ErrUserNotFound):
		return errorKindAuth, http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return errorKindConflict, http.StatusConflict
	default:
		return errorKindInternal, http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidArgs
	}
	return nil
}
