package httpapi

import (
	"encoding/json"
	"net/http"

	"modelkeep/internal/registry"
	"modelkeep/internal/session"
	"modelkeep/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case registry.IsIndexOutOfRange(err):
		return http.StatusNotFound
	case session.IsLastModelMissing(err):
		return http.StatusNotFound
	case session.IsNotLoaded(err):
		return http.StatusConflict
	case session.IsLoadFailure(err):
		return http.StatusBadGateway
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
