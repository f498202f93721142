package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"artifact-job-service/internal/service"
	"artifact-job-service/internal/signer"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// writeServiceErr maps service and token errors onto the API status codes.
// Anything unrecognized becomes a plain 500 so internals never leak.
func writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownKind), errors.Is(err, service.ErrInvalidPayload):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotReady):
		writeErr(w, http.StatusBadRequest, "job is not done")
	case errors.Is(err, service.ErrNotFound):
		writeErr(w, http.StatusNotFound, "job not found")
	case errors.Is(err, signer.ErrExpiredToken):
		writeErr(w, http.StatusGone, "download url expired")
	case errors.Is(err, signer.ErrInvalidToken):
		writeErr(w, http.StatusForbidden, "invalid token")
	default:
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

func serveArtifact(w http.ResponseWriter, contentType, filename string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
