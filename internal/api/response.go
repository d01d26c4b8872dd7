package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/serapeum-ai/serapeum/internal/rag"
)

// writeJSON writes a JSON response with the given status code. Encodes
// into a buffer first so headers are only sent after successful
// encoding and a real 500 can still be returned on encode failure.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("failed to write response body", "error", err)
	}
}

// writeError maps a pipeline error to an HTTP status and a redacted
// JSON error envelope. The full error is logged server-side; clients
// see only the error kind, the backend name and package-written
// messages.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ragErr *rag.Error
	if !errors.As(err, &ragErr) {
		logger.Error("request failed with unclassified error", "error", err)
		writeErrorEnvelope(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	status := statusForKind(ragErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", ragErr.Kind.String(), "backend", ragErr.Backend, "error", err)
	} else {
		logger.Warn("request rejected", "kind", ragErr.Kind.String(), "error", err)
	}
	writeErrorEnvelope(w, status, ragErr.Kind.String(), ragErr.Redacted())
}

func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func statusForKind(kind rag.Kind) int {
	switch kind {
	case rag.KindValidation:
		return http.StatusBadRequest
	case rag.KindNotFound:
		return http.StatusNotFound
	case rag.KindCapabilityUnavailable:
		return http.StatusServiceUnavailable
	case rag.KindBackend:
		return http.StatusBadGateway
	case rag.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
