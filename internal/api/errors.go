package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-sensornode/internal/node"
	"github.com/nerrad567/gray-logic-sensornode/internal/pipeline"
	"github.com/nerrad567/gray-logic-sensornode/internal/policy"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeUnsupported  = "unsupported"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// nodeErrors maps node service errors to responses, first match wins.
var nodeErrors = []struct {
	target error
	status int
	code   string
}{
	{sensor.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{policy.ErrCalibrationNotFound, http.StatusNotFound, ErrCodeNotFound},
	{sensor.ErrBadData, http.StatusBadRequest, ErrCodeBadRequest},
	{policy.ErrNoCalibrationKey, http.StatusBadRequest, ErrCodeBadRequest},
	{sensor.ErrUnsupported, http.StatusConflict, ErrCodeUnsupported},
	{pipeline.ErrStageNotFound, http.StatusConflict, ErrCodeUnsupported},
	{pipeline.ErrStopped, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{node.ErrNoCalibrationStore, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

// writeNodeError writes the response for err. Unmapped errors are logged
// and hidden behind a 500.
func (s *Server) writeNodeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range nodeErrors {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	s.logger.Error("request failed",
		"error", err,
		"path", r.URL.Path,
		"request_id", requestID(r.Context()),
	)
	writeInternalError(w, "internal server error")
}
