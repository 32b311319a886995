package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sensornode/internal/calibration"
)

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.node.Sensors(r.Context())
	if err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": sensors,
		"count":   len(sensors),
	})
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	sensor, err := s.node.Sensor(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

// handleGetReadings returns what the report stage last published.
func (s *Server) handleGetReadings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	readings, ok := s.board.Sensor(name)
	if !ok {
		writeNotFound(w, "no readings for "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensor":   name,
		"readings": readings,
	})
}

func (s *Server) handleGetConsumption(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	channels, err := s.node.Consumption(r.Context(), name)
	if err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensor":   name,
		"channels": channels,
	})
}

func (s *Server) handleResetConsumption(w http.ResponseWriter, r *http.Request) {
	if err := s.node.ResetConsumption(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	if err := s.node.Recalibrate(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recalibrated"})
}

type lowPowerRequest struct {
	Enter *bool `json:"enter"`
}

func (s *Server) handleLowPower(w http.ResponseWriter, r *http.Request) {
	var req lowPowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enter == nil {
		writeBadRequest(w, "enter is required")
		return
	}
	if err := s.node.LowPower(r.Context(), chi.URLParam(r, "name"), *req.Enter); err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"low_power": *req.Enter})
}

// calibrationKey parses the {key} URL parameter. Zero is not a key.
func calibrationKey(r *http.Request) (uint32, bool) {
	key, err := strconv.ParseUint(chi.URLParam(r, "key"), 10, 32)
	if err != nil || key == 0 {
		return 0, false
	}
	return uint32(key), true
}

func (s *Server) handleGetCalibration(w http.ResponseWriter, r *http.Request) {
	key, ok := calibrationKey(r)
	if !ok {
		writeBadRequest(w, "key must be a positive integer")
		return
	}
	e, err := s.node.Calibration(r.Context(), key)
	if err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type calibrationRequest struct {
	Enabled bool   `json:"enabled"`
	Offset  int16  `json:"offset"`
	Note    string `json:"note"`
}

func (s *Server) handleSetCalibration(w http.ResponseWriter, r *http.Request) {
	key, ok := calibrationKey(r)
	if !ok {
		writeBadRequest(w, "key must be a positive integer")
		return
	}
	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	e := calibration.Entry{Key: key, Enabled: req.Enabled, Offset: req.Offset, Note: req.Note}
	if err := s.node.SetCalibration(r.Context(), e); err != nil {
		s.writeNodeError(w, r, err)
		return
	}
	s.logger.Info("calibration written via api",
		"key", key,
		"subject", r.Context().Value(ctxKeySubject),
	)
	writeJSON(w, http.StatusOK, e)
}
