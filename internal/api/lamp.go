package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/mood-core/internal/lamp"
)

// ColourRequest is the body of POST /lamp/colour.
type ColourRequest struct {
	Colour string `json:"colour"`
}

// MoodRequest is the body of POST /lamp/mood.
type MoodRequest struct {
	On bool `json:"on"`
}

// DeviceRequest is the body of PUT /lamp/device.
type DeviceRequest struct {
	Topic string `json:"topic"`
	ID    string `json:"id"`
}

// handleLampState returns the lamp state and working topics.
func (s *Server) handleLampState(w http.ResponseWriter, _ *http.Request) {
	topics := s.lamp.Topics()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": s.lamp.State(),
		"topics": map[string]string{
			"incoming": topics.Incoming.Name,
			"outgoing": topics.Outgoing.Name,
			"status":   topics.Status(),
		},
	})
}

// handleLampColour sets a manual colour.
func (s *Server) handleLampColour(w http.ResponseWriter, r *http.Request) {
	var req ColourRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	colour, err := lamp.ParseHex(req.Colour)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.lamp.SetColour(r.Context(), colour); err != nil {
		s.writeLampError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.lamp.State())
}

// handleLampMood switches automatic mode.
func (s *Server) handleLampMood(w http.ResponseWriter, r *http.Request) {
	var req MoodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.lamp.Mood(r.Context(), req.On); err != nil {
		s.writeLampError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.lamp.State())
}

// handleLampOff turns the lamp off.
func (s *Server) handleLampOff(w http.ResponseWriter, r *http.Request) {
	if err := s.lamp.Off(r.Context()); err != nil {
		s.writeLampError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.lamp.State())
}

// handleLampDevice re-targets the controller at another lamp.
func (s *Server) handleLampDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.lamp.SetDevice(r.Context(), req.Topic, req.ID); err != nil {
		s.writeLampError(w, err)
		return
	}
	s.handleLampState(w, r)
}

// handleLampHistory lists recorded state changes for the current lamp.
func (s *Server) handleLampHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history storage is disabled")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	lampID := s.lamp.State().LampID
	entries, err := s.history.Recent(r.Context(), lampID, limit)
	if err != nil {
		s.logger.Error("listing lamp history failed", "lamp", lampID, "error", err)
		writeInternalError(w, "failed to list lamp history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lamp_id": lampID,
		"history": entries,
		"count":   len(entries),
	})
}

func (s *Server) writeLampError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lamp.ErrRateLimited):
		writeRateLimited(w, err.Error())
	case errors.Is(err, lamp.ErrInvalidColour),
		errors.Is(err, lamp.ErrInvalidDevice),
		errors.Is(err, lamp.ErrUnknownCommand):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("lamp command failed", "error", err)
		writeInternalError(w, "lamp command failed")
	}
}
