package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"radyo/internal/catalog"
	"radyo/internal/playback"

	"github.com/sirupsen/logrus"
)

// playerResponse is what every player endpoint returns
type playerResponse struct {
	playback.Snapshot
	Backend    string `json:"backend"`
	Foreground bool   `json:"foreground"`
}

func (rs *RadioServer) playerState() playerResponse {
	return playerResponse{
		Snapshot:   rs.player.State(),
		Backend:    rs.player.BackendName(),
		Foreground: rs.player.Foreground(),
	}
}

// handleGetPlayerState returns the current playback snapshot
func (rs *RadioServer) handleGetPlayerState(w http.ResponseWriter, r *http.Request) {
	rs.respondJSON(w, http.StatusOK, rs.playerState())
}

// handlePlay starts a station. The command is accepted even if the
// stream later fails: failures show up in the snapshot, not as HTTP
// errors.
func (rs *RadioServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID string `json:"stationId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rs.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	req.StationID = sanitizeInput(req.StationID)
	if verr := validateStationID(req.StationID); verr != nil {
		rs.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	station, err := rs.catalog.Get(req.StationID)
	if errors.Is(err, catalog.ErrStationNotFound) {
		rs.respondWithError(w, r, http.StatusNotFound, "Station not found", nil)
		return
	}
	if err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving station", err)
		return
	}

	rs.logger.WithFields(logrus.Fields{
		"station_id": station.ID,
		"station":    station.Name,
	}).Info("Play requested")

	rs.player.Play(station)
	rs.respondJSON(w, http.StatusAccepted, rs.playerState())
}

// handlePause pauses playback; a no-op unless playing
func (rs *RadioServer) handlePause(w http.ResponseWriter, r *http.Request) {
	rs.player.Pause()
	rs.respondJSON(w, http.StatusAccepted, rs.playerState())
}

// handleResume resumes playback; a no-op unless paused
func (rs *RadioServer) handleResume(w http.ResponseWriter, r *http.Request) {
	rs.player.Resume()
	rs.respondJSON(w, http.StatusAccepted, rs.playerState())
}

// handleStop releases the stream and returns the session to idle
func (rs *RadioServer) handleStop(w http.ResponseWriter, r *http.Request) {
	rs.player.Stop()
	rs.respondJSON(w, http.StatusAccepted, rs.playerState())
}

// handleLifecycle forwards the app foreground/background signal. It
// never changes the playback phase.
func (rs *RadioServer) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Foreground *bool `json:"foreground"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rs.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.Foreground == nil {
		rs.respondWithValidationError(w, r, []ValidationError{{
			Field:   "foreground",
			Message: "Foreground flag is required",
			Code:    "MISSING_FOREGROUND",
		}})
		return
	}

	rs.player.SetForeground(*req.Foreground)
	rs.respondJSON(w, http.StatusAccepted, rs.playerState())
}

// handleGetHistory returns the most recent play attempts
func (rs *RadioServer) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, verr := parseHistoryLimit(r.URL.Query().Get("limit"))
	if verr != nil {
		rs.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	plays, err := rs.db.GetRecentPlays(limit)
	if err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving history", err)
		return
	}

	rs.respondJSON(w, http.StatusOK, plays)
}
