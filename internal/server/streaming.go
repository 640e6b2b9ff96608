package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"radyo/internal/playback"
	"radyo/internal/session"
)

const (
	eventBuffer    = 32
	keepAliveEvery = 15 * time.Second
)

// handlePlayerEvents streams playback snapshots as Server-Sent Events.
// The stream starts with the current snapshot and ends when the client
// disconnects, the server shuts down, the manager reaches its terminal
// phase, or the client falls too far behind.
func (rs *RadioServer) handlePlayerEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	surface, err := rs.surfaces.Register(session.KindEvents, "", r.UserAgent(), clientIP(r))
	if err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Failed to register surface", err)
		return
	}
	defer rs.surfaces.Remove(surface.ID)

	snapshots, cancel := rs.player.Watch(eventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := rs.logger.WithField("surface_id", surface.ID)
	logger.Debug("Event stream opened")
	defer logger.Debug("Event stream closed")

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-rs.done:
			return
		case <-keepAlive.C:
			rs.surfaces.Touch(surface.ID)
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-snapshots:
			if !ok {
				logger.Warn("Event stream consumer too slow, dropped")
				return
			}
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
			if snap.Phase == playback.PhaseStopped {
				return
			}
		}
	}
}

// writeEvent writes one snapshot as a "state" event with the epoch as id
func writeEvent(w http.ResponseWriter, snap playback.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", snap.Epoch, data)
	return err
}
