package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"radyo/internal/session"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// handleRegisterSurface registers a UI surface that observes playback
func (rs *RadioServer) handleRegisterSurface(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		Name string `json:"name,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rs.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	var errs []ValidationError
	kind, err := session.ParseKind(sanitizeInput(req.Kind))
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "kind",
			Message: err.Error(),
			Code:    "INVALID_SURFACE_KIND",
		})
	}
	name := sanitizeInput(req.Name)
	if verr := validateSurfaceName(name); verr != nil {
		errs = append(errs, *verr)
	}
	if len(errs) > 0 {
		rs.respondWithValidationError(w, r, errs)
		return
	}

	userAgent := r.UserAgent()
	if name == "" {
		name = guessDeviceName(userAgent)
	}

	surface, err := rs.surfaces.Register(kind, name, userAgent, clientIP(r))
	if err != nil {
		rs.respondWithError(w, r, http.StatusInternalServerError, "Failed to register surface", err)
		return
	}

	rs.logger.WithFields(logrus.Fields{
		"surface_id": surface.ID,
		"kind":       surface.Kind,
		"name":       surface.Name,
	}).Info("Surface registered")

	rs.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"surface": surface,
		"state":   rs.playerState(),
	})
}

// handleGetSurfaces returns every live surface and the focused one
func (rs *RadioServer) handleGetSurfaces(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"surfaces": rs.surfaces.Active(),
	}
	if focused, ok := rs.surfaces.Focused(); ok {
		response["focused"] = focused.ID
	}

	rs.respondJSON(w, http.StatusOK, response)
}

// handleSurfaceHeartbeat keeps a surface alive
func (rs *RadioServer) handleSurfaceHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !rs.surfaces.Touch(id) {
		rs.respondWithError(w, r, http.StatusNotFound, "Surface not found", nil)
		return
	}

	rs.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   rs.playerState(),
	})
}

// handleRemoveSurface unregisters a surface that is going away
func (rs *RadioServer) handleRemoveSurface(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rs.surfaces.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// clientIP prefers the proxy header set by the tunnel
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// guessDeviceName tries to guess device name from user agent
func guessDeviceName(userAgent string) string {
	ua := strings.ToLower(userAgent)

	if strings.Contains(ua, "android") {
		return "Android Device"
	}

	if strings.Contains(ua, "iphone") {
		return "iPhone"
	}

	if strings.Contains(ua, "ipad") {
		return "iPad"
	}

	if strings.Contains(ua, "mobile") {
		return "Mobile Device"
	}

	if strings.Contains(ua, "mac") {
		return "Mac"
	}

	if strings.Contains(ua, "windows") {
		return "Windows PC"
	}

	if strings.Contains(ua, "linux") {
		return "Linux PC"
	}

	if strings.Contains(ua, "curl") {
		return "Command Line"
	}

	return "Web Browser"
}
