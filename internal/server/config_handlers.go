package server

import (
	"net/http"
)

// ConfigResponse represents the public configuration sent to surfaces
type ConfigResponse struct {
	Auth     AuthConfigResponse     `json:"auth"`
	Playback PlaybackConfigResponse `json:"playback"`
	Surfaces SurfaceConfigResponse  `json:"surfaces"`
	// PublicURL is set while an ngrok tunnel is up
	PublicURL string `json:"public_url,omitempty"`
}

// AuthConfigResponse tells surfaces whether to send a token
type AuthConfigResponse struct {
	Enabled bool `json:"enabled"`
}

// PlaybackConfigResponse describes the active backend
type PlaybackConfigResponse struct {
	Backend           string `json:"backend"`
	ReconnectOnResume bool   `json:"reconnect_on_resume"`
	ReadyTimeout      int    `json:"ready_timeout_seconds"`
	ProbeStreams      bool   `json:"probe_streams"`
}

// SurfaceConfigResponse tells surfaces how often to send heartbeats
type SurfaceConfigResponse struct {
	TTL int `json:"ttl_seconds"`
}

// handleGetConfig returns public configuration settings for surfaces
func (rs *RadioServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	var publicURL string
	if rs.publicURL != nil {
		publicURL = rs.publicURL()
	}

	rs.respondJSON(w, http.StatusOK, ConfigResponse{
		Auth: AuthConfigResponse{
			Enabled: rs.verifier != nil && rs.verifier.Enabled(),
		},
		Playback: PlaybackConfigResponse{
			Backend:           rs.player.BackendName(),
			ReconnectOnResume: rs.config.Playback.Backend == "ffmpeg" || rs.config.Playback.ReconnectOnResume,
			ReadyTimeout:      rs.config.Playback.ReadyTimeout,
			ProbeStreams:      rs.config.Playback.ProbeStreams,
		},
		Surfaces: SurfaceConfigResponse{
			TTL: rs.config.Server.SurfaceTTL,
		},
		PublicURL: publicURL,
	})
}
