package models

import "time"

// Station represents a playable internet radio station
type Station struct {
	ID        string `json:"id" toml:"id" yaml:"id"`
	Name      string `json:"name" toml:"name" yaml:"name"`
	StreamURL string `json:"streamUrl" toml:"stream_url" yaml:"stream_url"`
	Genre     string `json:"genre,omitempty" toml:"genre" yaml:"genre"`
	City      string `json:"city,omitempty" toml:"city" yaml:"city"`
	LogoURL   string `json:"logoUrl,omitempty" toml:"logo_url" yaml:"logo_url"`
	Bitrate   int    `json:"bitrate,omitempty" toml:"bitrate" yaml:"bitrate"` // in kbps, informational
}

// Favorite represents a station the listener marked as favorite
type Favorite struct {
	StationID string    `json:"stationId"`
	AddedAt   time.Time `json:"addedAt"`
}

// PlayRecord is one entry of the listening history
type PlayRecord struct {
	ID        int64     `json:"id"`
	StationID string    `json:"stationId"`
	Outcome   string    `json:"outcome"`             // "playing" or "failed"
	ErrorKind string    `json:"errorKind,omitempty"` // set when Outcome is "failed"
	Epoch     uint64    `json:"epoch"`
	StartedAt time.Time `json:"startedAt"`
}
