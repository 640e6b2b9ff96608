package backend

import (
	"testing"

	"radyo/internal/config"

	"github.com/sirupsen/logrus"
)

func TestNewSelectsBackend(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	tests := []struct {
		backend   string
		reconnect bool
		want      string
		wantErr   bool
	}{
		{"ffmpeg", false, "ffmpeg", false},
		{"speaker", false, "speaker", false},
		{"speaker", true, "speaker", false},
		{"vlc", false, "", true},
	}

	for _, tt := range tests {
		cfg := config.DefaultConfig().Playback
		cfg.Backend = tt.backend
		cfg.ReconnectOnResume = tt.reconnect

		b, err := New(cfg, nil, logger)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) should have failed", tt.backend)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q) failed: %v", tt.backend, err)
		}
		if b.Name() != tt.want {
			t.Errorf("Expected %s backend, got %s", tt.want, b.Name())
		}

		wantReconnect := tt.backend == "ffmpeg" || tt.reconnect
		if b.ReconnectOnResume() != wantReconnect {
			t.Errorf("%s: ReconnectOnResume = %v, want %v", tt.backend, b.ReconnectOnResume(), wantReconnect)
		}
	}
}
