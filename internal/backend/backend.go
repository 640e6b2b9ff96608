// Package backend builds the playback backend named in the configuration
package backend

import (
	"fmt"
	"net/http"
	"time"

	"radyo/internal/backend/ffmpeg"
	"radyo/internal/backend/speaker"
	"radyo/internal/config"
	"radyo/internal/playback"
	"radyo/internal/probe"

	"github.com/sirupsen/logrus"
)

// New returns the backend selected by cfg.Backend. prober may be nil,
// in which case streams are opened without identifying them first.
func New(cfg config.PlaybackConfig, prober *probe.Prober, logger *logrus.Logger) (playback.Backend, error) {
	readyTimeout := time.Duration(cfg.ReadyTimeout) * time.Second

	switch cfg.Backend {
	case "ffmpeg":
		opts := ffmpeg.Options{
			Binary:       cfg.FFmpegPath,
			OutputFormat: cfg.OutputFormat,
			OutputDevice: cfg.OutputDevice,
			ReadyTimeout: readyTimeout,
		}
		if prober != nil {
			opts.Prober = prober
		}
		return ffmpeg.New(opts, logger), nil

	case "speaker":
		opts := speaker.Options{
			SampleRate:        cfg.SampleRate,
			ReconnectOnResume: cfg.ReconnectOnResume,
			ReadyTimeout:      readyTimeout,
			// no overall timeout: the response body is the live stream
			Client: &http.Client{},
		}
		if prober != nil {
			opts.Prober = prober
		}
		return speaker.New(opts, logger), nil

	default:
		return nil, fmt.Errorf("unknown playback backend %q", cfg.Backend)
	}
}
