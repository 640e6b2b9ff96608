package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"radyo/internal/playback"
	"radyo/internal/probe"

	"github.com/sirupsen/logrus"
)

// Formats lists what an ffmpeg build with network support can open
var Formats = []probe.Format{
	probe.FormatMP3, probe.FormatAAC, probe.FormatM4A, probe.FormatOgg,
	probe.FormatFLAC, probe.FormatWAV, probe.FormatHLS, probe.FormatM3U,
}

// Prober identifies a stream before it is opened
type Prober interface {
	Probe(ctx context.Context, url string) (probe.StreamInfo, error)
}

// Options configures the ffmpeg backend
type Options struct {
	Binary       string
	OutputFormat string // ffmpeg muxer, e.g. pulse or alsa
	OutputDevice string
	ReadyTimeout time.Duration
	Prober       Prober // optional
}

// Backend plays streams through an ffmpeg child process writing to the
// system audio output. A paused stream cannot keep its connection, so
// the process is killed on pause and a new one is started on resume.
type Backend struct {
	opts   Options
	logger *logrus.Logger

	// command builds the child process; replaced in tests
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New creates an ffmpeg backend
func New(opts Options, logger *logrus.Logger) *Backend {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = "pulse"
	}
	if opts.OutputDevice == "" {
		opts.OutputDevice = "radyo"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Backend{
		opts:    opts,
		logger:  logger,
		command: exec.CommandContext,
	}
}

// Name implements playback.Backend
func (b *Backend) Name() string { return "ffmpeg" }

// ReconnectOnResume implements playback.Backend
func (b *Backend) ReconnectOnResume() bool { return true }

// stream is the handle for one bound URL
type stream struct {
	url    string
	events playback.Events

	mu       sync.Mutex
	run      uint64
	cancel   context.CancelFunc // nil unless a process is running
	released bool
}

// Bind implements playback.Backend
func (b *Backend) Bind(streamURL string, events playback.Events) (playback.Handle, error) {
	if streamURL == "" {
		return nil, playback.NewError(playback.ConnectionFailed, "empty stream URL")
	}
	return &stream{url: streamURL, events: events}, nil
}

// Start implements playback.Backend. Progress is reported through the
// bound events from a background goroutine.
func (b *Backend) Start(h playback.Handle) error {
	s, err := handle(h)
	if err != nil {
		return err
	}
	return b.launch(s)
}

// Pause kills the process without reporting anything
func (b *Backend) Pause(h playback.Handle) error {
	s, err := handle(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// Resume starts a fresh process for the same URL. The manager normally
// rebinds instead since ReconnectOnResume is true.
func (b *Backend) Resume(h playback.Handle) error {
	s, err := handle(h)
	if err != nil {
		return err
	}
	return b.launch(s)
}

// Release kills the process; the stream never reports again
func (b *Backend) Release(h playback.Handle) error {
	s, err := handle(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.released = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func handle(h playback.Handle) (*stream, error) {
	s, ok := h.(*stream)
	if !ok || s == nil {
		return nil, fmt.Errorf("ffmpeg: foreign handle %T", h)
	}
	return s, nil
}

func (b *Backend) launch(s *stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return errors.New("ffmpeg: stream already released")
	}
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.run++
	s.cancel = cancel

	go b.run(ctx, s, s.run)
	return nil
}

// finish clears the cancel func if run is still the latest process
func (s *stream) finish(run uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == run && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// report delivers one outcome unless the run was paused or released
func (s *stream) report(ctx context.Context, fn func(playback.Events)) {
	s.mu.Lock()
	quiet := s.released || ctx.Err() != nil
	s.mu.Unlock()

	if !quiet {
		fn(s.events)
	}
}

func (s *stream) fail(ctx context.Context, info *playback.ErrorInfo) {
	s.report(ctx, func(e playback.Events) { e.Failed(*info) })
}

func (b *Backend) args(url string) []string {
	rwTimeout := strconv.FormatInt(b.opts.ReadyTimeout.Microseconds(), 10)
	return []string{
		"-nostats", "-hide_banner",
		"-rw_timeout", rwTimeout,
		"-i", url,
		"-vn",
		"-f", b.opts.OutputFormat, b.opts.OutputDevice,
	}
}

// run probes, spawns ffmpeg and translates its lifecycle into events
func (b *Backend) run(ctx context.Context, s *stream, run uint64) {
	defer s.finish(run)

	logger := b.logger.WithField("url", s.url)

	if b.opts.Prober != nil {
		probeCtx, cancel := context.WithTimeout(ctx, b.opts.ReadyTimeout)
		info, err := b.opts.Prober.Probe(probeCtx, s.url)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.WithError(err).Warn("Stream probe failed")
			s.fail(ctx, playback.AsErrorInfo(err))
			return
		}
		if err := probe.Supports(info, Formats); err != nil {
			s.fail(ctx, playback.AsErrorInfo(err))
			return
		}
	}

	cmd := b.command(ctx, b.opts.Binary, b.args(s.url)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.fail(ctx, playback.NewError(playback.ConnectionFailed, "failed to attach to ffmpeg: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		logger.WithError(err).Error("Failed to start ffmpeg")
		s.fail(ctx, playback.NewError(playback.ConnectionFailed, "failed to start ffmpeg: %v", err))
		return
	}
	logger.WithField("pid", cmd.Process.Pid).Debug("ffmpeg started")

	var (
		readyMu  sync.Mutex
		ready    bool
		timedOut bool
	)

	timer := time.AfterFunc(b.opts.ReadyTimeout, func() {
		readyMu.Lock()
		if ready {
			readyMu.Unlock()
			return
		}
		timedOut = true
		readyMu.Unlock()

		logger.Warn("ffmpeg did not become ready in time")
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})
	defer timer.Stop()

	report := watchStderr(stderr, func() {
		readyMu.Lock()
		if timedOut {
			readyMu.Unlock()
			return
		}
		ready = true
		readyMu.Unlock()

		logger.Info("ffmpeg output ready")
		s.report(ctx, func(e playback.Events) { e.Ready() })
	})

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		// paused or released
		return
	}

	readyMu.Lock()
	wasReady, wasTimedOut := ready, timedOut
	readyMu.Unlock()

	switch {
	case wasTimedOut:
		s.fail(ctx, playback.NewError(playback.Timeout, "stream did not start within %s", b.opts.ReadyTimeout))
	case waitErr == nil && wasReady:
		logger.Info("ffmpeg reached end of stream")
		s.report(ctx, func(e playback.Events) { e.Ended() })
	default:
		s.fail(ctx, exitError(report, wasReady, waitErr))
	}
}

// exitError classifies an ffmpeg exit
func exitError(report stderrReport, wasReady bool, waitErr error) *playback.ErrorInfo {
	if report.matched {
		return &playback.ErrorInfo{Kind: report.kind, Message: report.message}
	}
	if wasReady {
		return playback.NewError(playback.UnexpectedStreamEnd, "ffmpeg exited: %v", waitErr)
	}
	if waitErr == nil {
		return playback.NewError(playback.UnsupportedFormat, "ffmpeg exited before producing audio")
	}
	return playback.NewError(playback.ConnectionFailed, "ffmpeg exited: %v", waitErr)
}
