package speaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"radyo/internal/playback"
	"radyo/internal/probe"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"
)

// Formats lists what the in-process decoders understand
var Formats = []probe.Format{probe.FormatMP3, probe.FormatFLAC, probe.FormatWAV}

// bufferDuration is the speaker buffer length
const bufferDuration = 100 * time.Millisecond

// Prober identifies a stream before it is opened
type Prober interface {
	Probe(ctx context.Context, url string) (probe.StreamInfo, error)
}

// Options configures the speaker backend
type Options struct {
	SampleRate        int
	ReconnectOnResume bool
	ReadyTimeout      time.Duration
	ReadTimeout       time.Duration // silence after which a live stream counts as stalled
	Client            *http.Client
	Prober            Prober // optional
	Output            Output // defaults to the system speaker
}

// Backend decodes streams in process and plays them on the default
// audio device. Pausing keeps the connection open, so by default a
// resume continues from the paused buffer.
type Backend struct {
	opts       Options
	logger     *logrus.Logger
	sampleRate beep.SampleRate

	initOnce sync.Once
	initErr  error
}

// New creates a speaker backend
func New(opts Options, logger *logrus.Logger) *Backend {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 15 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = opts.ReadyTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Output == nil {
		opts.Output = systemOutput{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Backend{
		opts:       opts,
		logger:     logger,
		sampleRate: beep.SampleRate(opts.SampleRate),
	}
}

// Name implements playback.Backend
func (b *Backend) Name() string { return "speaker" }

// ReconnectOnResume implements playback.Backend
func (b *Backend) ReconnectOnResume() bool { return b.opts.ReconnectOnResume }

// stream is the handle for one bound URL
type stream struct {
	url    string
	events playback.Events

	mu       sync.Mutex
	cancel   context.CancelFunc
	ctrl     *beep.Ctrl
	body     io.Closer
	paused   bool
	started  bool
	failed   bool
	released bool
}

// Bind implements playback.Backend
func (b *Backend) Bind(streamURL string, events playback.Events) (playback.Handle, error) {
	if streamURL == "" {
		return nil, playback.NewError(playback.ConnectionFailed, "empty stream URL")
	}
	return &stream{url: streamURL, events: events}, nil
}

func handle(h playback.Handle) (*stream, error) {
	s, ok := h.(*stream)
	if !ok || s == nil {
		return nil, fmt.Errorf("speaker: foreign handle %T", h)
	}
	return s, nil
}

// Start implements playback.Backend. Connecting and decoding happen in
// the background and are reported through the bound events.
func (b *Backend) Start(h playback.Handle) error {
	s, err := handle(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return errors.New("speaker: stream already released")
	}
	if s.started {
		return nil
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go b.open(ctx, s)
	return nil
}

// Pause implements playback.Backend
func (b *Backend) Pause(h playback.Handle) error {
	return b.setPaused(h, true)
}

// Resume implements playback.Backend
func (b *Backend) Resume(h playback.Handle) error {
	return b.setPaused(h, false)
}

func (b *Backend) setPaused(h playback.Handle, paused bool) error {
	s, err := handle(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.paused = paused
	ctrl := s.ctrl
	s.mu.Unlock()

	if ctrl != nil {
		b.opts.Output.Lock()
		ctrl.Paused = paused
		b.opts.Output.Unlock()
	}
	return nil
}

// Release implements playback.Backend. The streamer is detached from
// the mixer and the connection closed; nothing is reported afterwards.
func (b *Backend) Release(h playback.Handle) error {
	s, err := handle(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.released = true
	if s.cancel != nil {
		s.cancel()
	}
	ctrl, body := s.ctrl, s.body
	s.ctrl, s.body = nil, nil
	s.mu.Unlock()

	if ctrl != nil {
		b.opts.Output.Lock()
		ctrl.Streamer = nil
		b.opts.Output.Unlock()
	}
	if body != nil {
		body.Close()
	}
	return nil
}

func (s *stream) report(fn func(playback.Events)) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()

	if !released {
		fn(s.events)
	}
}

func (s *stream) fail(info *playback.ErrorInfo) {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
	s.report(func(e playback.Events) { e.Failed(*info) })
}

// initOutput opens the audio device once at the configured rate; every
// stream is resampled to it.
func (b *Backend) initOutput() error {
	b.initOnce.Do(func() {
		b.initErr = b.opts.Output.Init(b.sampleRate, b.sampleRate.N(bufferDuration))
		if b.initErr == nil {
			b.logger.WithField("sample_rate", b.opts.SampleRate).Info("Audio output initialized")
		}
	})
	return b.initErr
}

// open connects, decodes and hands the stream to the mixer
func (b *Backend) open(ctx context.Context, s *stream) {
	logger := b.logger.WithField("url", s.url)

	var (
		readyMu  sync.Mutex
		ready    bool
		timedOut bool
	)
	timer := time.AfterFunc(b.opts.ReadyTimeout, func() {
		readyMu.Lock()
		defer readyMu.Unlock()
		if !ready {
			timedOut = true
			s.cancel()
		}
	})
	defer timer.Stop()

	// failure wraps fail so that anything caused by the ready timer is
	// reported as a timeout
	failure := func(info *playback.ErrorInfo) {
		readyMu.Lock()
		expired := timedOut
		readyMu.Unlock()

		if expired {
			info = playback.NewError(playback.Timeout, "stream did not start within %s", b.opts.ReadyTimeout)
		} else if ctx.Err() != nil {
			return
		}
		logger.WithField("kind", info.Kind.String()).Warn(info.Message)
		s.fail(info)
	}

	format := probe.FormatUnknown
	if b.opts.Prober != nil {
		info, err := b.opts.Prober.Probe(ctx, s.url)
		if err != nil {
			failure(playback.AsErrorInfo(err))
			return
		}
		if err := probe.Supports(info, Formats); err != nil {
			failure(playback.AsErrorInfo(err))
			return
		}
		format = info.Format
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		failure(playback.NewError(playback.ConnectionFailed, "invalid stream URL: %v", err))
		return
	}
	req.Header.Set("Icy-MetaData", "0")

	resp, err := b.opts.Client.Do(req)
	if err != nil {
		failure(playback.AsErrorInfo(err))
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		failure(playback.NewError(playback.ConnectionFailed, "stream returned %s", resp.Status))
		return
	}

	if format == probe.FormatUnknown {
		format = guessFormat(resp.Header.Get("Content-Type"), s.url)
	}

	body := &stallReader{ctx: ctx, r: resp.Body, timeout: b.opts.ReadTimeout}
	decoder, streamFormat, err := decode(format, body)
	if err != nil {
		resp.Body.Close()
		if body.Stalled() {
			err = playback.NewError(playback.Timeout, "no audio data for %s", b.opts.ReadTimeout)
		}
		failure(playback.AsErrorInfo(err))
		return
	}

	if err := b.initOutput(); err != nil {
		decoder.Close()
		resp.Body.Close()
		failure(playback.NewError(playback.ConnectionFailed, "audio output unavailable: %v", err))
		return
	}

	var streamer beep.Streamer = decoder
	if streamFormat.SampleRate != b.sampleRate {
		streamer = beep.Resample(4, streamFormat.SampleRate, b.sampleRate, decoder)
	}

	readyMu.Lock()
	if timedOut {
		readyMu.Unlock()
		decoder.Close()
		resp.Body.Close()
		failure(playback.NewError(playback.Timeout, "stream did not start in time"))
		return
	}
	ready = true
	readyMu.Unlock()

	chunks := make(chan [][2]float64, bufferedChunks)

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		decoder.Close()
		resp.Body.Close()
		return
	}
	// the mixer only ever sees the feed, so holding the output lock never
	// waits on the network
	ctrl := &beep.Ctrl{
		Streamer: beep.Seq(&feed{chunks: chunks}, beep.Callback(func() {
			// runs on the mixer goroutine with the output locked
			go b.finished(s)
		})),
		Paused: s.paused,
	}
	s.ctrl, s.body = ctrl, resp.Body
	s.mu.Unlock()

	b.opts.Output.Play(ctrl)

	logger.WithFields(logrus.Fields{
		"format":      string(format),
		"sample_rate": int(streamFormat.SampleRate),
		"channels":    streamFormat.NumChannels,
	}).Info("Stream playing")
	s.report(func(e playback.Events) { e.Ready() })

	go func() {
		defer resp.Body.Close()
		defer decoder.Close()
		pump(ctx, streamer, chunks)
		b.decoded(ctx, s, body, decoder.Err())
		close(chunks)
	}()
}

// decoded reports a stream that stopped decoding because of an error.
// Failures are reported at once; a clean end waits for the mixer to
// drain the buffer.
func (b *Backend) decoded(ctx context.Context, s *stream, body *stallReader, err error) {
	if ctx.Err() != nil {
		return
	}
	logger := b.logger.WithField("url", s.url)

	switch {
	case body.Stalled():
		logger.WithField("read_timeout", b.opts.ReadTimeout).Warn("Stream stalled")
		s.fail(playback.NewError(playback.Timeout, "no audio data for %s", b.opts.ReadTimeout))
	case err != nil && !errors.Is(err, io.EOF):
		logger.WithError(err).Warn("Stream dropped")
		s.fail(playback.NewError(playback.UnexpectedStreamEnd, "stream dropped: %v", err))
	}
}

// finished reports the end of the stream once the mixer has played
// everything that was decoded
func (b *Backend) finished(s *stream) {
	s.mu.Lock()
	failed := s.failed
	s.mu.Unlock()
	if failed {
		return
	}

	b.logger.WithField("url", s.url).Info("Stream ended")
	s.report(func(e playback.Events) { e.Ended() })
}

// decode picks the beep decoder for format
func decode(format probe.Format, body io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)

	switch format {
	case probe.FormatMP3:
		s, f, err = mp3.Decode(body)
	case probe.FormatFLAC:
		s, f, err = flac.Decode(body)
	case probe.FormatWAV:
		s, f, err = wav.Decode(body)
	default:
		return nil, beep.Format{}, playback.NewError(playback.UnsupportedFormat, "cannot decode %s streams", format)
	}

	if err != nil {
		return nil, beep.Format{}, playback.NewError(playback.UnsupportedFormat, "failed to decode %s stream: %v", format, err)
	}
	return s, f, nil
}

// guessFormat falls back to the content type, then the URL extension.
// Most stations without either serve MP3.
func guessFormat(contentType, streamURL string) probe.Format {
	if f := probe.Identify(contentType, nil).Format; f != probe.FormatUnknown {
		return f
	}

	switch strings.ToLower(path.Ext(strings.SplitN(streamURL, "?", 2)[0])) {
	case ".flac":
		return probe.FormatFLAC
	case ".wav":
		return probe.FormatWAV
	default:
		return probe.FormatMP3
	}
}
