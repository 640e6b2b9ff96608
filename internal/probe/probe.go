package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"radyo/internal/cache"
	"radyo/internal/playback"

	"github.com/sirupsen/logrus"
)

// Prober fetches the head of a stream and identifies what it serves so
// backends can fail fast on formats they cannot decode
type Prober struct {
	client   *http.Client
	maxBytes int
	timeout  time.Duration
	cache    *cache.Memory[StreamInfo]
	logger   *logrus.Logger
}

// New creates a prober. A nil client uses http.DefaultClient and a nil
// cache disables memoisation.
func New(client *http.Client, maxBytes int, timeout time.Duration, c *cache.Memory[StreamInfo], logger *logrus.Logger) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = 16 * 1024
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Prober{
		client:   client,
		maxBytes: maxBytes,
		timeout:  timeout,
		cache:    c,
		logger:   logger,
	}
}

// Reset forgets every memoised result. Stations can change their
// stream URLs or formats when the catalog is reloaded.
func (p *Prober) Reset() {
	if p == nil || p.cache == nil {
		return
	}
	p.cache.Clear()
}

// Cached returns how many results are memoised
func (p *Prober) Cached() int {
	if p == nil || p.cache == nil {
		return 0
	}
	return p.cache.Size()
}

// Probe identifies the stream at url. Failures are returned as
// *playback.ErrorInfo so backends can report them as-is.
func (p *Prober) Probe(ctx context.Context, url string) (StreamInfo, error) {
	if p.cache != nil {
		if info, ok := p.cache.Get(url); ok {
			return info, nil
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StreamInfo{}, playback.NewError(playback.ConnectionFailed, "invalid stream URL: %v", err)
	}
	req.Header.Set("Icy-MetaData", "0")

	resp, err := p.client.Do(req)
	if err != nil {
		return StreamInfo{}, p.requestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StreamInfo{}, playback.NewError(playback.ConnectionFailed, "unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(p.maxBytes)))
	if err != nil && len(data) == 0 {
		return StreamInfo{}, p.requestError(ctx, err)
	}

	info := Identify(resp.Header.Get("Content-Type"), data)
	if info.Bitrate == 0 {
		if br, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("icy-br"))); err == nil {
			info.Bitrate = br
		}
	}

	p.logger.WithFields(logrus.Fields{
		"url":            url,
		"format":         info.Format,
		"content_type":   info.ContentType,
		"bitrate":        info.Bitrate,
		"bytes":          len(data),
		"processingTime": time.Since(startTime),
	}).Debug("Probed stream")

	if p.cache != nil {
		p.cache.Set(url, info)
	}

	return info, nil
}

func (p *Prober) requestError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return playback.NewError(playback.Timeout, "stream did not respond in time: %v", err)
	}
	return playback.AsErrorInfo(fmt.Errorf("http request: %w", err))
}

// Supports checks info against the formats a backend can decode. An
// unidentified stream is allowed through so the backend gets the final
// word.
func Supports(info StreamInfo, formats []Format) error {
	if info.Format == FormatUnknown {
		return nil
	}
	for _, f := range formats {
		if f == info.Format {
			return nil
		}
	}

	if info.Format.IsPlaylist() {
		return playback.NewError(playback.UnsupportedFormat, "stream URL points to a %s playlist, not audio", info.Format)
	}
	return playback.NewError(playback.UnsupportedFormat, "unsupported stream format: %s", info.Format)
}
