package speaker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
)

const (
	// chunkSize is how many samples the decoder hands over at a time
	chunkSize = 2048
	// bufferedChunks bounds decoded audio waiting for the mixer, about a
	// second at 44.1 kHz
	bufferedChunks = 24
)

var errStalled = errors.New("no audio data received")

// stallReader fails a Read that gets no data within timeout. Each Read
// fills its own buffer, so a Read abandoned on timeout never writes into
// the caller's slice; it returns once the body is closed.
type stallReader struct {
	ctx     context.Context
	r       io.ReadCloser
	timeout time.Duration
	stalled atomic.Bool
}

type readResult struct {
	n   int
	err error
}

func (sr *stallReader) Read(p []byte) (int, error) {
	if sr.stalled.Load() {
		return 0, errStalled
	}
	if err := sr.ctx.Err(); err != nil {
		return 0, err
	}

	buf := make([]byte, len(p))
	done := make(chan readResult, 1)
	go func() {
		n, err := sr.r.Read(buf)
		done <- readResult{n, err}
	}()

	timer := time.NewTimer(sr.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return copy(p, buf[:res.n]), res.err
	case <-timer.C:
		sr.stalled.Store(true)
		return 0, errStalled
	case <-sr.ctx.Done():
		return 0, sr.ctx.Err()
	}
}

func (sr *stallReader) Close() error {
	return sr.r.Close()
}

// Stalled reports whether a Read timed out
func (sr *stallReader) Stalled() bool {
	return sr.stalled.Load()
}

// feed is the mixer side of the decode buffer. It never blocks: when the
// decoder falls behind it plays silence, and it ends once the channel is
// closed and drained.
type feed struct {
	chunks  <-chan [][2]float64
	pending [][2]float64
	closed  bool
}

func (f *feed) Stream(samples [][2]float64) (int, bool) {
	if f.closed && len(f.pending) == 0 {
		return 0, false
	}

	n := 0
fill:
	for n < len(samples) {
		if len(f.pending) == 0 {
			if f.closed {
				return n, n > 0
			}
			select {
			case chunk, ok := <-f.chunks:
				if !ok {
					f.closed = true
					continue
				}
				f.pending = chunk
			default:
				break fill
			}
		}
		c := copy(samples[n:], f.pending)
		f.pending = f.pending[c:]
		n += c
	}

	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (f *feed) Err() error { return nil }

// pump decodes into chunks until the stream ends or ctx is cancelled.
// Closing chunks is left to the caller.
func pump(ctx context.Context, streamer beep.Streamer, chunks chan<- [][2]float64) {
	for {
		buf := make([][2]float64, chunkSize)
		n, ok := streamer.Stream(buf)
		if n > 0 {
			select {
			case chunks <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if !ok || ctx.Err() != nil {
			return
		}
	}
}
