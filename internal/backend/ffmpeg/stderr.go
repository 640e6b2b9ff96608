package ffmpeg

import (
	"bufio"
	"io"
	"strings"

	"radyo/internal/playback"
)

// readyMarker is printed once ffmpeg has opened the input and set up
// the audio output
const readyMarker = "Output #0"

var stderrPatterns = []struct {
	needle string
	kind   playback.ErrorKind
}{
	{"invalid data found", playback.UnsupportedFormat},
	{"could not find codec", playback.UnsupportedFormat},
	{"unknown input format", playback.UnsupportedFormat},
	{"decoder not found", playback.UnsupportedFormat},
	{"does not contain any stream", playback.UnsupportedFormat},
	{"timed out", playback.Timeout},
	{"timeout", playback.Timeout},
	{"connection refused", playback.ConnectionFailed},
	{"server returned", playback.ConnectionFailed},
	{"failed to resolve", playback.ConnectionFailed},
	{"name or service not known", playback.ConnectionFailed},
	{"no route to host", playback.ConnectionFailed},
	{"network is unreachable", playback.ConnectionFailed},
	{"connection reset", playback.ConnectionFailed},
	{"end of file", playback.UnexpectedStreamEnd},
}

// Classify maps an ffmpeg diagnostic line to a failure kind
func Classify(line string) (playback.ErrorKind, bool) {
	lower := strings.ToLower(line)
	for _, p := range stderrPatterns {
		if strings.Contains(lower, p.needle) {
			return p.kind, true
		}
	}
	return 0, false
}

// stderrReport is what the stderr reader learned about a run
type stderrReport struct {
	kind    playback.ErrorKind
	message string
	matched bool
}

// watchStderr scans ffmpeg's diagnostics, calling onReady the first time
// the output is set up. It returns the last classified line once r is
// exhausted, reading r to the end even when a line is too long to scan.
func watchStderr(r io.Reader, onReady func()) stderrReport {
	var report stderrReport
	ready := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !ready && strings.HasPrefix(line, readyMarker) {
			ready = true
			onReady()
			continue
		}

		if kind, ok := Classify(line); ok {
			report = stderrReport{kind: kind, message: line, matched: true}
		}
	}

	// the scanner gives up on oversized lines; keep the pipe empty so
	// ffmpeg never blocks writing to it
	io.Copy(io.Discard, r)
	return report
}
