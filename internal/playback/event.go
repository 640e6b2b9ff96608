package playback

import "radyo/pkg/models"

type eventKind int

const (
	cmdPlay eventKind = iota
	cmdPause
	cmdResume
	cmdStop
	cmdForeground
	cmdClose
	cbReady
	cbFailed
	cbEnded
)

func (k eventKind) String() string {
	switch k {
	case cmdPlay:
		return "play"
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdStop:
		return "stop"
	case cmdForeground:
		return "foreground"
	case cmdClose:
		return "close"
	case cbReady:
		return "ready"
	case cbFailed:
		return "failed"
	case cbEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// event is one queued command or backend callback
type event struct {
	kind    eventKind
	station models.Station
	epoch   uint64
	info    ErrorInfo
	flag    bool
	done    chan struct{} // closed once applied
}
