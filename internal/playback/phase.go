package playback

import "fmt"

// Phase is the discrete state of the playback state machine
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlaying
	PhasePaused
	PhaseStopped // terminal, after Close
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:    "idle",
	PhaseLoading: "loading",
	PhasePlaying: "playing",
	PhasePaused:  "paused",
	PhaseStopped: "stopped",
	PhaseFailed:  "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase as its lowercase name in JSON payloads
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
