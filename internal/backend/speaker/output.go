package speaker

import (
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Output is the audio device the backend mixes into
type Output interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

// systemOutput is the process-wide beep speaker
type systemOutput struct{}

func (systemOutput) Init(sampleRate beep.SampleRate, bufferSize int) error {
	return speaker.Init(sampleRate, bufferSize)
}

func (systemOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (systemOutput) Lock()                { speaker.Lock() }
func (systemOutput) Unlock()              { speaker.Unlock() }
