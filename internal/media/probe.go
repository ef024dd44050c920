// Package media inspects input files before they are handed to the engine.
package media

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Info describes a probed WAV input.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ProbeWav reads the WAV header at path and reports format and duration.
// Non-WAV inputs (video containers, mp3, ...) fail the probe; callers treat
// that as "unknown" and let the engine handle the container.
func ProbeWav(path string) (*Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file: %s", path)
	}

	duration, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("read wav duration: %w", err)
	}

	return &Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   duration,
	}, nil
}
