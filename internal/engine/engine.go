package engine

import (
	"context"

	"github.com/lapaas/transcribe/internal/config"
)

// Word is a single recognized token as reported by the engine. Times are
// fractional seconds from the start of the media. Probability is nil when
// the engine did not score the word.
type Word struct {
	Text        string
	Start       float64
	End         float64
	Probability *float64
}

// Segment is a contiguous span of recognized speech. AvgLogProb is nil when
// the engine did not report one. Words is empty when word timestamps were
// unavailable for the span.
type Segment struct {
	Start      float64
	End        float64
	Text       string
	AvgLogProb *float64
	Words      []Word
}

// Info summarizes a recognition pass. All fields are optional on the engine
// side; callers substitute defaults.
type Info struct {
	Language            string
	LanguageProbability *float64
	Duration            *float64
}

// Result bundles one full recognition pass. Segments are in emission order.
type Result struct {
	Segments []Segment
	Info     Info
}

// Options carries the caller-controlled knobs for a recognition pass.
// Decoding parameters (beam width, word timestamps, VAD filtering) are fixed
// by the engine implementation.
type Options struct {
	// Language is a hint passed through to the engine. Empty means
	// auto-detect.
	Language string
	// Model selects the model size or path, e.g. "tiny" or "large-v3".
	Model string
}

// Engine abstracts the external speech-recognition backend.
type Engine interface {
	Recognize(ctx context.Context, mediaPath string, opts Options) (*Result, error)
}

// New selects an engine implementation from config.
func New(cfg config.EngineConfig) (Engine, error) {
	if cfg.Mode == "mock" {
		return NewMockEngine(), nil
	}
	return NewExecEngine(cfg)
}
