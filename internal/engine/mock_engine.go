package engine

import (
	"context"
	"strings"

	"github.com/lapaas/transcribe/internal/media"
)

type mockEngine struct{}

// NewMockEngine returns a deterministic engine for tests and dry runs. When
// the input is a readable WAV file its probed duration drives the synthetic
// segment timing; otherwise a fixed two-second span is used.
func NewMockEngine() Engine {
	return &mockEngine{}
}

func (m *mockEngine) Recognize(_ context.Context, mediaPath string, opts Options) (*Result, error) {
	duration := 2.0
	if info, err := media.ProbeWav(mediaPath); err == nil && info.Duration > 0 {
		duration = info.Duration.Seconds()
	}

	text := "mock transcript for " + mediaPath
	tokens := strings.Fields(text)
	step := duration / float64(len(tokens))

	seg := Segment{
		Start: 0,
		End:   duration,
		Text:  " " + text,
	}
	for i, tok := range tokens {
		prob := 0.95
		seg.Words = append(seg.Words, Word{
			Text:        " " + tok,
			Start:       float64(i) * step,
			End:         float64(i+1) * step,
			Probability: &prob,
		})
	}

	langProb := 0.98
	return &Result{
		Segments: []Segment{seg},
		Info: Info{
			Language:            opts.Language,
			LanguageProbability: &langProb,
			Duration:            &duration,
		},
	}, nil
}
