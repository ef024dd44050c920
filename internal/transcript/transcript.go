// Package transcript shapes raw recognition output into the canonical
// editor transcript format: stable ids, microsecond timestamps, normalized
// word forms.
package transcript

import (
	"fmt"
	"math"
	"strings"

	"github.com/lapaas/transcribe/internal/engine"
)

const (
	// DefaultConfidence substitutes for probabilities the engine did not report.
	DefaultConfidence = 0.9
	// DefaultLanguage is the final fallback when neither the engine nor the
	// caller supplied a language.
	DefaultLanguage = "en"
	// DefaultLanguageProbability substitutes when the engine did not score
	// its language detection.
	DefaultLanguageProbability = 1.0
)

// Word is a recognized token with editor-facing identifiers and units.
type Word struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Normalized string  `json:"normalized"`
	StartUs    int64   `json:"startUs"`
	EndUs      int64   `json:"endUs"`
	Confidence float64 `json:"confidence"`
}

// Segment is a contiguous span of speech owning its words exclusively.
type Segment struct {
	ID         string  `json:"id"`
	StartUs    int64   `json:"startUs"`
	EndUs      int64   `json:"endUs"`
	Text       string  `json:"text"`
	Words      []Word  `json:"words"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the top-level record consumed by the editor. Words is the
// flattened concatenation of every segment's words in segment order.
type Transcript struct {
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"languageProbability"`
	Duration            float64   `json:"duration"`
	Segments            []Segment `json:"segments"`
	Words               []Word    `json:"words"`
	WordCount           int       `json:"wordCount"`
}

// Build folds one recognition result into a complete Transcript. Segment ids
// are "seg-<index>" in emission order; word ids are
// "word-<segmentIndex>-<runningIndex>" where the running index is shared
// across the whole transcript. languageHint is the caller-supplied language,
// used only when the engine detected none.
func Build(res *engine.Result, languageHint string) *Transcript {
	t := &Transcript{
		Segments: []Segment{},
		Words:    []Word{},
	}

	wordIndex := 0
	for idx, seg := range res.Segments {
		words := []Word{}
		for _, w := range seg.Words {
			word := Word{
				ID:         fmt.Sprintf("word-%d-%d", idx, wordIndex),
				Text:       strings.TrimSpace(w.Text),
				Normalized: Normalize(w.Text),
				StartUs:    toMicros(w.Start),
				EndUs:      toMicros(w.End),
				Confidence: confidence(w.Probability),
			}
			words = append(words, word)
			t.Words = append(t.Words, word)
			wordIndex++
		}
		t.Segments = append(t.Segments, Segment{
			ID:         fmt.Sprintf("seg-%d", idx),
			StartUs:    toMicros(seg.Start),
			EndUs:      toMicros(seg.End),
			Text:       strings.TrimSpace(seg.Text),
			Words:      words,
			Confidence: confidence(seg.AvgLogProb),
		})
	}

	t.Language = resolveLanguage(res.Info.Language, languageHint)
	if res.Info.LanguageProbability != nil {
		t.LanguageProbability = round3(*res.Info.LanguageProbability)
	} else {
		t.LanguageProbability = DefaultLanguageProbability
	}
	if res.Info.Duration != nil {
		t.Duration = *res.Info.Duration
	}
	t.WordCount = len(t.Words)
	return t
}

// Normalize lowers a word and strips apostrophes, commas and periods, the
// form the editor matches and searches on.
func Normalize(text string) string {
	return normalizeReplacer.Replace(strings.ToLower(strings.TrimSpace(text)))
}

var normalizeReplacer = strings.NewReplacer("'", "", ",", "", ".", "")

// toMicros converts fractional seconds to integer microseconds, truncating
// toward zero.
func toMicros(seconds float64) int64 {
	return int64(seconds * 1e6)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func confidence(p *float64) float64 {
	if p == nil {
		return DefaultConfidence
	}
	return round3(*p)
}

func resolveLanguage(detected, hint string) string {
	if detected != "" {
		return detected
	}
	if hint != "" {
		return hint
	}
	return DefaultLanguage
}
