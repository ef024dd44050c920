package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/lapaas/transcribe/internal/engine"
)

func f(v float64) *float64 { return &v }

func TestBuildEndToEnd(t *testing.T) {
	res := &engine.Result{
		Segments: []engine.Segment{
			{
				Start:      0.0,
				End:        2.0,
				Text:       " Hello world.",
				AvgLogProb: f(-0.25),
				Words: []engine.Word{
					{Text: " Hello", Start: 0.0, End: 0.5, Probability: f(0.95)},
					{Text: " world.", Start: 0.6, End: 2.0, Probability: f(0.88)},
				},
			},
		},
		Info: engine.Info{Language: "en", LanguageProbability: f(0.99), Duration: f(2.0)},
	}

	tr := Build(res, "")

	if len(tr.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(tr.Segments))
	}
	seg := tr.Segments[0]
	if seg.ID != "seg-0" {
		t.Fatalf("expected seg-0, got %s", seg.ID)
	}
	if seg.StartUs != 0 || seg.EndUs != 2000000 {
		t.Fatalf("unexpected segment times: %d-%d", seg.StartUs, seg.EndUs)
	}
	if seg.Text != "Hello world." {
		t.Fatalf("unexpected segment text: %q", seg.Text)
	}
	if seg.Confidence != -0.25 {
		t.Fatalf("unexpected segment confidence: %v", seg.Confidence)
	}
	if len(seg.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(seg.Words))
	}
	if seg.Words[0].ID != "word-0-0" || seg.Words[1].ID != "word-0-1" {
		t.Fatalf("unexpected word ids: %s, %s", seg.Words[0].ID, seg.Words[1].ID)
	}
	if seg.Words[0].Normalized != "hello" || seg.Words[1].Normalized != "world" {
		t.Fatalf("unexpected normalized forms: %q, %q", seg.Words[0].Normalized, seg.Words[1].Normalized)
	}
	if seg.Words[0].Text != "Hello" || seg.Words[1].Text != "world." {
		t.Fatalf("unexpected word text: %q, %q", seg.Words[0].Text, seg.Words[1].Text)
	}
	if seg.Words[0].Confidence != 0.95 || seg.Words[1].Confidence != 0.88 {
		t.Fatalf("unexpected word confidences: %v, %v", seg.Words[0].Confidence, seg.Words[1].Confidence)
	}
	if tr.WordCount != 2 {
		t.Fatalf("expected wordCount 2, got %d", tr.WordCount)
	}
	if tr.Language != "en" || tr.LanguageProbability != 0.99 || tr.Duration != 2.0 {
		t.Fatalf("unexpected summary: %s %v %v", tr.Language, tr.LanguageProbability, tr.Duration)
	}
}

func TestWordIDsRunAcrossSegments(t *testing.T) {
	res := &engine.Result{
		Segments: []engine.Segment{
			{Start: 0, End: 1, Text: "a b", Words: []engine.Word{
				{Text: "a", Start: 0, End: 0.4},
				{Text: "b", Start: 0.5, End: 1},
			}},
			{Start: 1, End: 2, Text: "silence"},
			{Start: 2, End: 3, Text: "c", Words: []engine.Word{
				{Text: "c", Start: 2, End: 3},
			}},
		},
	}

	tr := Build(res, "")

	if len(tr.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(tr.Segments))
	}
	for i, seg := range tr.Segments {
		if want := fmt.Sprintf("seg-%d", i); seg.ID != want {
			t.Fatalf("expected %s, got %s", want, seg.ID)
		}
	}

	// The running counter is shared across the transcript: the wordless
	// middle segment must not reset or skip it.
	wantIDs := []string{"word-0-0", "word-0-1", "word-2-2"}
	if len(tr.Words) != len(wantIDs) {
		t.Fatalf("expected %d words, got %d", len(wantIDs), len(tr.Words))
	}
	seen := map[string]bool{}
	for i, w := range tr.Words {
		if w.ID != wantIDs[i] {
			t.Fatalf("word %d: expected id %s, got %s", i, wantIDs[i], w.ID)
		}
		if seen[w.ID] {
			t.Fatalf("duplicate word id %s", w.ID)
		}
		seen[w.ID] = true
	}

	// Numeric suffix strictly increases by 1 across the flattened sequence.
	for i, w := range tr.Words {
		suffix := w.ID[strings.LastIndex(w.ID, "-")+1:]
		n, err := strconv.Atoi(suffix)
		if err != nil {
			t.Fatalf("bad id suffix %q: %v", suffix, err)
		}
		if n != i {
			t.Fatalf("expected suffix %d, got %d", i, n)
		}
	}
}

func TestFlattenInvariant(t *testing.T) {
	res := &engine.Result{
		Segments: []engine.Segment{
			{Start: 0, End: 1, Text: "x", Words: []engine.Word{{Text: "x", Start: 0, End: 1}}},
			{Start: 1, End: 2, Text: "y z", Words: []engine.Word{
				{Text: "y", Start: 1, End: 1.5},
				{Text: "z", Start: 1.5, End: 2},
			}},
		},
	}

	tr := Build(res, "")

	var concat []Word
	for _, seg := range tr.Segments {
		concat = append(concat, seg.Words...)
	}
	if len(concat) != len(tr.Words) {
		t.Fatalf("flatten mismatch: %d vs %d", len(concat), len(tr.Words))
	}
	for i := range concat {
		if concat[i] != tr.Words[i] {
			t.Fatalf("word %d differs between segments and flat list", i)
		}
	}
	if tr.WordCount != len(tr.Words) {
		t.Fatalf("wordCount %d != len(words) %d", tr.WordCount, len(tr.Words))
	}
}

func TestTimestampTruncation(t *testing.T) {
	cases := []struct {
		seconds float64
		want    int64
	}{
		{0, 0},
		{1.2345, 1234500},
		{1.6, 1600000},
		{1.23456789, 1234567}, // truncated, not rounded
		{2.0, 2000000},
	}
	for _, tc := range cases {
		if got := toMicros(tc.seconds); got != tc.want {
			t.Errorf("toMicros(%v) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}

func TestDefaultSubstitution(t *testing.T) {
	res := &engine.Result{
		Segments: []engine.Segment{
			{Start: 0, End: 1, Text: "hey", Words: []engine.Word{
				{Text: "hey", Start: 0, End: 1},
			}},
		},
	}

	tr := Build(res, "")

	if tr.Segments[0].Confidence != 0.9 {
		t.Fatalf("expected default segment confidence 0.9, got %v", tr.Segments[0].Confidence)
	}
	if tr.Words[0].Confidence != 0.9 {
		t.Fatalf("expected default word confidence 0.9, got %v", tr.Words[0].Confidence)
	}
	if tr.LanguageProbability != 1.0 {
		t.Fatalf("expected default language probability 1.0, got %v", tr.LanguageProbability)
	}
	if tr.Duration != 0 {
		t.Fatalf("expected default duration 0, got %v", tr.Duration)
	}
}

func TestConfidenceRounding(t *testing.T) {
	res := &engine.Result{
		Segments: []engine.Segment{
			{Start: 0, End: 1, Text: "w", AvgLogProb: f(-0.123456), Words: []engine.Word{
				{Text: "w", Start: 0, End: 1, Probability: f(0.88888)},
			}},
		},
		Info: engine.Info{Language: "en", LanguageProbability: f(0.99995)},
	}

	tr := Build(res, "")

	if tr.Segments[0].Confidence != -0.123 {
		t.Fatalf("expected -0.123, got %v", tr.Segments[0].Confidence)
	}
	if tr.Words[0].Confidence != 0.889 {
		t.Fatalf("expected 0.889, got %v", tr.Words[0].Confidence)
	}
	if tr.LanguageProbability != 1.0 {
		t.Fatalf("expected 1.0, got %v", tr.LanguageProbability)
	}
}

func TestLanguageResolution(t *testing.T) {
	cases := []struct {
		detected string
		hint     string
		want     string
	}{
		{"de", "hi", "de"},
		{"", "hi", "hi"},
		{"", "", "en"},
	}
	for _, tc := range cases {
		res := &engine.Result{Info: engine.Info{Language: tc.detected}}
		if got := Build(res, tc.hint).Language; got != tc.want {
			t.Errorf("detected=%q hint=%q: got %q, want %q", tc.detected, tc.hint, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{" Don't, ", "dont"},
		{"Hello", "hello"},
		{" world.", "world"},
		{"YES,", "yes"},
		{"'tis", "tis"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEncodeShape(t *testing.T) {
	res := &engine.Result{
		Segments: []engine.Segment{
			{Start: 0, End: 1, Text: " नमस्ते <world> & co ", Words: []engine.Word{
				{Text: " नमस्ते", Start: 0, End: 1, Probability: f(0.9)},
			}},
		},
		Info: engine.Info{Language: "hi", LanguageProbability: f(0.87), Duration: f(1.0)},
	}

	var buf bytes.Buffer
	if err := Build(res, "").Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := buf.String()

	for _, key := range []string{`"startUs"`, `"endUs"`, `"languageProbability"`, `"wordCount"`, `"normalized"`, `"segments"`, `"words"`} {
		if !strings.Contains(out, key) {
			t.Errorf("expected key %s in output", key)
		}
	}
	if !strings.Contains(out, "नमस्ते") {
		t.Error("expected non-ASCII text to be preserved literally")
	}
	if strings.Contains(out, `\u`) {
		t.Errorf("expected no escaped characters, got: %s", out)
	}
	if !strings.Contains(out, "<world> & co") {
		t.Error("expected HTML characters to be preserved literally")
	}
	if !strings.Contains(out, "\n  \"language\"") {
		t.Error("expected 2-space indentation")
	}

	var round map[string]any
	if err := json.Unmarshal(buf.Bytes(), &round); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}

func TestEncodeEmptyTranscript(t *testing.T) {
	tr := Build(&engine.Result{}, "")

	var buf bytes.Buffer
	if err := tr.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := buf.String()

	// Empty sequences serialize as arrays, never null.
	if !strings.Contains(out, `"segments": []`) {
		t.Errorf("expected empty segments array, got: %s", out)
	}
	if !strings.Contains(out, `"words": []`) {
		t.Errorf("expected empty words array, got: %s", out)
	}
	if !strings.Contains(out, `"language": "en"`) {
		t.Errorf("expected fallback language, got: %s", out)
	}
	if !strings.Contains(out, `"wordCount": 0`) {
		t.Errorf("expected zero word count, got: %s", out)
	}
}

func TestSegmentWordsNeverNull(t *testing.T) {
	res := &engine.Result{
		Segments: []engine.Segment{{Start: 0, End: 1, Text: "no words here"}},
	}

	var buf bytes.Buffer
	if err := Build(res, "").Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(buf.String(), `"words": null`) {
		t.Fatalf("segment words must be an empty array, got: %s", buf.String())
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "dir", "transcript.json")

	tr := Build(&engine.Result{}, "")
	if err := tr.WriteFile(path); err != nil {
		t.Fatalf("write file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var round Transcript
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if round.Language != "en" {
		t.Fatalf("unexpected language after round trip: %q", round.Language)
	}
}
