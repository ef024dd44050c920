package protocol

import "time"

// TranscriptCompleted announces a finished transcription run on the bus so
// editor instances and indexers can pick the output up.
type TranscriptCompleted struct {
	RunID           string    `json:"run_id"`
	InputPath       string    `json:"input_path"`
	OutputPath      string    `json:"output_path,omitempty"`
	Model           string    `json:"model"`
	Language        string    `json:"language"`
	DurationSeconds float64   `json:"duration_seconds"`
	SegmentCount    int       `json:"segment_count"`
	WordCount       int       `json:"word_count"`
	CompletedAt     time.Time `json:"completed_at"`
}

const SubjectTranscriptCompleted = "transcript.completed"
