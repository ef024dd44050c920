package engine

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/lapaas/transcribe/internal/config"
	"github.com/mattn/go-shellwords"
)

// Stock faster-whisper helper, used when no engine command is configured.
//
//go:embed assets/faster_whisper.py
var helperScript []byte

type execEngine struct {
	cmd []string
	cfg config.EngineConfig
	mu  sync.Mutex
}

// Raw wire format produced by the helper on stdout. Optional fields are
// pointers so absence survives decoding.
type rawWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
}

type rawSegment struct {
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Text       string    `json:"text"`
	AvgLogProb *float64  `json:"avg_logprob"`
	Words      []rawWord `json:"words"`
}

type rawResult struct {
	Language            string       `json:"language"`
	LanguageProbability *float64     `json:"language_probability"`
	Duration            *float64     `json:"duration"`
	Segments            []rawSegment `json:"segments"`
}

// NewExecEngine builds an engine that shells out to a faster-whisper helper
// command. An empty command selects the embedded stock helper run with
// python3 (or $TRANSCRIBE_PYTHON).
func NewExecEngine(cfg config.EngineConfig) (Engine, error) {
	var cmd []string
	if cfg.Command != "" {
		parser := shellwords.NewParser()
		args, err := parser.Parse(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("parse engine command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("engine command is empty")
		}
		cmd = args
	}
	return &execEngine{cmd: cmd, cfg: cfg}, nil
}

func (e *execEngine) Recognize(ctx context.Context, mediaPath string, opts Options) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{}, e.cmd...)
	var cleanup func()
	if len(args) == 0 {
		helperPath, remove, err := materializeHelper()
		if err != nil {
			return nil, err
		}
		cleanup = remove
		python := os.Getenv("TRANSCRIBE_PYTHON")
		if python == "" {
			python = "python3"
		}
		args = []string{python, helperPath}
	}
	if cleanup != nil {
		defer cleanup()
	}

	base := args[0]
	cmdArgs := args[1:]
	cmdArgs = append(cmdArgs, "--audio", mediaPath)
	model := opts.Model
	if model == "" {
		model = e.cfg.Model
	}
	cmdArgs = append(cmdArgs, "--model", model)
	language := opts.Language
	if language == "" {
		language = e.cfg.Language
	}
	if language != "" {
		cmdArgs = append(cmdArgs, "--language", language)
	}
	if e.cfg.Device != "" {
		cmdArgs = append(cmdArgs, "--device", e.cfg.Device)
	}
	if e.cfg.ComputeType != "" {
		cmdArgs = append(cmdArgs, "--compute-type", e.cfg.ComputeType)
	}
	if e.cfg.BeamSize > 0 {
		cmdArgs = append(cmdArgs, "--beam-size", strconv.Itoa(e.cfg.BeamSize))
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("engine command failed: %w: %s", err, stderr.String())
	}

	result, err := decodeResult(&stdout)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decodeResult(r io.Reader) (*Result, error) {
	var raw rawResult
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}

	res := &Result{
		Info: Info{
			Language:            raw.Language,
			LanguageProbability: raw.LanguageProbability,
			Duration:            raw.Duration,
		},
	}
	for _, seg := range raw.Segments {
		segment := Segment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			AvgLogProb: seg.AvgLogProb,
		}
		for _, w := range seg.Words {
			segment.Words = append(segment.Words, Word{
				Text:        w.Word,
				Start:       w.Start,
				End:         w.End,
				Probability: w.Probability,
			})
		}
		res.Segments = append(res.Segments, segment)
	}
	return res, nil
}

func materializeHelper() (string, func(), error) {
	file, err := os.CreateTemp("", "transcribe_helper_*.py")
	if err != nil {
		return "", nil, fmt.Errorf("write helper script: %w", err)
	}
	if _, err := file.Write(helperScript); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", nil, fmt.Errorf("write helper script: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", nil, fmt.Errorf("write helper script: %w", err)
	}
	name := file.Name()
	return name, func() { os.Remove(name) }, nil
}
