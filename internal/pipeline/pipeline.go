// Package pipeline orchestrates one transcription run: probe, recognize,
// adapt, emit, archive, announce.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lapaas/transcribe/internal/archive"
	"github.com/lapaas/transcribe/internal/bus"
	"github.com/lapaas/transcribe/internal/config"
	"github.com/lapaas/transcribe/internal/engine"
	"github.com/lapaas/transcribe/internal/media"
	"github.com/lapaas/transcribe/internal/protocol"
	"github.com/lapaas/transcribe/internal/transcript"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/lapaas/transcribe/internal/pipeline"

type Pipeline struct {
	cfg    config.Config
	logger *slog.Logger
	engine engine.Engine
	store  *archive.Store
	bus    *bus.Client
	stdout io.Writer

	tracer        trace.Tracer
	runsTotal     metric.Int64Counter
	segmentsTotal metric.Int64Counter
	wordsTotal    metric.Int64Counter
	runDuration   metric.Float64Histogram

	teleShutdown  func(context.Context) error
	metricsServer *http.Server
}

// RunResult reports where one run ended up.
type RunResult struct {
	RunID      string
	Transcript *transcript.Transcript
	OutputPath string
}

// New wires a pipeline. store and busClient may be nil when archiving or
// publishing is disabled.
func New(cfg config.Config, logger *slog.Logger, eng engine.Engine, store *archive.Store, busClient *bus.Client) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		engine: eng,
		store:  store,
		bus:    busClient,
		stdout: os.Stdout,
	}
}

// Start initializes telemetry and, when configured, the metrics endpoint
// that stays up for the duration of long transcription runs. Start must be
// called before Run.
func (p *Pipeline) Start(ctx context.Context) error {
	shutdown, metricHandler, err := setupTelemetry(p.cfg, p.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	p.teleShutdown = shutdown

	p.tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)
	if p.runsTotal, err = meter.Int64Counter("transcribe.runs.total",
		metric.WithDescription("Completed transcription runs")); err != nil {
		return err
	}
	if p.segmentsTotal, err = meter.Int64Counter("transcribe.segments.total",
		metric.WithDescription("Recognized segments across runs")); err != nil {
		return err
	}
	if p.wordsTotal, err = meter.Int64Counter("transcribe.words.total",
		metric.WithDescription("Recognized words across runs")); err != nil {
		return err
	}
	if p.runDuration, err = meter.Float64Histogram("transcribe.run.duration.seconds",
		metric.WithDescription("Wall-clock duration of transcription runs")); err != nil {
		return err
	}

	if metricHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricHandler)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		p.metricsServer = &http.Server{
			Addr:              p.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := p.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				p.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		p.logger.Info("metrics endpoint up", slog.String("addr", p.cfg.Telemetry.PrometheusBind))
	}

	return nil
}

// Close flushes telemetry and stops the metrics endpoint.
func (p *Pipeline) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if p.metricsServer != nil {
		if err := p.metricsServer.Shutdown(shutdownCtx); err != nil {
			p.logger.Error("metrics server shutdown error", slog.String("error", err.Error()))
		}
	}
	if p.teleShutdown != nil {
		if err := p.teleShutdown(shutdownCtx); err != nil {
			p.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

// Run performs one transcription: engine call, transcript adaptation,
// emission to stdout or file, archive append and optional bus announce.
// The transcript is all-or-nothing; any engine failure aborts the run
// before anything is written.
func (p *Pipeline) Run(ctx context.Context, inputPath string) (*RunResult, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("input file not found: %w", err)
	}

	runID := uuid.NewString()
	started := time.Now()

	if info, err := media.ProbeWav(inputPath); err == nil {
		p.logger.Info("input probed",
			slog.String("input", inputPath),
			slog.Int("sample_rate", info.SampleRate),
			slog.Int("channels", info.Channels),
			slog.Duration("duration", info.Duration))
	} else {
		p.logger.Debug("input probe skipped", slog.String("reason", err.Error()))
	}

	var span trace.Span
	ctx, span = p.tracer.Start(ctx, "transcribe.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("input.path", inputPath),
		attribute.String("engine.model", p.cfg.Engine.Model),
	))
	defer span.End()

	engineCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Engine.TimeoutS)*time.Second)
	defer cancel()

	p.logger.Info("transcribing",
		slog.String("input", inputPath),
		slog.String("model", p.cfg.Engine.Model))

	res, err := p.engine.Recognize(engineCtx, inputPath, engine.Options{
		Language: p.cfg.Engine.Language,
		Model:    p.cfg.Engine.Model,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	for _, seg := range res.Segments {
		p.logger.Info("segment",
			slog.Float64("start_s", seg.Start),
			slog.Float64("end_s", seg.End),
			slog.String("text", seg.Text))
	}

	tr := transcript.Build(res, p.cfg.Engine.Language)

	outputPath := p.cfg.Output.Path
	if outputPath != "" {
		if err := tr.WriteFile(outputPath); err != nil {
			return nil, err
		}
		p.logger.Info("transcript written", slog.String("output", outputPath))
	} else {
		if err := tr.Encode(p.stdout); err != nil {
			return nil, err
		}
	}

	p.record(ctx, tr, started)

	if p.store != nil {
		payload, err := transcriptPayload(tr)
		if err != nil {
			p.logger.Warn("failed to serialize transcript for archive", slog.String("error", err.Error()))
		} else if err := p.store.AppendRun(ctx, archive.Run{
			RunID:           runID,
			InputPath:       inputPath,
			OutputPath:      outputPath,
			Model:           p.cfg.Engine.Model,
			Language:        tr.Language,
			DurationSeconds: tr.Duration,
			SegmentCount:    len(tr.Segments),
			WordCount:       tr.WordCount,
			Payload:         payload,
		}); err != nil {
			p.logger.Warn("failed to archive run", slog.String("error", err.Error()))
		}
	}

	if p.bus != nil {
		msg := protocol.TranscriptCompleted{
			RunID:           runID,
			InputPath:       inputPath,
			OutputPath:      outputPath,
			Model:           p.cfg.Engine.Model,
			Language:        tr.Language,
			DurationSeconds: tr.Duration,
			SegmentCount:    len(tr.Segments),
			WordCount:       tr.WordCount,
			CompletedAt:     time.Now().UTC(),
		}
		if err := p.bus.PublishJSON(p.cfg.Bus.Subject, msg); err != nil {
			return nil, fmt.Errorf("announce transcript: %w", err)
		}
		p.logger.Info("transcript announced", slog.String("subject", p.cfg.Bus.Subject))
	}

	p.logger.Info("done",
		slog.Int("segments", len(tr.Segments)),
		slog.Int("words", tr.WordCount))

	return &RunResult{RunID: runID, Transcript: tr, OutputPath: outputPath}, nil
}

func (p *Pipeline) record(ctx context.Context, tr *transcript.Transcript, started time.Time) {
	attrs := metric.WithAttributes(attribute.String("language", tr.Language))
	p.runsTotal.Add(ctx, 1, attrs)
	p.segmentsTotal.Add(ctx, int64(len(tr.Segments)), attrs)
	p.wordsTotal.Add(ctx, int64(tr.WordCount), attrs)
	p.runDuration.Record(ctx, time.Since(started).Seconds(), attrs)
}

func transcriptPayload(tr *transcript.Transcript) ([]byte, error) {
	var buf bytes.Buffer
	if err := tr.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
