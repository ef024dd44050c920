package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lapaas/transcribe/internal/archive"
	"github.com/lapaas/transcribe/internal/bus"
	"github.com/lapaas/transcribe/internal/config"
	"github.com/lapaas/transcribe/internal/engine"
	"github.com/lapaas/transcribe/internal/pipeline"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		model       string
		language    string
		output      string
		publish     bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&model, "model", "", "Whisper model size or path (tiny, base, small, medium, large-v3)")
	flag.StringVar(&language, "language", "", "Language code hint (e.g. en, hi); auto-detect if not specified")
	flag.StringVar(&output, "output", "", "Output JSON path; prints to stdout if not specified")
	flag.BoolVar(&publish, "publish", false, "Announce the completed transcript on the bus")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input media file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	inputPath := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags win over file and environment.
	if model != "" {
		cfg.Engine.Model = model
	}
	if language != "" {
		cfg.Engine.Language = language
	}
	if output != "" {
		cfg.Output.Path = output
	}
	if publish {
		cfg.Bus.Enabled = true
	}

	// stdout carries the transcript; everything else goes to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Telemetry.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, inputPath); err != nil {
		logger.Error("transcription failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, inputPath string) error {
	eng, err := engine.New(cfg.Engine)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	store, err := archive.Open(ctx, cfg.Archive, logger)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	var busClient *bus.Client
	if cfg.Bus.Enabled {
		busClient, err = bus.Connect(ctx, cfg.Bus, logger)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer busClient.Close()
	}

	p := pipeline.New(cfg, logger, eng, store, busClient)
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close(context.Background())

	_, err = p.Run(ctx, inputPath)
	return err
}
