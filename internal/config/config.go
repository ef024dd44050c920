package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	TracesEnabled  bool   `yaml:"traces_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type EngineConfig struct {
	Mode        string `yaml:"mode"` // exec, mock
	Command     string `yaml:"command"`
	Model       string `yaml:"model"`
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`
	Language    string `yaml:"language"`
	BeamSize    int    `yaml:"beam_size"`
	TimeoutS    int    `yaml:"timeout_s"`
}

type OutputConfig struct {
	Path string `yaml:"path"`
}

type ArchiveConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Subject        string   `yaml:"subject"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	ToolName  string          `yaml:"tool_name"`
	Engine    EngineConfig    `yaml:"engine"`
	Output    OutputConfig    `yaml:"output"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Bus       BusConfig       `yaml:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

func Default() Config {
	return Config{
		ToolName: "transcribe",
		Engine: EngineConfig{
			Mode:        "exec",
			Model:       "tiny",
			Device:      "cpu",
			ComputeType: "int8",
			BeamSize:    5,
			TimeoutS:    3600,
		},
		Archive: ArchiveConfig{
			Path:          "./data/transcribe-runs.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			Subject:        "transcript.completed",
			ConnectTimeout: 2000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			TracesEnabled:  false,
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: "",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ToolName, "TRANSCRIBE_TOOL_NAME")
	overrideString(&cfg.Engine.Mode, "TRANSCRIBE_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "TRANSCRIBE_ENGINE_COMMAND")
	overrideString(&cfg.Engine.Model, "TRANSCRIBE_ENGINE_MODEL")
	overrideString(&cfg.Engine.Device, "TRANSCRIBE_ENGINE_DEVICE")
	overrideString(&cfg.Engine.ComputeType, "TRANSCRIBE_ENGINE_COMPUTE_TYPE")
	overrideString(&cfg.Engine.Language, "TRANSCRIBE_ENGINE_LANGUAGE")
	overrideInt(&cfg.Engine.BeamSize, "TRANSCRIBE_ENGINE_BEAM_SIZE")
	overrideInt(&cfg.Engine.TimeoutS, "TRANSCRIBE_ENGINE_TIMEOUT_S")
	overrideString(&cfg.Output.Path, "TRANSCRIBE_OUTPUT_PATH")
	overrideString(&cfg.Archive.Path, "TRANSCRIBE_ARCHIVE_PATH")
	overrideString(&cfg.Archive.RetentionMode, "TRANSCRIBE_ARCHIVE_RETENTION_MODE")
	overrideInt(&cfg.Archive.RetentionDays, "TRANSCRIBE_ARCHIVE_RETENTION_DAYS")
	overrideInt(&cfg.Archive.MaxRuns, "TRANSCRIBE_ARCHIVE_MAX_RUNS")
	overrideBool(&cfg.Archive.VacuumOnStart, "TRANSCRIBE_ARCHIVE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "TRANSCRIBE_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "TRANSCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Subject, "TRANSCRIBE_BUS_SUBJECT")
	overrideString(&cfg.Bus.Username, "TRANSCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TRANSCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TRANSCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TRANSCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TRANSCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "TRANSCRIBE_TELEMETRY_LOG_LEVEL")
	overrideBool(&cfg.Telemetry.TracesEnabled, "TRANSCRIBE_TELEMETRY_TRACES_ENABLED")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TRANSCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TRANSCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "TRANSCRIBE_TELEMETRY_PROMETHEUS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ToolName == "" {
		return errors.New("tool_name must not be empty")
	}
	switch cfg.Engine.Mode {
	case "exec", "mock":
	default:
		return errors.New("engine.mode must be one of exec|mock")
	}
	if cfg.Engine.Model == "" {
		return errors.New("engine.model must not be empty")
	}
	if cfg.Engine.BeamSize <= 0 {
		return errors.New("engine.beam_size must be positive")
	}
	if cfg.Engine.TimeoutS <= 0 {
		return errors.New("engine.timeout_s must be positive")
	}
	switch cfg.Archive.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("archive.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Archive.RetentionMode != "ephemeral" && cfg.Archive.Path == "" {
		return errors.New("archive.path must not be empty unless retention is ephemeral")
	}
	if cfg.Archive.RetentionDays < 0 {
		return errors.New("archive.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when bus is enabled")
		}
		if cfg.Bus.Subject == "" {
			return errors.New("bus.subject must not be empty when bus is enabled")
		}
	}
	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	return nil
}

// SlogLevel maps the configured log level onto a slog level.
func (t TelemetryConfig) SlogLevel() slog.Level {
	switch t.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
