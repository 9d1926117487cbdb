// Package telemetry wires up structured logging and tracing/metrics
// instrumentation for the engine, grounded on the zerolog and
// OpenTelemetry conventions used across the retrieved example corpus
// (in particular intelligencedev-manifold's internal/observability and
// internal/telemetry packages) rather than the teacher's bare fmt/log
// calls, since the teacher itself carries no logging library.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level      string // trace, debug, info, warn, error
	PrettyText bool   // human-readable console output instead of JSON
	Output     io.Writer
}

// InitLogger installs cfg as the package-level zerolog logger. Called
// once at process startup, mirroring the teacher-adjacent
// observability.InitLogger convention.
func InitLogger(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.PrettyText {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	return nil
}
