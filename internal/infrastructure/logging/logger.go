package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

// Logger wraps slog.Logger with sensor node defaults.
//
// It satisfies the small Logger interfaces of the pipeline, policy and
// mqtt packages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a Logger from cfg.
//
// It configures:
//   - Output destination (stdout, stderr or a rotating file)
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service, version, node)
//
// Parameters:
//   - cfg: Logging section of the node configuration
//   - version: Build version added to every record
//   - node: Node ID added to every record
//
// Returns:
//   - *Logger: Ready to use; call Close to release a log file
func New(cfg config.LoggingConfig, version, node string) *Logger {
	var (
		output io.Writer
		closer io.Closer
	)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "file":
		rotating := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		output, closer = rotating, rotating
	default:
		output = os.Stdout
	}

	l := newWithWriter(output, cfg, version, node)
	l.closer = closer
	return l
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version, node string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	attrs := []slog.Attr{
		slog.String("service", "sensornode"),
		slog.String("version", version),
	}
	if node != "" {
		attrs = append(attrs, slog.String("node", node))
	}

	return &Logger{Logger: slog.New(handler.WithAttrs(attrs))}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		closer: l.closer,
	}
}

// Sensor returns a logger whose lines carry sensor=name.
func (l *Logger) Sensor(name string) *Logger {
	return l.With("sensor", name)
}

// Close releases the log file, if any. Derived loggers share the file, so
// only the root logger should be closed.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
// It should only be used during early startup before config is available.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev", "")
}
