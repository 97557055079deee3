// Package logging provides structured logging built on log/slog, with a
// JSON file sink and a human-readable console sink sharing one dynamic
// level.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shirotsuki/phrase-renderer/internal/conf"
)

var (
	structuredLogger *slog.Logger
	humanLogger      *slog.Logger
	loggerMu         sync.RWMutex

	currentStructuredCloser io.Closer
	currentHumanCloser      io.Closer

	currentLevel = new(slog.LevelVar)
	initOnce     sync.Once
	initialized  bool
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// defaultReplaceAttr normalizes timestamps, custom level names, and
// truncates floats to 2 decimal places so render event logs stay compact.
func defaultReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			label, exists := levelNames[level]
			if !exists {
				label = level.String()
			}
			a.Value = slog.StringValue(label)
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// Init sets up the global loggers writing to logs/app.log (JSON) and
// stdout (text). Safe to call multiple times; only the first call takes
// effect.
func Init() {
	initOnce.Do(func() {
		currentLevel.Set(slog.LevelInfo)

		if err := os.MkdirAll("logs", 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logging: failed to create logs directory: %v\n", err)
		}

		structuredFile, err := os.OpenFile("logs/app.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: failed to open logs/app.log: %v\n", err)
			structuredFile = os.Stderr
		}
		if structuredFile != os.Stderr {
			currentStructuredCloser = structuredFile
		}

		structuredHandler := slog.NewJSONHandler(structuredFile, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: defaultReplaceAttr,
		})
		humanHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: defaultReplaceAttr,
		})

		loggerMu.Lock()
		structuredLogger = slog.New(structuredHandler)
		humanLogger = slog.New(humanHandler)
		loggerMu.Unlock()

		slog.SetDefault(structuredLogger)
		initialized = true
	})
}

// IsInitialized reports whether Init has run.
func IsInitialized() bool { return initialized }

// SetLevel changes the level shared by all loggers created through this
// package.
func SetLevel(level slog.Level) { currentLevel.Set(level) }

// SetOutput redirects both sinks, closing any previously owned writers.
func SetOutput(structuredOutput, humanOutput io.Writer) error {
	if structuredOutput == nil || humanOutput == nil {
		return errors.New("logging: output writers must not be nil")
	}

	var closeErrs []error
	if currentStructuredCloser != nil {
		if err := currentStructuredCloser.Close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("closing previous structured output: %w", err))
		}
		currentStructuredCloser = nil
	}
	if currentHumanCloser != nil {
		if err := currentHumanCloser.Close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("closing previous human output: %w", err))
		}
		currentHumanCloser = nil
	}

	structuredHandler := slog.NewJSONHandler(structuredOutput, &slog.HandlerOptions{
		Level:       currentLevel,
		ReplaceAttr: defaultReplaceAttr,
	})
	humanHandler := slog.NewTextHandler(humanOutput, &slog.HandlerOptions{
		Level:       currentLevel,
		ReplaceAttr: defaultReplaceAttr,
	})

	loggerMu.Lock()
	structuredLogger = slog.New(structuredHandler)
	humanLogger = slog.New(humanHandler)
	loggerMu.Unlock()

	if c, ok := structuredOutput.(io.Closer); ok {
		currentStructuredCloser = c
	}
	if c, ok := humanOutput.(io.Closer); ok {
		currentHumanCloser = c
	}

	slog.SetDefault(structuredLogger)

	if len(closeErrs) > 0 {
		return errors.Join(closeErrs...)
	}
	return nil
}

// Structured returns the JSON logger, or nil if Init has not run.
func Structured() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the text console logger, or nil if Init has not run.
func HumanReadable() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return humanLogger
}

// ForService returns a logger scoped with a "service" attribute, used by
// the renderer facade and the DAG runner so log lines carry their origin.
func ForService(name string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()
	if logger == nil {
		return slog.Default().With("service", name)
	}
	return logger.With("service", name)
}

func Debug(msg string, args ...any) { slog.Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }

// NewFileLogger creates a rotating JSON file logger for long-running host
// applications that want a dedicated render-trace log separate from the
// main application log.
func NewFileLogger(filePath, serviceName string, levelVar *slog.LevelVar) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %s: %w", logDir, err)
		}
	}

	rotation := conf.Setting().Log.Rotation
	maxSizeMB := 100
	maxBackups := 3
	maxAge := 28

	if conf.Setting().Log.MaxSizeBytes > 0 {
		maxSizeMB = int(conf.Setting().Log.MaxSizeBytes / (1024 * 1024))
	}
	switch rotation {
	case conf.RotationDaily:
		maxAge, maxBackups = 1, 30
	case conf.RotationWeekly:
		maxAge, maxBackups = 7, 4
	case conf.RotationSize:
		// use maxSizeMB as configured above
	}

	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}

	handler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: defaultReplaceAttr,
	})

	logger := slog.New(handler).With("service", serviceName)
	return logger, lj.Close, nil
}
