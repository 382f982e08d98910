// Package logger wraps zap construction for the client and the server.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger holds the process-wide zap logger.
type Logger struct {
	// Log is the configured logger. It is a no-op logger until Init succeeds.
	Log *zap.Logger
}

// FileOptions configures an optional rotating log file.
type FileOptions struct {
	// Path of the log file. Logging goes to stderr when empty.
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a Logger with a no-op zap logger.
func New() *Logger {
	return &Logger{Log: zap.NewNop()}
}

// Init configures a production JSON logger writing to stderr at the given level.
func (l *Logger) Init(level string) error {
	return l.InitWithFile(level, FileOptions{})
}

// InitWithFile configures the logger at level. When opts.Path is set, entries
// are written to a size-rotated file instead of stderr.
func (l *Logger) InitWithFile(level string, opts FileOptions) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	if opts.Path == "" {
		cfg := zap.NewProductionConfig()
		cfg.Level = lvl
		zl, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		l.Log = zl
		return nil
	}

	l.Log = zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotatingWriter(opts)),
		lvl,
	))
	return nil
}

func rotatingWriter(opts FileOptions) *lumberjack.Logger {
	size := opts.MaxSizeMB
	if size <= 0 {
		size = 10
	}
	return &lumberjack.Logger{
		Filename:   os.ExpandEnv(opts.Path),
		MaxSize:    size,
		MaxBackups: opts.MaxBackups,
		Compress:   false,
	}
}
