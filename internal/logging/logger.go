// Package logging builds the process logger: console output, an in-memory
// tail served by the control API, and an optional rotated JSON file.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Development bool
	// Level is a zap level name; empty means info (debug in development).
	Level string
	// File enables a lumberjack-rotated JSON log at this path.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Buffer, when set, receives every entry as a console-formatted line.
	Buffer *LineBuffer
	// Console overrides stdout; tests use it.
	Console zapcore.WriteSyncer
}

// New builds a zap.Logger teeing console, buffer and file cores.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Development {
		level.SetLevel(zap.DebugLevel)
	}
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
	}

	console := opts.Console
	if console == nil {
		console = zapcore.Lock(os.Stdout)
	}

	var consoleEncoder zapcore.Encoder
	if opts.Development {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.TimeKey = "ts"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(enc)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, console, level)}

	if opts.Buffer != nil {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		enc.CallerKey = ""
		enc.StacktraceKey = ""
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(enc), opts.Buffer, level))
	}

	if opts.File != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), writer, level))
	}

	options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if opts.Development {
		options = append(options, zap.AddCaller(), zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), options...), nil
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}
