// Package logging builds zap loggers from configurations.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// debug, info (default), warn or error.
	Level string `yaml:"level"`

	// json (default) or console.
	Format string `yaml:"format"`

	// stdout (default), stderr or path to a file.
	Output string `yaml:"output"`

	// rotation of file output. Ignored for stdout and stderr.
	Rotate *RotateConfig `yaml:"rotate,omitempty"`
}

type RotateConfig struct {
	// megabytes. 0 means lumberjack's default (100).
	MaxSizeMB  int  `yaml:"maxSizeMB"`
	MaxBackups int  `yaml:"maxBackups"`
	MaxAgeDays int  `yaml:"maxAgeDays"`
	Compress   bool `yaml:"compress"`
}

// ParseLevel converts level names. Empty is info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func encoder(format string) (zapcore.Encoder, error) {
	conf := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	switch strings.ToLower(format) {
	case "json", "":
		return zapcore.NewJSONEncoder(conf), nil
	case "console":
		return zapcore.NewConsoleEncoder(conf), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

func writer(conf Config) (zapcore.WriteSyncer, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(conf.Output) {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nop, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nop, nil
	}

	if r := conf.Rotate; r != nil {
		lumber := &lumberjack.Logger{
			Filename:   conf.Output,
			MaxSize:    r.MaxSizeMB,
			MaxBackups: r.MaxBackups,
			MaxAge:     r.MaxAgeDays,
			Compress:   r.Compress,
		}
		return zapcore.AddSync(lumber), lumber.Close, nil
	}

	f, err := os.OpenFile(conf.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nop, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.Lock(f), f.Close, nil
}

// New builds a logger.
//
// The returned func flushes the logger and releases its output. Call it on exit.
func New(conf Config) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(conf.Level)
	if err != nil {
		return nil, nil, err
	}
	enc, err := encoder(conf.Format)
	if err != nil {
		return nil, nil, err
	}
	ws, closer, err := writer(conf)
	if err != nil {
		return nil, nil, err
	}

	logger := zap.New(
		zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(level)),
		zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return logger, func() error {
		logger.Sync()
		return closer()
	}, nil
}
