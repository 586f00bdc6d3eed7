package utils

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogOptions struct {
	Level string
	// File, when set, receives a copy of every entry; rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger builds the production JSON logger. Console output always goes to
// stdout; File adds a rotated file sink.
func NewLogger(opts LogOptions) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if opts.Level != "" {
		if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	consoleCore := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)
	if opts.File == "" {
		return zap.New(consoleCore, zap.AddCaller()), nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, err
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(enc, zapcore.AddSync(rotator), lvl)
	return zap.New(zapcore.NewTee(fileCore, consoleCore), zap.AddCaller()), nil
}

// Logger returns a logger for the binaries that have no config layer,
// honouring LOG_FILE and LOG_LEVEL. Falls back to zap's production logger.
func Logger() *zap.Logger {
	l, err := NewLogger(LogOptions{Level: os.Getenv("LOG_LEVEL"), File: os.Getenv("LOG_FILE")})
	if err != nil {
		l, _ = zap.NewProduction()
	}
	return l
}
