// Package logging builds the zap logger shared by the sync engine components.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"Showtimes_Sync/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New constructs a zap logger using the provided options.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if opts.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Sampling = nil
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
		zcfg.Encoding = "json"
	case "console":
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	for _, p := range outputs {
		if err := ensureLogDir(p); err != nil {
			return nil, err
		}
	}
	zcfg.OutputPaths = outputs
	zcfg.ErrorOutputPaths = []string{"stderr"}

	// caller 信息只在 debug 级别输出
	zcfg.DisableCaller = level > zapcore.DebugLevel
	return zcfg.Build()
}

// NewFromConfig creates a logger using application config defaults.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "json"})
	}
	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
	})
}

func parseLevel(level string) (zapcore.Level, error) {
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
		return zapcore.InfoLevel, fmt.Errorf("log level: unsupported value %q", level)
	}
}

func ensureLogDir(path string) error {
	switch path {
	case "stdout", "stderr":
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
