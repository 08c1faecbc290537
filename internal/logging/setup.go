// Package logging builds the process logger and the rotated file sinks.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/zerowrap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level, format and optional file output.
type Config struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"` // "console" or "json"
	File   FileConfig `mapstructure:"file"`
}

// FileConfig describes a size-rotated file.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// New builds the process logger. The returned cleanup closes the log file, if any.
func New(cfg Config) (zerowrap.Logger, func(), error) {
	logConfig := zerowrap.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
	}

	if !cfg.File.Enabled {
		return zerowrap.New(logConfig), func() {}, nil
	}

	if err := ensureDir(cfg.File.Path); err != nil {
		return zerowrap.Default(), nil, err
	}

	log, cleanup, err := zerowrap.NewWithFile(logConfig, zerowrap.FileConfig{
		Enabled:    true,
		Path:       cfg.File.Path,
		MaxSize:    cfg.File.MaxSize,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAge,
		Compress:   cfg.File.Compress,
	})
	if err != nil {
		return zerowrap.Default(), nil, fmt.Errorf("failed to create logger with file: %w", err)
	}
	return log, cleanup, nil
}

// RotatingFile opens a size-rotated file sink at cfg.Path.
func RotatingFile(cfg FileConfig) (*lumberjack.Logger, error) {
	if err := ensureDir(cfg.Path); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}, nil
}

func ensureDir(path string) error {
	if path == "" {
		return fmt.Errorf("file output enabled but no path configured")
	}
	// Owner only, logs may carry container names and images.
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}
