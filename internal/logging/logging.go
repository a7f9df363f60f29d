// Package logging builds the structured logger every other package in
// this module logs through: log/slog writing to stderr, or to a rotating
// file sink when a log file is configured, with a human-readable text
// handler when text output or debugging is requested.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the slog handler used for output.
type Format int

const (
	// FormatJSON is the default, used for the daemonized production
	// logger.
	FormatJSON Format = iota
	// FormatText is used with --debug/--foreground, for a human
	// reading the terminal directly.
	FormatText
)

// Config controls how New builds a logger.
type Config struct {
	// Format selects JSON vs text output.
	Format Format
	// Debug lowers the minimum level to slog.LevelDebug and selects
	// text output regardless of Format.
	Debug bool
	// LogFile, if non-empty, routes output through a rotating
	// lumberjack sink instead of stderr.
	LogFile string
	// MaxSizeMB, MaxBackups, MaxAgeDays configure rotation when LogFile
	// is set; zero values fall back to lumberjack's own defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a *slog.Logger per cfg. The returned io.Closer (possibly a
// no-op) must be closed during unmount to flush the rotating sink.
func New(cfg Config) (*slog.Logger, io.Closer) {
	var w io.WriteCloser = nopCloser{os.Stderr}
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == FormatText || cfg.Debug {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h), w
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
