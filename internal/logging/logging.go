// Package logging builds the arbor logger used across tuberag.
package logging

import (
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"tuberag/internal/config"
)

// New returns a logger writing to the console and, when configured, to a file.
// When console is false only the file writer is attached, which keeps
// full-screen views such as the chat TUI clean.
func New(cfg config.LogConfig, console bool) arbor.ILogger {
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "15:04:05"
	}

	logger := arbor.NewLogger()
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err == nil {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   cfg.File,
				TimeFormat: timeFormat,
				MaxSize:    10 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: true,
			})
		}
	}
	if console {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: true,
		})
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}
