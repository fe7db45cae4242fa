package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stderr"`
}

// newLogger writes colored console output to stdout/stderr and JSON lines to
// any other path.
func newLogger(config LogConfig) (zerolog.Logger, error) {
	level := parseLevel(config.Level)

	var writer io.Writer
	switch strings.ToLower(config.Output) {
	case "stdout":
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	case "stderr", "":
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), err
		}
		writer = file
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp()
	if level == zerolog.DebugLevel {
		logger = logger.Caller()
	}
	return logger.Logger(), nil
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
