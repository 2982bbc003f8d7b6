/*
Copyright 2023 Avi Zimmerman <avi.zimmerman@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging contains logging utilities for the end-to-end test binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogging sets up logging for the application.
func SetupLogging(logLevel string) *slog.Logger {
	log := NewLogger(logLevel)
	slog.SetDefault(log)
	return log
}

// NewLogger returns a new logger with the given log level writing to stderr.
// If log level is empty or "silent" then the logger will be silent.
func NewLogger(logLevel string) *slog.Logger {
	return NewLoggerTo(os.Stderr, logLevel)
}

// NewLoggerTo returns a new logger with the given log level writing to w.
func NewLoggerTo(w io.Writer, logLevel string) *slog.Logger {
	if logLevel == "" || strings.ToLower(logLevel) == "silent" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	level, err := ParseLevel(logLevel)
	if err != nil {
		slog.Default().Warn("Invalid log level specified, defaulting to info", "log-level", logLevel)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel parses the given log level string. An unknown level returns
// an error alongside slog.LevelInfo.
func ParseLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "fatal":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %q", logLevel)
}

// IsValidLevel reports whether the given string is a level accepted by NewLogger.
func IsValidLevel(logLevel string) bool {
	if logLevel == "" || strings.ToLower(logLevel) == "silent" {
		return true
	}
	_, err := ParseLevel(logLevel)
	return err == nil
}
