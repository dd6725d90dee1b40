// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import "log/slog"

// Recognized option keys.
const (
	KeyEnableStateCache = "dxvk.enableStateCache"
	KeyStateCachePath   = "dxvk.stateCachePath"
	KeyLogLevel         = "dxvk.logLevel"

	KeyNumCompilerThreads = "dxvk.numCompilerThreads"
)

// LogLevel is the verbosity selected by dxvk.logLevel.
type LogLevel uint8

const (
	LogNone LogLevel = iota
	LogError
	LogWarn
	LogInfo
	LogDebug
)

var logLevelNames = [...]string{"none", "error", "warn", "info", "debug"}

// String returns the option spelling of l.
func (l LogLevel) String() string {
	if int(l) < len(logLevelNames) {
		return logLevelNames[l]
	}
	return "info"
}

// ParseLogLevel parses a dxvk.logLevel value, ignoring ASCII case.
func ParseLogLevel(s string) (LogLevel, bool) {
	s = toLower(s)
	for i, name := range logLevelNames {
		if s == name {
			return LogLevel(i), true
		}
	}
	return LogInfo, false
}

// SlogLevel maps l to a slog level. The second result is false for LogNone.
func (l LogLevel) SlogLevel() (slog.Level, bool) {
	switch l {
	case LogNone:
		return 0, false
	case LogError:
		return slog.LevelError, true
	case LogWarn:
		return slog.LevelWarn, true
	case LogDebug:
		return slog.LevelDebug, true
	default:
		return slog.LevelInfo, true
	}
}

// Options are the typed device options read from a Config.
type Options struct {
	// EnableStateCache controls the pipeline state cache. With auto the
	// cache is used when a cache directory is configured.
	EnableStateCache Tristate

	// StateCachePath is the directory holding state cache files. When it is
	// empty and EnableStateCache is true, the working directory is used.
	StateCachePath string

	LogLevel LogLevel

	// NumCompilerThreads is the number of goroutines compiling cached
	// pipelines. Zero selects GOMAXPROCS.
	NumCompilerThreads int32
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		EnableStateCache: TristateAuto,
		LogLevel:         LogInfo,
	}
}

// ReadOptions converts c to Options, falling back to defaults for missing
// or malformed values.
func ReadOptions(c *Config) Options {
	o := DefaultOptions()
	if c == nil {
		return o
	}
	o.EnableStateCache = c.Tristate(KeyEnableStateCache, o.EnableStateCache)
	o.StateCachePath = c.String(KeyStateCachePath, o.StateCachePath)
	if l, ok := ParseLogLevel(c.Option(KeyLogLevel)); ok {
		o.LogLevel = l
	}
	o.NumCompilerThreads = max(c.Int32(KeyNumCompilerThreads, 0), 0)
	return o
}
