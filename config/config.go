// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config reads user configuration files.
//
// A configuration file is a list of lines of the form
//
//	key = value
//
// optionally grouped under [executable] section headers. Options in a
// section apply only when the running executable has that name; options
// before the first section apply to every executable.
//
// Values are stored as strings and converted on lookup. A value that does
// not parse as the requested type is treated as absent, and the caller's
// default is used.
package config

import (
	"log/slog"
	"maps"
	"slices"
)

// Config is a set of option values keyed by option name.
//
// Config is not safe for concurrent mutation. It is built once when a
// device is created and only read afterwards.
type Config struct {
	options map[string]string
}

// New creates an empty configuration.
func New() *Config {
	return &Config{options: make(map[string]string)}
}

// FromMap creates a configuration holding a copy of options.
func FromMap(options map[string]string) *Config {
	c := New()
	maps.Copy(c.options, options)
	return c
}

// SetOption sets key to value, replacing any previous value.
func (c *Config) SetOption(key, value string) {
	c.options[key] = value
}

// Option returns the raw value of key, or the empty string.
func (c *Config) Option(key string) string {
	return c.options[key]
}

// Lookup returns the raw value of key and whether it is set.
func (c *Config) Lookup(key string) (string, bool) {
	v, ok := c.options[key]
	return v, ok
}

// Merge adds the options of other that c does not already set.
// Values already present in c take precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	for k, v := range other.options {
		if _, ok := c.options[k]; !ok {
			c.options[k] = v
		}
	}
}

// Len returns the number of options.
func (c *Config) Len() int { return len(c.options) }

// Keys returns the option names in sorted order.
func (c *Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.options))
}

// Map returns a copy of the options.
func (c *Config) Map() map[string]string {
	return maps.Clone(c.options)
}

// String returns the value of key, or def when it is not set.
func (c *Config) String(key, def string) string {
	if v, ok := c.options[key]; ok {
		return v
	}
	return def
}

// Bool returns the boolean value of key, or def when it is not set or
// not a boolean.
func (c *Config) Bool(key string, def bool) bool {
	if v, ok := ParseBool(c.options[key]); ok {
		return v
	}
	return def
}

// Int32 returns the integer value of key, or def when it is not set or
// not an integer.
func (c *Config) Int32(key string, def int32) int32 {
	if v, ok := ParseInt32(c.options[key]); ok {
		return v
	}
	return def
}

// Tristate returns the tristate value of key, or def when it is not set
// or not a tristate.
func (c *Config) Tristate(key string, def Tristate) Tristate {
	if v, ok := ParseTristate(c.options[key]); ok {
		return v
	}
	return def
}

// LogOptions logs every option at info level, sorted by name.
// Nothing is logged for an empty configuration.
func (c *Config) LogOptions(l *slog.Logger) {
	if len(c.options) == 0 {
		return
	}
	if l == nil {
		l = slogger()
	}
	l.Info("config: effective configuration")
	for _, k := range c.Keys() {
		l.Info("config: option", "key", k, "value", c.options[k])
	}
}
