// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigFile names the environment variable that overrides the
// configuration file path.
const EnvConfigFile = "DXVK_CONFIG_FILE"

// DefaultFile is the configuration file read from the working directory
// when EnvConfigFile is unset.
const DefaultFile = "dxvk.conf"

// FilePath returns the configuration file path: $DXVK_CONFIG_FILE when set,
// DefaultFile otherwise.
func FilePath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	return DefaultFile
}

// Load reads the user configuration for exeName from FilePath.
// A missing file yields an empty configuration.
func Load(exeName string) (*Config, error) {
	return LoadFile(FilePath(), exeName)
}

// LoadFile reads the configuration at path for exeName.
// A missing file yields an empty configuration.
func LoadFile(path, exeName string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	slogger().Info("config: found config file", "path", path)
	return Parse(f, exeName)
}

// ExeName returns the base name of the running executable.
func ExeName() string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Base(os.Args[0])
	}
	return filepath.Base(exe)
}
