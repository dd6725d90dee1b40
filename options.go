package dxcore

import (
	"log/slog"

	"github.com/gogpu/dxcore/config"
	"github.com/gogpu/dxcore/initializer"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	dev, err := dxcore.NewDevice(backend,
//	    dxcore.WithLogger(logger),
//	    dxcore.WithStateCacheDir(cacheDir))
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	logger        *slog.Logger
	limits        initializer.Limits
	config        *config.Config
	exeName       string
	stateCacheDir string
}

// defaultOptions returns the default device options.
func defaultOptions() deviceOptions {
	return deviceOptions{
		logger: nil, // Logger() at creation time
		config: nil, // loaded from the user config file
	}
}

// WithLogger sets the logger for one device, overriding the package logger.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// WithInitLimits overrides the implicit flush thresholds of the resource
// initializer. Zero fields keep their defaults.
//
// The thresholds are not read from configuration files.
func WithInitLimits(l initializer.Limits) DeviceOption {
	return func(o *deviceOptions) {
		o.limits = l
	}
}

// WithConfig supplies the device configuration instead of loading the
// user config file.
func WithConfig(c *config.Config) DeviceOption {
	return func(o *deviceOptions) {
		o.config = c
	}
}

// WithExeName sets the executable name used for config sections and the
// state cache file name. The default is the running executable.
func WithExeName(name string) DeviceOption {
	return func(o *deviceOptions) {
		o.exeName = name
	}
}

// WithStateCacheDir sets the directory of the pipeline state cache,
// taking precedence over dxvk.stateCachePath. The cache still honors
// dxvk.enableStateCache = false.
func WithStateCacheDir(dir string) DeviceOption {
	return func(o *deviceOptions) {
		o.stateCacheDir = dir
	}
}
