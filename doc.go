// Package dxcore provides the device-level core of a Direct3D-to-GPU
// translation layer: shader modules, derived pipeline objects, resource
// initialization and the user configuration that steers them.
//
// # Overview
//
// Direct3D applications bind shaders and resources but never create
// pipeline objects. A Device derives one pipeline per distinct shader
// combination, compiles it on first use and keeps it for its lifetime.
// Newly created buffers receive their initial contents through batched
// copy and clear commands that are submitted when a batch grows too large
// or when Flush is called.
//
// # Quick Start
//
//	import "github.com/gogpu/dxcore"
//
//	dev, err := dxcore.NewDeviceFromHAL(halDevice, halQueue)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	cs, err := dev.CreateShaderWGSL(shader.Compute, src, "main")
//	p := dev.CreateComputePipeline(pipeline.ComputeShaders{CS: cs})
//	handle, err := p.Handle()
//
// # Configuration
//
// Options come from dxvk.conf in the working directory, or the file named
// by $DXVK_CONFIG_FILE. Lines after a [name.exe] header apply only to that
// executable:
//
//	dxvk.logLevel = warn
//
//	[game.exe]
//	dxvk.enableStateCache = True
//	dxvk.stateCachePath = "/var/cache/dxcore"
//
// # Architecture
//
// The module is organized into:
//   - dxcore: Device, options and logging
//   - config: configuration parsing and typed options
//   - shader: shader identity and the per-device module set
//   - pipeline: the pipeline manager and the on-disk state cache
//   - initializer: batched resource initialization
//   - resource: buffer slices and memory visibility
//   - backend/native: the HAL backend (gogpu/wgpu)
//
// # Logging
//
// The library is silent by default. SetLogger enables structured logging
// through log/slog for this package and its sub-packages.
package dxcore

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
