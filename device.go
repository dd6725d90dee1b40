// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package dxcore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dxcore/backend/native"
	"github.com/gogpu/dxcore/config"
	"github.com/gogpu/dxcore/initializer"
	"github.com/gogpu/dxcore/internal/workers"
	"github.com/gogpu/dxcore/pipeline"
	"github.com/gogpu/dxcore/resource"
	"github.com/gogpu/dxcore/shader"
)

// Sentinel errors.
var (
	// ErrNilBackend is returned when creating a device without a backend.
	ErrNilBackend = errors.New("dxcore: backend is nil")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL device and queue objects.
	ErrNoHALProvider = errors.New("dxcore: provider does not expose HAL types")

	// ErrDeviceClosed is returned for operations on a closed device.
	ErrDeviceClosed = errors.New("dxcore: device closed")
)

// Backend is the device backend: it compiles pipelines and records and
// submits resource initialization commands.
//
// backend/native provides the HAL implementation.
type Backend interface {
	pipeline.Compiler
	initializer.Recorder
}

// Device owns the per-device state: the shader module set, the pipeline
// manager, the resource initializer and the optional pipeline state cache.
//
// Nothing is shared between devices. Device is safe for concurrent use;
// pipeline creation and resource initialization lock independently.
type Device struct {
	backend      Backend
	ownedBackend io.Closer
	logger       *slog.Logger

	config  *config.Config
	options config.Options
	exeName string

	shaders   *shader.ModuleSet
	pipelines *pipeline.Manager
	init      *initializer.Initializer

	stateCache     *pipeline.StateCache
	stateCachePath string
	compilers      *workers.Pool

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewDevice creates a device over backend. The caller keeps ownership of
// the backend and closes it after the device.
//
// Unless WithConfig is given, the user configuration is loaded from
// $DXVK_CONFIG_FILE or dxvk.conf.
func NewDevice(backend Backend, opts ...DeviceOption) (*Device, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newDevice(backend, nil, o)
}

// NewDeviceFromHAL creates a device with a native backend over a HAL
// device and queue. The backend is released by Close; the HAL device and
// queue are not.
func NewDeviceFromHAL(device hal.Device, queue hal.Queue, opts ...DeviceOption) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newNativeDevice(device, queue, o)
}

// NewDeviceFromProvider creates a device that shares the GPU device of a
// host application. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. Graphics pipelines
// target the provider's surface format.
func NewDeviceFromProvider(provider gpucontext.DeviceProvider, opts ...DeviceOption) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newNativeDevice(device, queue, o, native.WithColorFormat(provider.SurfaceFormat()))
}

func newNativeDevice(device hal.Device, queue hal.Queue, o deviceOptions, extra ...native.Option) (*Device, error) {
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}
	backend, err := native.New(device, queue, append([]native.Option{native.WithLogger(logger)}, extra...)...)
	if err != nil {
		return nil, err
	}
	d, err := newDevice(backend, backend, o)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return d, nil
}

func newDevice(backend Backend, owned io.Closer, o deviceOptions) (*Device, error) {
	d := &Device{
		backend:      backend,
		ownedBackend: owned,
		logger:       o.logger,
		exeName:      o.exeName,
		shaders:      shader.NewModuleSet(),
	}
	if d.logger == nil {
		d.logger = Logger()
	}
	if d.exeName == "" {
		d.exeName = config.ExeName()
	}

	d.config = o.config
	if d.config == nil {
		cfg, err := config.Load(d.exeName)
		if err != nil {
			return nil, fmt.Errorf("dxcore: load config: %w", err)
		}
		d.config = cfg
	}
	d.config.LogOptions(d.logger)
	d.options = config.ReadOptions(d.config)

	d.openStateCache(o.stateCacheDir)

	pmOpts := []pipeline.Option{pipeline.WithLogger(d.logger)}
	if d.stateCache != nil {
		d.compilers = workers.New(int(d.options.NumCompilerThreads))
		pmOpts = append(pmOpts, pipeline.WithWorkers(d.compilers))
	}
	pm, err := pipeline.NewManager(backend, pmOpts...)
	if err != nil {
		d.closeCompilers()
		return nil, err
	}
	d.pipelines = pm

	in, err := initializer.New(backend,
		initializer.WithLimits(o.limits),
		initializer.WithLogger(d.logger))
	if err != nil {
		d.closeCompilers()
		return nil, err
	}
	d.init = in
	return d, nil
}

func (d *Device) closeCompilers() {
	if d.compilers != nil {
		d.compilers.Close()
	}
}

// openStateCache loads the state cache when it is enabled. A cache that
// cannot be read is replaced by an empty one.
func (d *Device) openStateCache(dirOverride string) {
	dir := dirOverride
	if dir == "" {
		dir = d.options.StateCachePath
	}
	if !d.options.EnableStateCache.Resolve(dir != "") {
		return
	}
	if dir == "" {
		dir = "."
	}

	d.stateCachePath = pipeline.StateCachePath(dir, d.exeName)
	sc, err := pipeline.LoadStateCache(d.stateCachePath)
	if err != nil {
		d.logger.Warn("dxcore: state cache unreadable, starting empty",
			"path", d.stateCachePath,
			"error", err)
		sc = pipeline.NewStateCache()
	} else {
		d.logger.Info("dxcore: state cache loaded",
			"path", d.stateCachePath,
			"entries", sc.Len())
	}
	d.stateCache = sc
}

// Backend returns the backend the device drives.
func (d *Device) Backend() Backend { return d.backend }

// Config returns the configuration the device was created with.
func (d *Device) Config() *config.Config { return d.config }

// Options returns the typed options read from the configuration.
func (d *Device) Options() config.Options { return d.options }

// CreateShader returns the shader for SPIR-V code, reusing an existing
// shader when the same code was created before for the same stage.
func (d *Device) CreateShader(stage shader.Stage, code []uint32, entryPoint string) (*shader.Shader, error) {
	return d.shaders.GetShaderModule(stage, code, entryPoint)
}

// CreateShaderWGSL compiles WGSL source and returns its shader.
func (d *Device) CreateShaderWGSL(stage shader.Stage, source, entryPoint string) (*shader.Shader, error) {
	code, err := shader.CompileWGSL(source)
	if err != nil {
		return nil, err
	}
	return d.shaders.GetShaderModule(stage, code, entryPoint)
}

// ShaderCount returns the number of distinct shaders created.
func (d *Device) ShaderCount() int { return d.shaders.Len() }

// CreateGraphicsPipeline returns the pipeline for a shader set, or nil when
// no vertex shader is bound or the device is closed. A nil pipeline means
// the draw is skipped.
func (d *Device) CreateGraphicsPipeline(shaders pipeline.GraphicsShaders) *pipeline.GraphicsPipeline {
	if d.closed.Load() {
		return nil
	}
	return d.pipelines.CreateGraphicsPipeline(shaders)
}

// CreateComputePipeline returns the pipeline for a compute shader, or nil
// when none is bound or the device is closed.
func (d *Device) CreateComputePipeline(shaders pipeline.ComputeShaders) *pipeline.ComputePipeline {
	if d.closed.Load() {
		return nil
	}
	return d.pipelines.CreateComputePipeline(shaders)
}

// PipelineCount returns the number of graphics and compute pipelines.
func (d *Device) PipelineCount() pipeline.Count {
	return d.pipelines.PipelineCount()
}

// PipelineManager returns the device's pipeline manager.
func (d *Device) PipelineManager() *pipeline.Manager { return d.pipelines }

// Prewarm compiles the pipelines recorded in the state cache whose shaders
// have all been created on this device, using dxvk.numCompilerThreads
// goroutines. It returns the number compiled, or 0 on a closed device.
//
// Close waits for a Prewarm in progress.
func (d *Device) Prewarm() int {
	if d.stateCache == nil {
		return 0
	}
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed.Load() {
		return 0
	}
	n := d.pipelines.Prewarm(d.stateCache.Entries(), d.shaders.Lookup)
	d.logger.Debug("dxcore: prewarmed pipelines",
		"count", n,
		"workers", d.compilers.Workers())
	return n
}

// StateCachePath returns the state cache file, or "" when the cache is
// disabled.
func (d *Device) StateCachePath() string { return d.stateCachePath }

// InitBuffer gives buf its initial contents: data, or zeros when data is nil.
func (d *Device) InitBuffer(buf resource.BufferSlice, data []byte) error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	return d.init.InitBuffer(buf, data)
}

// Flush submits all pending initialization commands.
func (d *Device) Flush() error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	return d.init.Flush()
}

// PendingInit returns the initialization commands and bytes not yet flushed.
func (d *Device) PendingInit() (commands int, bytes uint64) {
	return d.init.Pending()
}

// InitFlushes returns the number of initialization batches submitted.
func (d *Device) InitFlushes() uint64 {
	return d.init.Flushes()
}

// Close flushes pending work, saves the state cache and releases all
// pipelines. A backend created by the device is closed too.
// Close is idempotent.
func (d *Device) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed.Load() {
		return nil
	}
	d.closed.Store(true)

	var errs []error
	if err := d.init.Flush(); err != nil {
		errs = append(errs, err)
	}

	if d.stateCache != nil {
		if added := d.stateCache.AddFrom(d.pipelines); added > 0 {
			if err := d.stateCache.Save(d.stateCachePath); err != nil {
				d.logger.Warn("dxcore: state cache not saved", "path", d.stateCachePath, "error", err)
				errs = append(errs, err)
			} else {
				d.logger.Info("dxcore: state cache saved",
					"path", d.stateCachePath,
					"entries", d.stateCache.Len(),
					"new", added)
			}
		}
	}

	d.closeCompilers()
	d.pipelines.Destroy()

	if d.ownedBackend != nil {
		if err := d.ownedBackend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
