// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package dxcore

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/dxcore/config"
	"github.com/gogpu/dxcore/initializer"
	"github.com/gogpu/dxcore/pipeline"
	"github.com/gogpu/dxcore/resource"
	"github.com/gogpu/dxcore/shader"
)

// =============================================================================
// Test Helpers
// =============================================================================

type mockRecording struct{ commands int }

func (r *mockRecording) UploadBuffer(resource.BufferSlice, []byte) error {
	r.commands++
	return nil
}

func (r *mockRecording) ClearBuffer(resource.BufferSlice, uint64, uint64, uint32) error {
	r.commands++
	return nil
}

// mockBackend counts compiles and submissions.
type mockBackend struct {
	mu        sync.Mutex
	next      pipeline.Handle
	graphics  int
	compute   int
	destroyed int
	submits   []int
}

func (b *mockBackend) CompileGraphicsPipeline(pipeline.GraphicsShaders) (pipeline.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphics++
	b.next++
	return b.next, nil
}

func (b *mockBackend) CompileComputePipeline(pipeline.ComputeShaders) (pipeline.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compute++
	b.next++
	return b.next, nil
}

func (b *mockBackend) DestroyPipeline(pipeline.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed++
}

func (b *mockBackend) BeginRecording() (initializer.Recording, error) {
	return &mockRecording{}, nil
}

func (b *mockBackend) Submit(rec initializer.Recording) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits = append(b.submits, rec.(*mockRecording).commands)
	return nil
}

func newTestDevice(t *testing.T, opts ...DeviceOption) (*Device, *mockBackend) {
	t.Helper()
	b := &mockBackend{}
	base := []DeviceOption{WithConfig(config.New()), WithExeName("test.exe")}
	d, err := NewDevice(b, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	return d, b
}

func spirv(seed uint32) []uint32 {
	return []uint32{0x07230203, 0x00010000, seed}
}

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

type mockGPUDevice struct{}

func (m *mockGPUDevice) Poll(wait bool) {}
func (m *mockGPUDevice) Destroy()       {}

type mockGPUQueue struct{}

type mockGPUAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider, optionally with HAL access.
type mockProvider struct {
	halDevice any
	halQueue  any
}

func (m *mockProvider) Device() gpucontext.Device   { return &mockGPUDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue     { return &mockGPUQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter { return &mockGPUAdapter{} }

func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

type mockHALProvider struct {
	mockProvider
}

func (m *mockHALProvider) HalDevice() any { return m.halDevice }
func (m *mockHALProvider) HalQueue() any  { return m.halQueue }

// =============================================================================
// Tests
// =============================================================================

func TestNewDeviceNilBackend(t *testing.T) {
	if _, err := NewDevice(nil); !errors.Is(err, ErrNilBackend) {
		t.Errorf("NewDevice(nil) error = %v, want ErrNilBackend", err)
	}
}

func TestDevicePipelines(t *testing.T) {
	d, b := newTestDevice(t)

	vs, err := d.CreateShader(shader.Vertex, spirv(1), "main")
	if err != nil {
		t.Fatal(err)
	}
	vsAgain, err := d.CreateShader(shader.Vertex, spirv(1), "main")
	if err != nil {
		t.Fatal(err)
	}
	if vs != vsAgain {
		t.Error("CreateShader did not deduplicate identical code")
	}
	ps, _ := d.CreateShader(shader.Pixel, spirv(2), "main")
	cs, _ := d.CreateShader(shader.Compute, spirv(3), "main")

	g := d.CreateGraphicsPipeline(pipeline.GraphicsShaders{VS: vs, PS: ps})
	if g == nil {
		t.Fatal("CreateGraphicsPipeline returned nil")
	}
	// Shader dedup makes keys built from re-created shaders hit the cache.
	if d.CreateGraphicsPipeline(pipeline.GraphicsShaders{VS: vsAgain, PS: ps}) != g {
		t.Error("equal shader sets produced different pipelines")
	}
	if d.CreateGraphicsPipeline(pipeline.GraphicsShaders{PS: ps}) != nil {
		t.Error("pipeline without vertex shader is not nil")
	}
	if d.CreateComputePipeline(pipeline.ComputeShaders{CS: cs}) == nil {
		t.Error("CreateComputePipeline returned nil")
	}

	if got := d.PipelineCount(); got != (pipeline.Count{Graphics: 1, Compute: 1}) {
		t.Errorf("PipelineCount() = %+v, want {1 1}", got)
	}
	if d.ShaderCount() != 3 {
		t.Errorf("ShaderCount() = %d, want 3", d.ShaderCount())
	}

	if _, err := g.Handle(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if b.destroyed != 1 {
		t.Errorf("backend destroyed %d pipelines, want 1", b.destroyed)
	}
}

func TestDeviceInitLimits(t *testing.T) {
	d, b := newTestDevice(t, WithInitLimits(initializer.Limits{MaxCommands: 3}))

	for i := 1; i <= 7; i++ {
		if err := d.InitBuffer(resource.NewDeviceSlice(resource.BufferID(i), 0, 8), nil); err != nil {
			t.Fatal(err)
		}
	}
	if commands, _ := d.PendingInit(); commands != 1 {
		t.Errorf("pending commands = %d, want 1", commands)
	}
	if err := d.Flush(); err != nil {
		t.Fatal(err)
	}

	want := []int{3, 3, 1}
	if len(b.submits) != len(want) {
		t.Fatalf("submits = %v, want %v", b.submits, want)
	}
	for i := range want {
		if b.submits[i] != want[i] {
			t.Errorf("submits = %v, want %v", b.submits, want)
			break
		}
	}
	if d.InitFlushes() != 3 {
		t.Errorf("InitFlushes() = %d, want 3", d.InitFlushes())
	}
}

func TestDeviceCloseFlushes(t *testing.T) {
	d, b := newTestDevice(t)

	mem := make([]byte, 4)
	if err := d.InitBuffer(resource.NewHostSlice(1, mem), []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := d.InitBuffer(resource.NewDeviceSlice(2, 0, 4), []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if len(b.submits) != 0 {
		t.Fatal("submitted before Close")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(b.submits) != 1 || b.submits[0] != 1 {
		t.Errorf("submits = %v, want [1]", b.submits)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := d.InitBuffer(resource.NewDeviceSlice(3, 0, 4), nil); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("InitBuffer after Close error = %v, want ErrDeviceClosed", err)
	}
	if err := d.Flush(); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Flush after Close error = %v, want ErrDeviceClosed", err)
	}
}

func TestDeviceStateCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()

	d1, _ := newTestDevice(t, WithStateCacheDir(dir))
	if d1.StateCachePath() == "" {
		t.Fatal("state cache disabled with a cache dir")
	}
	vs, _ := d1.CreateShader(shader.Vertex, spirv(1), "main")
	ps, _ := d1.CreateShader(shader.Pixel, spirv(2), "main")
	cs, _ := d1.CreateShader(shader.Compute, spirv(3), "main")
	d1.CreateGraphicsPipeline(pipeline.GraphicsShaders{VS: vs, PS: ps})
	d1.CreateComputePipeline(pipeline.ComputeShaders{CS: cs})
	if err := d1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(d1.StateCachePath()); err != nil {
		t.Fatalf("state cache not written: %v", err)
	}

	d2, b2 := newTestDevice(t, WithStateCacheDir(dir))
	defer d2.Close()

	// Nothing resolves before the shaders exist on the new device.
	if n := d2.Prewarm(); n != 0 {
		t.Errorf("Prewarm() before shaders = %d, want 0", n)
	}
	if _, err := d2.CreateShader(shader.Vertex, spirv(1), "main"); err != nil {
		t.Fatal(err)
	}
	if _, err := d2.CreateShader(shader.Pixel, spirv(2), "main"); err != nil {
		t.Fatal(err)
	}
	if _, err := d2.CreateShader(shader.Compute, spirv(3), "main"); err != nil {
		t.Fatal(err)
	}

	if n := d2.Prewarm(); n != 2 {
		t.Errorf("Prewarm() = %d, want 2", n)
	}
	if b2.graphics != 1 || b2.compute != 1 {
		t.Errorf("compiled %d graphics / %d compute, want 1 / 1", b2.graphics, b2.compute)
	}
}

func TestDevicePipelinesAfterClose(t *testing.T) {
	dir := t.TempDir()

	d1, _ := newTestDevice(t, WithStateCacheDir(dir))
	cs, _ := d1.CreateShader(shader.Compute, spirv(3), "main")
	d1.CreateComputePipeline(pipeline.ComputeShaders{CS: cs})
	if err := d1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	d2, b2 := newTestDevice(t, WithStateCacheDir(dir))
	vs, _ := d2.CreateShader(shader.Vertex, spirv(1), "main")
	cs2, _ := d2.CreateShader(shader.Compute, spirv(3), "main")
	if err := d2.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if n := d2.Prewarm(); n != 0 {
		t.Errorf("Prewarm() after Close = %d, want 0", n)
	}
	if p := d2.CreateComputePipeline(pipeline.ComputeShaders{CS: cs2}); p != nil {
		t.Error("CreateComputePipeline after Close returned a pipeline")
	}
	if p := d2.CreateGraphicsPipeline(pipeline.GraphicsShaders{VS: vs}); p != nil {
		t.Error("CreateGraphicsPipeline after Close returned a pipeline")
	}
	if b2.graphics != 0 || b2.compute != 0 {
		t.Errorf("compiled %d graphics / %d compute after Close, want 0 / 0", b2.graphics, b2.compute)
	}
}

func TestDevicePrewarmConcurrentWithClose(t *testing.T) {
	dir := t.TempDir()

	d1, _ := newTestDevice(t, WithStateCacheDir(dir))
	for i := range uint32(64) {
		cs, _ := d1.CreateShader(shader.Compute, spirv(100+i), "main")
		d1.CreateComputePipeline(pipeline.ComputeShaders{CS: cs})
	}
	if err := d1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	d2, _ := newTestDevice(t, WithStateCacheDir(dir))
	for i := range uint32(64) {
		if _, err := d2.CreateShader(shader.Compute, spirv(100+i), "main"); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d2.Prewarm()
	}()
	go func() {
		defer wg.Done()
		if err := d2.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Prewarm and Close did not both return")
	}
}

func TestDeviceStateCacheDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]string
		opts []DeviceOption
	}{
		{"no directory", nil, nil},
		{
			"disabled by config",
			map[string]string{config.KeyEnableStateCache: "false"},
			[]DeviceOption{WithStateCacheDir(t.TempDir())},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]DeviceOption{WithConfig(config.FromMap(tt.cfg))}, tt.opts...)
			d, _ := newTestDevice(t, opts...)
			defer d.Close()
			if d.StateCachePath() != "" {
				t.Errorf("StateCachePath() = %q, want disabled", d.StateCachePath())
			}
			if d.Prewarm() != 0 {
				t.Error("Prewarm() without a cache compiled pipelines")
			}
		})
	}
}

func TestDeviceStateCacheFromConfig(t *testing.T) {
	dir := t.TempDir()
	d, _ := newTestDevice(t, WithConfig(config.FromMap(map[string]string{
		config.KeyStateCachePath: dir,
	})))
	defer d.Close()

	want := pipeline.StateCachePath(dir, "test.exe")
	if d.StateCachePath() != want {
		t.Errorf("StateCachePath() = %q, want %q", d.StateCachePath(), want)
	}
}

func TestDeviceCreateShaderWGSL(t *testing.T) {
	d, _ := newTestDevice(t)
	defer d.Close()

	src := "@compute @workgroup_size(1)\nfn main() {\n}\n"
	s, err := d.CreateShaderWGSL(shader.Compute, src, "main")
	if err != nil {
		t.Fatalf("CreateShaderWGSL() error = %v", err)
	}
	if s.Stage() != shader.Compute {
		t.Errorf("Stage() = %v, want Compute", s.Stage())
	}
}

func TestNewDeviceFromHAL(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := NewDeviceFromHAL(device, queue, WithConfig(config.New()), WithExeName("test.exe"))
	if err != nil {
		t.Fatalf("NewDeviceFromHAL() error = %v", err)
	}

	cs, err := d.CreateShader(shader.Compute, spirv(1), "main")
	if err != nil {
		t.Fatal(err)
	}
	p := d.CreateComputePipeline(pipeline.ComputeShaders{CS: cs})
	if _, err := p.Handle(); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := d.InitBuffer(resource.NewHostSlice(1, make([]byte, 16)), nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewDeviceFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	p := &mockHALProvider{mockProvider{halDevice: device, halQueue: queue}}
	d, err := NewDeviceFromProvider(p, WithConfig(config.New()), WithExeName("test.exe"))
	if err != nil {
		t.Fatalf("NewDeviceFromProvider() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewDeviceFromProviderErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
	}{
		{"no HAL access", &mockProvider{}},
		{"wrong device type", &mockHALProvider{mockProvider{halDevice: "device", halQueue: "queue"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDeviceFromProvider(tt.provider); !errors.Is(err, ErrNoHALProvider) {
				t.Errorf("error = %v, want ErrNoHALProvider", err)
			}
		})
	}
}

func TestDeviceCompilerPool(t *testing.T) {
	cfg := config.FromMap(map[string]string{
		config.KeyEnableStateCache:   "True",
		config.KeyStateCachePath:     t.TempDir(),
		config.KeyNumCompilerThreads: "2",
	})
	d, _ := newTestDevice(t, WithConfig(cfg))

	if d.compilers == nil {
		t.Fatal("device with a state cache should own a compiler pool")
	}
	if got := d.compilers.Workers(); got != 2 {
		t.Errorf("compiler workers = %d, want 2", got)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	plain, _ := newTestDevice(t)
	defer plain.Close()
	if plain.compilers != nil {
		t.Error("device without a state cache should not start compiler goroutines")
	}
}
