// Package native implements the dxcore device backend on top of the
// gogpu/wgpu HAL.
//
// Backend compiles pipelines for pipeline.Manager, owns device-local buffer
// allocations, and records and submits the initialization batches of
// initializer.Initializer.
package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dxcore/pipeline"
	"github.com/gogpu/dxcore/resource"
	"github.com/gogpu/dxcore/shader"
)

// fenceTimeout bounds the wait for outstanding submissions on Close.
const fenceTimeout = 5 * time.Second

// Backend drives a HAL device and queue.
//
// Thread Safety: Backend is safe for concurrent use. Resource tables and
// the in-flight submission list are guarded by one mutex; HAL calls that
// create objects run outside it.
type Backend struct {
	device hal.Device
	queue  hal.Queue
	logger *slog.Logger

	colorFormat gputypes.TextureFormat

	nextHandle atomic.Uint64
	nextBuffer atomic.Uint64

	mu        sync.RWMutex
	closed    bool
	layout    hal.PipelineLayout
	modules   map[shader.Key]hal.ShaderModule
	render    map[pipeline.Handle]hal.RenderPipeline
	compute   map[pipeline.Handle]hal.ComputePipeline
	buffers   map[resource.BufferID]*deviceBuffer
	inflight  []*submission
	submitted atomic.Uint64
}

// deviceBuffer is a device-local allocation.
type deviceBuffer struct {
	buf  hal.Buffer
	size uint64 // allocated, a multiple of 4
	len  uint64 // requested
}

// submission is a submitted recording whose staging memory is released
// once its fence signals.
type submission struct {
	fence   hal.Fence
	cmdBuf  hal.CommandBuffer
	staging []hal.Buffer
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for backend diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithColorFormat sets the color target format of graphics pipelines.
// The default is BGRA8Unorm.
func WithColorFormat(f gputypes.TextureFormat) Option {
	return func(b *Backend) {
		b.colorFormat = f
	}
}

// New creates a Backend for device and queue. The backend does not take
// ownership of either.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Backend, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}

	b := &Backend{
		device:      device,
		queue:       queue,
		logger:      slog.New(slog.DiscardHandler),
		colorFormat: gputypes.TextureFormatBGRA8Unorm,
		modules:     make(map[shader.Key]hal.ShaderModule),
		render:      make(map[pipeline.Handle]hal.RenderPipeline),
		compute:     make(map[pipeline.Handle]hal.ComputePipeline),
		buffers:     make(map[resource.BufferID]*deviceBuffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// CreateBuffer allocates a device-local buffer of size bytes and returns a
// slice covering it.
func (b *Backend) CreateBuffer(size uint64) (resource.BufferSlice, error) {
	if b.isClosed() {
		return resource.BufferSlice{}, ErrClosed
	}

	id := resource.BufferID(b.nextBuffer.Add(1))
	buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("dxcore_buffer_%d", id),
		Size:  align4(size),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageVertex |
			gputypes.BufferUsageIndex | gputypes.BufferUsageUniform |
			gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return resource.BufferSlice{}, fmt.Errorf("native: create buffer: %w", err)
	}

	b.mu.Lock()
	b.buffers[id] = &deviceBuffer{buf: buf, size: align4(size), len: size}
	b.mu.Unlock()

	return resource.NewDeviceSlice(id, 0, size), nil
}

// DestroyBuffer releases a buffer allocated by CreateBuffer.
// Pending commands that reference it must have been flushed.
func (b *Backend) DestroyBuffer(id resource.BufferID) {
	b.mu.Lock()
	db, ok := b.buffers[id]
	delete(b.buffers, id)
	b.mu.Unlock()

	if ok {
		b.device.DestroyBuffer(db.buf)
	}
}

// BufferCount returns the number of live device-local buffers.
func (b *Backend) BufferCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buffers)
}

// lookupBuffer returns the allocation behind s and checks that
// [offset, offset+length) lies inside it.
func (b *Backend) lookupBuffer(s resource.BufferSlice, offset, length uint64) (*deviceBuffer, error) {
	b.mu.RLock()
	db, ok := b.buffers[s.Buffer()]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBuffer, s.Buffer())
	}
	end := s.Offset() + offset + length
	if end > db.len || end < s.Offset() {
		return nil, fmt.Errorf("%w: end %d, size %d", ErrOutOfRange, end, db.len)
	}
	return db, nil
}

// InFlight returns the number of submissions not yet known to be complete.
func (b *Backend) InFlight() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.inflight)
}

// Submissions returns the number of recordings submitted so far.
func (b *Backend) Submissions() uint64 {
	return b.submitted.Load()
}

// reclaim releases the resources of completed submissions. With wait set it
// blocks up to fenceTimeout per submission.
func (b *Backend) reclaim(wait bool) error {
	b.mu.Lock()
	pending := b.inflight
	b.inflight = nil
	b.mu.Unlock()

	var timeout time.Duration
	if wait {
		timeout = fenceTimeout
	}

	var keep []*submission
	var firstErr error
	for _, s := range pending {
		ok, err := b.device.Wait(s.fence, 1, timeout)
		if err != nil {
			b.logger.Warn("native: fence wait failed", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("native: wait for GPU: %w", err)
			}
			keep = append(keep, s)
			continue
		}
		if !ok {
			if wait && firstErr == nil {
				firstErr = fmt.Errorf("%w after %v", ErrGPUTimeout, fenceTimeout)
			}
			keep = append(keep, s)
			continue
		}
		b.release(s)
	}

	if len(keep) > 0 {
		b.mu.Lock()
		b.inflight = append(keep, b.inflight...)
		b.mu.Unlock()
	}
	return firstErr
}

func (b *Backend) release(s *submission) {
	for _, buf := range s.staging {
		b.device.DestroyBuffer(buf)
	}
	b.device.FreeCommandBuffer(s.cmdBuf)
	b.device.DestroyFence(s.fence)
}

func (b *Backend) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Close waits for outstanding submissions and releases every object the
// backend created. The HAL device and queue stay open. Close is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.reclaim(true)

	b.mu.Lock()
	defer b.mu.Unlock()

	for h, p := range b.render {
		b.device.DestroyRenderPipeline(p)
		delete(b.render, h)
	}
	for h, p := range b.compute {
		b.device.DestroyComputePipeline(p)
		delete(b.compute, h)
	}
	for k, m := range b.modules {
		b.device.DestroyShaderModule(m)
		delete(b.modules, k)
	}
	if b.layout != nil {
		b.device.DestroyPipelineLayout(b.layout)
		b.layout = nil
	}
	for id, db := range b.buffers {
		b.device.DestroyBuffer(db.buf)
		delete(b.buffers, id)
	}

	if err != nil {
		b.logger.Warn("native: close with outstanding GPU work", "error", err)
	}
	return err
}

// align4 rounds n up to the copy alignment of the HAL.
func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}
