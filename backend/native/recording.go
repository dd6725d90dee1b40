package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dxcore/initializer"
	"github.com/gogpu/dxcore/resource"
)

// recording is an open command encoder plus the staging buffers its copy
// commands read from.
//
// A recording is used by one goroutine at a time; initializer.Initializer
// serializes access under its own lock.
type recording struct {
	b        *Backend
	encoder  hal.CommandEncoder
	staging  []hal.Buffer
	commands int
	done     bool
}

// BeginRecording opens a new command encoder.
func (b *Backend) BeginRecording() (initializer.Recording, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "dxcore_init_encoder"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("dxcore_init"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &recording{b: b, encoder: encoder}, nil
}

// Submit ends rec and hands it to the queue. It does not wait for the GPU;
// staging buffers of earlier submissions that have completed are released.
func (b *Backend) Submit(rec initializer.Recording) error {
	r, ok := rec.(*recording)
	if !ok || r.b != b {
		return ErrForeignRecording
	}
	if r.done {
		return ErrRecordingSubmitted
	}

	cmdBuf, err := r.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	r.done = true

	fence, err := b.device.CreateFence()
	if err != nil {
		b.device.FreeCommandBuffer(cmdBuf)
		r.destroyStaging()
		return fmt.Errorf("native: create fence: %w", err)
	}
	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		b.device.DestroyFence(fence)
		b.device.FreeCommandBuffer(cmdBuf)
		r.destroyStaging()
		return fmt.Errorf("native: submit: %w", err)
	}

	b.mu.Lock()
	b.inflight = append(b.inflight, &submission{fence: fence, cmdBuf: cmdBuf, staging: r.staging})
	b.mu.Unlock()
	b.submitted.Add(1)

	b.logger.Debug("native: init batch submitted",
		"commands", r.commands,
		"staging", len(r.staging))

	r.staging = nil
	return b.reclaim(false)
}

// UploadBuffer records a copy of data into dst through a staging buffer.
func (r *recording) UploadBuffer(dst resource.BufferSlice, data []byte) error {
	if r.done {
		return ErrRecordingSubmitted
	}
	if len(data) == 0 {
		return nil
	}
	return r.copyFromStaging(dst, 0, data)
}

// ClearBuffer records a fill of length bytes at offset within dst with the
// little-endian pattern repeated.
func (r *recording) ClearBuffer(dst resource.BufferSlice, offset, length uint64, pattern uint32) error {
	if r.done {
		return ErrRecordingSubmitted
	}
	if length == 0 {
		return nil
	}

	fill := make([]byte, align4(length))
	if pattern != 0 {
		for i := 0; i < len(fill); i += 4 {
			binary.LittleEndian.PutUint32(fill[i:], pattern)
		}
	}
	return r.copyFromStaging(dst, offset, fill[:length])
}

// copyFromStaging uploads data into a new staging buffer and records a copy
// to dst at offset.
func (r *recording) copyFromStaging(dst resource.BufferSlice, offset uint64, data []byte) error {
	size := uint64(len(data))
	db, err := r.b.lookupBuffer(dst, offset, size)
	if err != nil {
		return err
	}

	// Copies move whole words. A write ending at the end of the allocation
	// is padded into its alignment slack; any other write keeps its size.
	copySize := size
	start := dst.Offset() + offset
	if start+size == db.len && start+align4(size) <= db.size {
		copySize = align4(size)
	}

	staging, err := r.b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "dxcore_staging",
		Size:  copySize,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: create staging buffer: %w", err)
	}
	r.staging = append(r.staging, staging)

	padded := data
	if copySize != size {
		padded = make([]byte, copySize)
		copy(padded, data)
	}
	r.b.queue.WriteBuffer(staging, 0, padded)

	r.encoder.CopyBufferToBuffer(staging, db.buf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: start, Size: copySize},
	})
	r.commands++
	return nil
}

func (r *recording) destroyStaging() {
	for _, buf := range r.staging {
		r.b.device.DestroyBuffer(buf)
	}
	r.staging = nil
}
