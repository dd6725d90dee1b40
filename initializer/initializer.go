// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package initializer batches the commands that give new resources their
// initial contents.
//
// Host-visible buffers are written directly through their mapping.
// Device-local buffers need a recorded upload or clear; those commands are
// accumulated in one open recording and submitted in batches, bounded by a
// command count and a byte volume.
package initializer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dxcore/resource"
)

// Sentinel errors.
var (
	// ErrNilRecorder is returned when creating an Initializer without a recorder.
	ErrNilRecorder = errors.New("initializer: recorder is nil")

	// ErrShortData is returned when initial data is smaller than the buffer.
	ErrShortData = errors.New("initializer: initial data shorter than buffer")

	// ErrNotMapped is returned for a host-visible slice without a mapping.
	ErrNotMapped = errors.New("initializer: host-visible buffer is not mapped")
)

// Default batch limits.
const (
	DefaultMaxCommands = 512
	DefaultMaxBytes    = 32 << 20
)

// Limits bounds the work accumulated before an implicit flush.
type Limits struct {
	// MaxCommands is the number of recorded commands that triggers a flush.
	MaxCommands int

	// MaxBytes is the upload volume that, once exceeded, triggers a flush.
	MaxBytes uint64
}

// DefaultLimits returns 512 commands and 32 MiB.
func DefaultLimits() Limits {
	return Limits{MaxCommands: DefaultMaxCommands, MaxBytes: DefaultMaxBytes}
}

// Recording is an open, append-only command recording.
type Recording interface {
	// UploadBuffer records a copy of data into dst.
	UploadBuffer(dst resource.BufferSlice, data []byte) error

	// ClearBuffer records a fill of length bytes at offset with a repeated
	// 32-bit pattern.
	ClearBuffer(dst resource.BufferSlice, offset, length uint64, pattern uint32) error
}

// Recorder opens recordings and submits them to the device.
type Recorder interface {
	BeginRecording() (Recording, error)

	// Submit hands the recording to the device. It does not wait for the
	// commands to execute.
	Submit(rec Recording) error
}

// Initializer writes the initial contents of buffers.
//
// Thread Safety:
// The device-local path and Flush serialize on one mutex. The host-visible
// path takes no lock; callers must not initialize the same buffer from two
// goroutines at once.
type Initializer struct {
	recorder Recorder
	limits   Limits
	logger   *slog.Logger

	mu        sync.Mutex
	recording Recording
	commands  int
	bytes     uint64

	// flushes counts successful submissions, for diagnostics.
	flushes atomic.Uint64
}

// Option configures an Initializer.
type Option func(*Initializer)

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(in *Initializer) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithLimits overrides the implicit flush thresholds.
// Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(in *Initializer) {
		if l.MaxCommands > 0 {
			in.limits.MaxCommands = l.MaxCommands
		}
		if l.MaxBytes > 0 {
			in.limits.MaxBytes = l.MaxBytes
		}
	}
}

// New creates an Initializer and opens its first recording.
func New(rec Recorder, opts ...Option) (*Initializer, error) {
	if rec == nil {
		return nil, ErrNilRecorder
	}
	in := &Initializer{
		recorder: rec,
		limits:   DefaultLimits(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(in)
	}

	r, err := rec.BeginRecording()
	if err != nil {
		return nil, fmt.Errorf("initializer: begin recording: %w", err)
	}
	in.recording = r
	return in, nil
}

// Limits returns the active thresholds.
func (in *Initializer) Limits() Limits { return in.limits }

// InitBuffer gives buf its initial contents: the first buf.Len() bytes of
// data, or zeros when data is nil.
func (in *Initializer) InitBuffer(buf resource.BufferSlice, data []byte) error {
	if data != nil && uint64(len(data)) < buf.Len() {
		return fmt.Errorf("%w: %d < %d", ErrShortData, len(data), buf.Len())
	}

	switch SelectStrategy(buf) {
	case StrategyHostWrite:
		return initHostVisible(buf, data)
	default:
		return in.initDeviceLocal(buf, data)
	}
}

func initHostVisible(buf resource.BufferSlice, data []byte) error {
	if buf.Len() == 0 {
		return nil
	}
	dst := buf.MapPtr(0)
	if uint64(len(dst)) < buf.Len() {
		return ErrNotMapped
	}
	dst = dst[:buf.Len()]

	if data != nil {
		copy(dst, data[:buf.Len()])
	} else {
		clear(dst)
	}
	return nil
}

func (in *Initializer) initDeviceLocal(buf resource.BufferSlice, data []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.recording == nil {
		r, err := in.recorder.BeginRecording()
		if err != nil {
			return fmt.Errorf("initializer: begin recording: %w", err)
		}
		in.recording = r
	}

	if data != nil {
		if err := in.recording.UploadBuffer(buf, data[:buf.Len()]); err != nil {
			return fmt.Errorf("initializer: record upload: %w", err)
		}
		in.commands++
		in.bytes += buf.Len()
	} else {
		if err := in.recording.ClearBuffer(buf, 0, buf.Len(), 0); err != nil {
			return fmt.Errorf("initializer: record clear: %w", err)
		}
		in.commands++
	}

	return in.flushImplicit()
}

// flushImplicit submits the batch once the command count reaches
// MaxCommands or the upload volume exceeds MaxBytes.
// Caller must hold in.mu.
func (in *Initializer) flushImplicit() error {
	if in.commands < in.limits.MaxCommands && in.bytes <= in.limits.MaxBytes {
		return nil
	}
	in.logger.Debug("initializer: implicit flush",
		"commands", in.commands,
		"bytes", in.bytes)
	return in.flushLocked()
}

// Flush submits all recorded commands. It is a no-op when nothing is pending.
func (in *Initializer) Flush() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.flushLocked()
}

func (in *Initializer) flushLocked() error {
	if in.commands == 0 {
		return nil
	}

	if err := in.recorder.Submit(in.recording); err != nil {
		return fmt.Errorf("initializer: submit: %w", err)
	}
	in.commands = 0
	in.bytes = 0
	in.flushes.Add(1)

	r, err := in.recorder.BeginRecording()
	if err != nil {
		in.recording = nil
		return fmt.Errorf("initializer: begin recording: %w", err)
	}
	in.recording = r
	return nil
}

// Pending returns the commands and bytes recorded since the last flush.
func (in *Initializer) Pending() (commands int, bytes uint64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.commands, in.bytes
}

// Flushes returns the number of batches submitted so far.
func (in *Initializer) Flushes() uint64 {
	return in.flushes.Load()
}
