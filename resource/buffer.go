// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource describes the buffer memory ranges that device resources
// are initialized through.
//
// A BufferSlice carries a visibility classification that is decided when the
// memory is allocated and never changes afterwards. Host-visible slices
// expose their mapped memory directly; device-local slices can only be
// written by commands recorded on the backend.
package resource

import "fmt"

// Visibility classifies whether the process can address a buffer's memory.
type Visibility uint8

const (
	// DeviceLocal memory is only reachable through backend commands.
	DeviceLocal Visibility = iota
	// HostVisible memory is mapped into the process address space.
	HostVisible
)

// String returns the string representation of Visibility.
func (v Visibility) String() string {
	switch v {
	case DeviceLocal:
		return "DeviceLocal"
	case HostVisible:
		return "HostVisible"
	default:
		return fmt.Sprintf("Unknown(%d)", int(v))
	}
}

// BufferID identifies a backend buffer allocation.
// The zero value is reserved as invalid.
type BufferID uint64

// InvalidBufferID is the zero BufferID.
const InvalidBufferID BufferID = 0

// BufferSlice is a byte range of a buffer allocation.
//
// BufferSlice is a small value type and is passed by value. The mapped
// memory of a host-visible slice is shared between copies.
type BufferSlice struct {
	buffer     BufferID
	offset     uint64
	length     uint64
	visibility Visibility
	mapped     []byte
}

// NewDeviceSlice returns a device-local slice of buffer id.
func NewDeviceSlice(id BufferID, offset, length uint64) BufferSlice {
	return BufferSlice{
		buffer:     id,
		offset:     offset,
		length:     length,
		visibility: DeviceLocal,
	}
}

// NewHostSlice returns a host-visible slice whose mapped memory is mapped.
// The slice length is len(mapped).
func NewHostSlice(id BufferID, mapped []byte) BufferSlice {
	return BufferSlice{
		buffer:     id,
		length:     uint64(len(mapped)),
		visibility: HostVisible,
		mapped:     mapped,
	}
}

// Buffer returns the id of the underlying allocation.
func (s BufferSlice) Buffer() BufferID { return s.buffer }

// Offset returns the slice offset within the allocation, in bytes.
func (s BufferSlice) Offset() uint64 { return s.offset }

// Len returns the slice length in bytes.
func (s BufferSlice) Len() uint64 { return s.length }

// Visibility returns the memory classification fixed at allocation time.
func (s BufferSlice) Visibility() Visibility { return s.visibility }

// IsHostVisible reports whether the slice memory is mapped.
func (s BufferSlice) IsHostVisible() bool { return s.visibility == HostVisible }

// MapPtr returns the mapped memory starting at offset.
// It returns nil for device-local slices or an out of range offset.
func (s BufferSlice) MapPtr(offset uint64) []byte {
	if s.visibility != HostVisible || offset > uint64(len(s.mapped)) {
		return nil
	}
	return s.mapped[offset:]
}
