// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package initializer

import "github.com/gogpu/dxcore/resource"

// Strategy is the way a buffer receives its initial contents.
type Strategy uint8

const (
	// StrategyRecorded records an upload or clear command for a later flush.
	StrategyRecorded Strategy = iota

	// StrategyHostWrite writes through the host mapping immediately.
	StrategyHostWrite
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyRecorded:
		return "Recorded"
	case StrategyHostWrite:
		return "HostWrite"
	default:
		return "Unknown"
	}
}

// SelectStrategy picks the initialization path from the buffer's memory
// visibility, which is fixed when the buffer is allocated.
func SelectStrategy(buf resource.BufferSlice) Strategy {
	if buf.IsHostVisible() {
		return StrategyHostWrite
	}
	return StrategyRecorded
}
