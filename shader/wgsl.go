// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile WGSL: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, ErrInvalidSPIRV
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}
