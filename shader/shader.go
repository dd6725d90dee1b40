// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader provides immutable shader identities for pipeline keys.
//
// A Shader is identified by its Key: the pipeline stage plus a SHA-1 hash of
// its SPIR-V code and entry point. ModuleSet deduplicates shaders so that an
// application compiling the same bytecode twice receives the same *Shader,
// which in turn lets pipeline keys built from those pointers compare equal.
package shader

import (
	"crypto/sha1" //nolint:gosec // identity hash, not a security boundary
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Shader errors.
var (
	// ErrEmptyCode is returned when creating a shader without code.
	ErrEmptyCode = errors.New("shader: code is empty")

	// ErrInvalidStage is returned for a stage outside the known range.
	ErrInvalidStage = errors.New("shader: invalid stage")

	// ErrInvalidSPIRV is returned when compiled output is not a whole number of words.
	ErrInvalidSPIRV = errors.New("shader: SPIR-V length is not a multiple of 4")
)

// Stage is a programmable pipeline stage.
type Stage uint8

// Pipeline stages in binding order.
const (
	Vertex Stage = iota
	Hull
	Domain
	Geometry
	Pixel
	Compute

	// StageCount is the number of stages.
	StageCount
)

var stageNames = [StageCount]string{"Vertex", "Hull", "Domain", "Geometry", "Pixel", "Compute"}

var stagePrefixes = [StageCount]string{"VS", "HS", "DS", "GS", "PS", "CS"}

// String returns the string representation of Stage.
func (s Stage) String() string {
	if s >= StageCount {
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
	return stageNames[s]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s < StageCount }

// Hash is a SHA-1 digest of shader code.
type Hash [sha1.Size]byte

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Key identifies a shader by stage and code hash.
type Key struct {
	Stage Stage
	Hash  Hash
}

// NewKey computes the key for SPIR-V code and entry point in the given stage.
func NewKey(stage Stage, code []uint32, entryPoint string) Key {
	h := sha1.New() //nolint:gosec // identity hash
	var buf [4]byte
	for _, w := range code {
		binary.LittleEndian.PutUint32(buf[:], w)
		_, _ = h.Write(buf[:])
	}
	_, _ = h.Write([]byte(entryPoint))

	k := Key{Stage: stage}
	h.Sum(k.Hash[:0])
	return k
}

// String returns the debug name of the key, e.g. "VS_3f2a...".
func (k Key) String() string {
	prefix := "XX"
	if k.Stage.Valid() {
		prefix = stagePrefixes[k.Stage]
	}
	return prefix + "_" + k.Hash.String()
}

// DefaultEntryPoint is used when a shader is created without an entry point.
const DefaultEntryPoint = "main"

// Shader is an immutable compiled shader.
type Shader struct {
	key        Key
	code       []uint32
	entryPoint string
}

// New creates a shader from SPIR-V words.
// The code is copied. An empty entryPoint selects DefaultEntryPoint.
func New(stage Stage, code []uint32, entryPoint string) (*Shader, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStage, stage)
	}
	if len(code) == 0 {
		return nil, ErrEmptyCode
	}
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}

	owned := make([]uint32, len(code))
	copy(owned, code)

	return &Shader{
		key:        NewKey(stage, owned, entryPoint),
		code:       owned,
		entryPoint: entryPoint,
	}, nil
}

// Key returns the shader identity.
func (s *Shader) Key() Key { return s.key }

// Stage returns the pipeline stage.
func (s *Shader) Stage() Stage { return s.key.Stage }

// Code returns the SPIR-V words. Callers must not modify the slice.
func (s *Shader) Code() []uint32 { return s.code }

// EntryPoint returns the entry point function name.
func (s *Shader) EntryPoint() string { return s.entryPoint }

// Name returns the debug name of the shader.
func (s *Shader) Name() string { return s.key.String() }
