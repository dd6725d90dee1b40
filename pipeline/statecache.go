// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/pierrec/lz4"

	"github.com/gogpu/dxcore/shader"
)

// ErrStateCacheFormat is returned when a state cache file is not recognized.
var ErrStateCacheFormat = errors.New("pipeline: invalid state cache format")

// State cache file layout.
const (
	stateCacheMagic   = "DXSC"
	stateCacheVersion = 1

	// magic + version + entry count
	stateCacheHeaderSize = 12

	// kind + mask + five hashes
	stateCacheEntrySize = 2 + 5*len(shader.Hash{})

	// StateCacheExt is the file extension of state cache files.
	StateCacheExt = ".dxsc"
)

// EntryKind distinguishes graphics and compute state cache entries.
type EntryKind uint8

// Entry kinds.
const (
	KindGraphics EntryKind = 1
	KindCompute  EntryKind = 2
)

// CacheEntry is the persistent form of a pipeline key.
//
// For graphics entries, slot i of Hashes holds the stage in Stages() order
// and bit i of Mask marks it present. Compute entries use slot 0 only.
type CacheEntry struct {
	Kind   EntryKind
	Mask   uint8
	Hashes [5]shader.Hash
}

// EntryFromGraphics converts a graphics key to a cache entry.
func EntryFromGraphics(s GraphicsShaders) CacheEntry {
	e := CacheEntry{Kind: KindGraphics}
	for i, sh := range s.Stages() {
		if sh != nil {
			e.Mask |= 1 << i
			e.Hashes[i] = sh.Key().Hash
		}
	}
	return e
}

// EntryFromCompute converts a compute key to a cache entry.
func EntryFromCompute(s ComputeShaders) CacheEntry {
	e := CacheEntry{Kind: KindCompute}
	if s.CS != nil {
		e.Mask = 1
		e.Hashes[0] = s.CS.Key().Hash
	}
	return e
}

// valid reports whether the entry can describe a pipeline at all.
func (e CacheEntry) valid() bool {
	switch e.Kind {
	case KindGraphics:
		return e.Mask&1 != 0 && e.Mask < 1<<5
	case KindCompute:
		return e.Mask == 1
	default:
		return false
	}
}

// graphicsStages maps graphics slots to shader stages.
var graphicsStages = [5]shader.Stage{shader.Vertex, shader.Hull, shader.Domain, shader.Geometry, shader.Pixel}

// Resolver looks up a shader by key.
// shader.ModuleSet.Lookup satisfies it.
type Resolver func(shader.Key) (*shader.Shader, bool)

// resolveGraphics returns the key for e if every present stage resolves.
func (e CacheEntry) resolveGraphics(resolve Resolver) (GraphicsShaders, bool) {
	var stages [5]*shader.Shader
	for i := range stages {
		if e.Mask&(1<<i) == 0 {
			continue
		}
		sh, ok := resolve(shader.Key{Stage: graphicsStages[i], Hash: e.Hashes[i]})
		if !ok {
			return GraphicsShaders{}, false
		}
		stages[i] = sh
	}
	return graphicsShadersFromStages(stages), true
}

func (e CacheEntry) resolveCompute(resolve Resolver) (ComputeShaders, bool) {
	sh, ok := resolve(shader.Key{Stage: shader.Compute, Hash: e.Hashes[0]})
	if !ok {
		return ComputeShaders{}, false
	}
	return ComputeShaders{CS: sh}, true
}

// StateCache is the set of pipeline keys an application has used, kept
// across runs so pipelines can be compiled before their first draw.
//
// StateCache is not safe for concurrent use; it is loaded when a device is
// created and written when it is closed.
type StateCache struct {
	entries []CacheEntry
	index   map[CacheEntry]struct{}
}

// NewStateCache creates an empty state cache.
func NewStateCache() *StateCache {
	return &StateCache{index: make(map[CacheEntry]struct{})}
}

// StateCachePath returns the cache file path for exeName inside dir.
func StateCachePath(dir, exeName string) string {
	base := filepath.Base(exeName)
	base = base[:len(base)-len(filepath.Ext(base))]
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "dxcore"
	}
	return filepath.Join(dir, base+StateCacheExt)
}

// Add inserts e and reports whether it was new. Invalid entries are ignored.
func (c *StateCache) Add(e CacheEntry) bool {
	if !e.valid() {
		return false
	}
	if _, ok := c.index[e]; ok {
		return false
	}
	c.index[e] = struct{}{}
	c.entries = append(c.entries, e)
	return true
}

// AddFrom records every pipeline key currently cached by m.
// It returns the number of new entries.
func (c *StateCache) AddFrom(m *Manager) int {
	graphics, compute := m.Snapshot()
	added := 0
	for _, g := range graphics {
		if c.Add(EntryFromGraphics(g)) {
			added++
		}
	}
	for _, k := range compute {
		if c.Add(EntryFromCompute(k)) {
			added++
		}
	}
	return added
}

// Entries returns the entries in insertion order.
func (c *StateCache) Entries() []CacheEntry {
	out := make([]CacheEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *StateCache) Len() int { return len(c.entries) }

// WriteTo encodes the cache: an uncompressed header followed by an lz4
// stream of fixed-size entries.
func (c *StateCache) WriteTo(w io.Writer) (int64, error) {
	var header [stateCacheHeaderSize]byte
	copy(header[0:4], stateCacheMagic)
	binary.LittleEndian.PutUint32(header[4:8], stateCacheVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(c.entries))) //nolint:gosec // entry count is bounded by distinct shader combinations

	n, err := w.Write(header[:])
	written := int64(n)
	if err != nil {
		return written, err
	}

	cw := &countingWriter{w: w}
	zw := lz4.NewWriter(cw)
	var rec [stateCacheEntrySize]byte
	for _, e := range c.entries {
		rec[0] = byte(e.Kind)
		rec[1] = e.Mask
		off := 2
		for i := range e.Hashes {
			off += copy(rec[off:], e.Hashes[i][:])
		}
		if _, err := zw.Write(rec[:]); err != nil {
			return written + cw.n, err
		}
	}
	if err := zw.Close(); err != nil {
		return written + cw.n, err
	}
	return written + cw.n, nil
}

// ReadStateCache decodes a cache written by WriteTo.
func ReadStateCache(r io.Reader) (*StateCache, error) {
	var header [stateCacheHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrStateCacheFormat, err)
	}
	if string(header[0:4]) != stateCacheMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrStateCacheFormat, header[0:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != stateCacheVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrStateCacheFormat, v)
	}
	count := binary.LittleEndian.Uint32(header[8:12])

	c := NewStateCache()
	zr := lz4.NewReader(r)
	var rec [stateCacheEntrySize]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(zr, rec[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrStateCacheFormat, i, err)
		}
		e := CacheEntry{Kind: EntryKind(rec[0]), Mask: rec[1]}
		off := 2
		for j := range e.Hashes {
			off += copy(e.Hashes[j][:], rec[off:])
		}
		if !e.valid() {
			return nil, fmt.Errorf("%w: entry %d: kind %d mask %#x", ErrStateCacheFormat, i, e.Kind, e.Mask)
		}
		c.Add(e)
	}
	return c, nil
}

// LoadStateCache reads the cache at path. A missing file yields an empty cache.
func LoadStateCache(path string) (*StateCache, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewStateCache(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: open state cache: %w", err)
	}
	defer f.Close()

	return ReadStateCache(f)
}

// Save atomically replaces the file at path with the encoded cache.
func (c *StateCache) Save(path string) error {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return fmt.Errorf("pipeline: encode state cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pipeline: create state cache dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("pipeline: write state cache: %w", err)
	}
	return nil
}

// countingWriter counts bytes passed to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
