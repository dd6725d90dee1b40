// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/dxcore/internal/workers"
	"github.com/gogpu/dxcore/shader"
)

func TestEntryFromGraphicsMask(t *testing.T) {
	vs := mockShader(t, shader.Vertex, 1)
	ps := mockShader(t, shader.Pixel, 2)

	e := EntryFromGraphics(GraphicsShaders{VS: vs, PS: ps})
	if e.Kind != KindGraphics {
		t.Errorf("Kind = %d, want KindGraphics", e.Kind)
	}
	if e.Mask != 0b10001 {
		t.Errorf("Mask = %#b, want 0b10001", e.Mask)
	}
	if e.Hashes[0] != vs.Key().Hash || e.Hashes[4] != ps.Key().Hash {
		t.Error("stage hashes not stored in stage slots")
	}
	if e.Hashes[1] != (shader.Hash{}) {
		t.Error("absent stage slot is not zero")
	}
}

func TestStateCacheAddDeduplicates(t *testing.T) {
	c := NewStateCache()
	e := EntryFromCompute(ComputeShaders{CS: mockShader(t, shader.Compute, 1)})

	if !c.Add(e) {
		t.Error("first Add() = false, want true")
	}
	if c.Add(e) {
		t.Error("second Add() = true, want false")
	}
	if c.Add(CacheEntry{Kind: KindGraphics}) {
		t.Error("Add() accepted a graphics entry without a vertex stage")
	}
	if c.Add(CacheEntry{Kind: 9, Mask: 1}) {
		t.Error("Add() accepted an unknown kind")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestStateCacheRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	m.CreateGraphicsPipeline(GraphicsShaders{
		VS: mockShader(t, shader.Vertex, 1),
		GS: mockShader(t, shader.Geometry, 2),
		PS: mockShader(t, shader.Pixel, 3),
	})
	m.CreateGraphicsPipeline(GraphicsShaders{VS: mockShader(t, shader.Vertex, 4)})
	m.CreateComputePipeline(ComputeShaders{CS: mockShader(t, shader.Compute, 5)})

	c := NewStateCache()
	if got := c.AddFrom(m); got != 3 {
		t.Fatalf("AddFrom() = %d, want 3", got)
	}
	if got := c.AddFrom(m); got != 0 {
		t.Errorf("second AddFrom() = %d, want 0", got)
	}

	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo() = %d, buffer holds %d bytes", n, buf.Len())
	}

	got, err := ReadStateCache(&buf)
	if err != nil {
		t.Fatalf("ReadStateCache() error = %v", err)
	}
	if diff := cmp.Diff(c.Entries(), got.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestReadStateCacheErrors(t *testing.T) {
	c := NewStateCache()
	c.Add(EntryFromCompute(ComputeShaders{CS: mockShader(t, shader.Compute, 1)}))
	var good bytes.Buffer
	if _, err := c.WriteTo(&good); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	badMagic := append([]byte(nil), good.Bytes()...)
	copy(badMagic, "NOPE")

	badVersion := append([]byte(nil), good.Bytes()...)
	badVersion[4] = 0xFF

	truncated := good.Bytes()[:stateCacheHeaderSize]

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte("DXSC")},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"missing entries", truncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadStateCache(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrStateCacheFormat) {
				t.Errorf("ReadStateCache() error = %v, want ErrStateCacheFormat", err)
			}
		})
	}
}

func TestStateCacheSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := StateCachePath(filepath.Join(dir, "nested"), "game.exe")
	if filepath.Base(path) != "game"+StateCacheExt {
		t.Errorf("StateCachePath() = %q, want game%s", path, StateCacheExt)
	}

	c := NewStateCache()
	c.Add(EntryFromGraphics(GraphicsShaders{VS: mockShader(t, shader.Vertex, 1)}))
	if err := c.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadStateCache(path)
	if err != nil {
		t.Fatalf("LoadStateCache() error = %v", err)
	}
	if diff := cmp.Diff(c.Entries(), loaded.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadStateCacheMissing(t *testing.T) {
	c, err := LoadStateCache(filepath.Join(t.TempDir(), "absent.dxsc"))
	if err != nil {
		t.Fatalf("LoadStateCache() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLoadStateCacheCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dxsc")
	if err := os.WriteFile(path, []byte("garbage data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStateCache(path); !errors.Is(err, ErrStateCacheFormat) {
		t.Errorf("LoadStateCache() error = %v, want ErrStateCacheFormat", err)
	}
}

func TestStateCachePathDefault(t *testing.T) {
	tests := []struct {
		exe  string
		want string
	}{
		{"app.exe", "app.dxsc"},
		{"/usr/bin/tool", "tool.dxsc"},
		{"", "dxcore.dxsc"},
	}
	for _, tt := range tests {
		if got := filepath.Base(StateCachePath("cache", tt.exe)); got != tt.want {
			t.Errorf("StateCachePath(%q) base = %q, want %q", tt.exe, got, tt.want)
		}
	}
}

func TestPrewarm(t *testing.T) {
	set := shader.NewModuleSet()
	vs, err := set.GetShaderModule(shader.Vertex, []uint32{0x07230203, 1}, "main")
	if err != nil {
		t.Fatal(err)
	}
	ps, err := set.GetShaderModule(shader.Pixel, []uint32{0x07230203, 2}, "main")
	if err != nil {
		t.Fatal(err)
	}
	cs, err := set.GetShaderModule(shader.Compute, []uint32{0x07230203, 3}, "main")
	if err != nil {
		t.Fatal(err)
	}
	unknown := mockShader(t, shader.Pixel, 99)

	entries := []CacheEntry{
		EntryFromGraphics(GraphicsShaders{VS: vs, PS: ps}),
		EntryFromCompute(ComputeShaders{CS: cs}),
		EntryFromGraphics(GraphicsShaders{VS: vs, PS: unknown}),
	}

	m, c := newTestManager(t)
	if got := m.Prewarm(entries, set.Lookup); got != 2 {
		t.Errorf("Prewarm() = %d, want 2", got)
	}
	if c.graphics != 1 || c.compute != 1 {
		t.Errorf("compiled %d graphics / %d compute, want 1 / 1", c.graphics, c.compute)
	}

	// Prewarmed pipelines are served from the cache afterwards.
	if got := m.PipelineCount(); got != (Count{Graphics: 1, Compute: 1}) {
		t.Errorf("PipelineCount() = %+v, want {1 1}", got)
	}
	m.CreateGraphicsPipeline(GraphicsShaders{VS: vs, PS: ps})
	if c.graphics != 1 {
		t.Errorf("backend compiled again after prewarm")
	}
}

func TestPrewarmCompileFailure(t *testing.T) {
	set := shader.NewModuleSet()
	cs, err := set.GetShaderModule(shader.Compute, []uint32{0x07230203, 3}, "main")
	if err != nil {
		t.Fatal(err)
	}

	m, c := newTestManager(t)
	c.fail = errors.New("unsupported")
	if got := m.Prewarm([]CacheEntry{EntryFromCompute(ComputeShaders{CS: cs})}, set.Lookup); got != 0 {
		t.Errorf("Prewarm() = %d, want 0", got)
	}
}

func TestPrewarmWorkers(t *testing.T) {
	pool := workers.New(4)
	defer pool.Close()

	set := shader.NewModuleSet()
	entries := make([]CacheEntry, 0, 32)
	for i := range uint32(32) {
		cs, err := set.GetShaderModule(shader.Compute, []uint32{0x07230203, 100 + i}, "main")
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, EntryFromCompute(ComputeShaders{CS: cs}))
	}

	c := &mockCompiler{}
	m, err := NewManager(c, WithWorkers(pool))
	if err != nil {
		t.Fatal(err)
	}

	if got := m.Prewarm(entries, set.Lookup); got != 32 {
		t.Errorf("Prewarm() = %d, want 32", got)
	}
	if c.compute != 32 {
		t.Errorf("compiled %d compute pipelines, want 32", c.compute)
	}
}
