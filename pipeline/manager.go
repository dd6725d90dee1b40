// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline caches graphics and compute pipelines per shader combination.
package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dxcore/internal/workers"
)

// ErrNilCompiler is returned when creating a manager without a compiler.
var ErrNilCompiler = errors.New("pipeline: compiler is nil")

// Count is a snapshot of live pipeline counts.
type Count struct {
	Graphics uint32
	Compute  uint32
}

// Manager creates and stores a pipeline for each shader combination used
// by the application.
//
// Client APIs have no notion of pipeline objects, so the manager derives them
// from the bound shaders. Each distinct key maps to exactly one pipeline for
// the lifetime of the manager; there is no eviction.
//
// Thread Safety:
// Manager is safe for concurrent use. Lookups take a read lock; a miss takes
// the write lock and repeats the lookup before inserting, so two concurrent
// requests for the same key never both construct a pipeline. Returned
// pointers stay valid for the lifetime of the manager.
type Manager struct {
	compiler Compiler
	logger   *slog.Logger
	workers  *workers.Pool

	// mu guards both tables.
	mu       sync.RWMutex
	graphics map[GraphicsShaders]*GraphicsPipeline
	compute  map[ComputeShaders]*ComputePipeline

	numGraphics atomic.Uint32
	numCompute  atomic.Uint32

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for pipeline diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithWorkers makes Prewarm compile on pool. The caller closes the pool
// after the manager is no longer used.
func WithWorkers(pool *workers.Pool) Option {
	return func(m *Manager) {
		m.workers = pool
	}
}

// NewManager creates an empty pipeline manager backed by compiler.
func NewManager(compiler Compiler, opts ...Option) (*Manager, error) {
	if compiler == nil {
		return nil, ErrNilCompiler
	}
	m := &Manager{
		compiler: compiler,
		logger:   slog.New(slog.DiscardHandler),
		graphics: make(map[GraphicsShaders]*GraphicsPipeline),
		compute:  make(map[ComputeShaders]*ComputePipeline),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateComputePipeline returns the compute pipeline for shaders.
//
// It returns nil, without touching any state, when the compute stage is
// absent. Callers treat nil as "nothing to dispatch".
//
//nolint:dupl // same get-or-create pattern as CreateGraphicsPipeline
func (m *Manager) CreateComputePipeline(shaders ComputeShaders) *ComputePipeline {
	if shaders.CS == nil {
		return nil
	}

	m.mu.RLock()
	if p, ok := m.compute[shaders]; ok {
		m.mu.RUnlock()
		m.hits.Add(1)
		return p
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.compute[shaders]; ok {
		m.hits.Add(1)
		return p
	}

	p := &ComputePipeline{shaders: shaders, compiler: m.compiler}
	m.compute[shaders] = p
	m.numCompute.Add(1)
	m.misses.Add(1)

	m.logger.Debug("pipeline: created compute pipeline", "cs", shaders.CS.Name())
	return p
}

// CreateGraphicsPipeline returns the graphics pipeline for shaders.
//
// It returns nil when the vertex stage is absent, whatever other stages
// are set.
//
//nolint:dupl // same get-or-create pattern as CreateComputePipeline
func (m *Manager) CreateGraphicsPipeline(shaders GraphicsShaders) *GraphicsPipeline {
	if shaders.VS == nil {
		return nil
	}

	m.mu.RLock()
	if p, ok := m.graphics[shaders]; ok {
		m.mu.RUnlock()
		m.hits.Add(1)
		return p
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.graphics[shaders]; ok {
		m.hits.Add(1)
		return p
	}

	p := &GraphicsPipeline{shaders: shaders, compiler: m.compiler}
	m.graphics[shaders] = p
	m.numGraphics.Add(1)
	m.misses.Add(1)

	m.logger.Debug("pipeline: created graphics pipeline", "vs", shaders.VS.Name())
	return p
}

// PipelineCount returns the number of graphics and compute pipelines.
// The counters are read without locking and may lag concurrent inserts.
func (m *Manager) PipelineCount() Count {
	return Count{
		Graphics: m.numGraphics.Load(),
		Compute:  m.numCompute.Load(),
	}
}

// Stats returns the number of lookups that found an existing pipeline
// and the number that created one.
func (m *Manager) Stats() (hits, misses uint64) {
	return m.hits.Load(), m.misses.Load()
}

// HitRate returns the fraction of lookups served from the cache (0.0 to 1.0).
func (m *Manager) HitRate() float64 {
	hits, misses := m.Stats()
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Snapshot returns the keys of all cached pipelines.
func (m *Manager) Snapshot() ([]GraphicsShaders, []ComputeShaders) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	graphics := make([]GraphicsShaders, 0, len(m.graphics))
	for k := range m.graphics {
		graphics = append(graphics, k)
	}
	compute := make([]ComputeShaders, 0, len(m.compute))
	for k := range m.compute {
		compute = append(compute, k)
	}
	return graphics, compute
}

// Destroy releases every realized backend pipeline and empties the manager.
//
// Destroy is part of device teardown: no pipeline returned earlier may be
// used afterwards. Live counters are left as they were.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.graphics {
		if h, ok := p.lazy.peek(); ok {
			m.compiler.DestroyPipeline(h)
		}
	}
	for _, p := range m.compute {
		if h, ok := p.lazy.peek(); ok {
			m.compiler.DestroyPipeline(h)
		}
	}

	m.graphics = make(map[GraphicsShaders]*GraphicsPipeline)
	m.compute = make(map[ComputeShaders]*ComputePipeline)
}

// Prewarm creates and compiles the pipelines of every entry whose shaders
// all resolve. Entries with unknown shaders are skipped. It returns the
// number of pipelines compiled successfully.
//
// With WithWorkers the compiles run on the pool and Prewarm waits for them;
// otherwise they run on the calling goroutine.
func (m *Manager) Prewarm(entries []CacheEntry, resolve Resolver) int {
	jobs := make([]func() error, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case KindGraphics:
			key, ok := e.resolveGraphics(resolve)
			if !ok {
				continue
			}
			if p := m.CreateGraphicsPipeline(key); p != nil {
				jobs = append(jobs, func() error { _, err := p.Handle(); return err })
			}
		case KindCompute:
			key, ok := e.resolveCompute(resolve)
			if !ok {
				continue
			}
			if p := m.CreateComputePipeline(key); p != nil {
				jobs = append(jobs, func() error { _, err := p.Handle(); return err })
			}
		}
	}

	var compiled atomic.Int64
	run := func(job func() error) {
		if err := job(); err != nil {
			m.logger.Warn("pipeline: prewarm failed", "error", err)
			return
		}
		compiled.Add(1)
	}

	if m.workers == nil {
		for _, job := range jobs {
			run(job)
		}
		return int(compiled.Load())
	}

	tasks := make([]func(), len(jobs))
	for i, job := range jobs {
		tasks[i] = func() { run(job) }
	}
	m.workers.Run(tasks)
	return int(compiled.Load())
}
