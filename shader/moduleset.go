// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import "sync"

// ModuleSet deduplicates shaders by key.
//
// Some applications compile the same shader many times. ModuleSet returns
// the first *Shader created for a key to every later request, so shader
// identity is stable for the lifetime of the set.
//
// ModuleSet is safe for concurrent use.
type ModuleSet struct {
	mu      sync.RWMutex
	modules map[Key]*Shader
}

// NewModuleSet creates an empty module set.
func NewModuleSet() *ModuleSet {
	return &ModuleSet{
		modules: make(map[Key]*Shader),
	}
}

// GetShaderModule returns the shader for the given code, creating it on first use.
func (m *ModuleSet) GetShaderModule(stage Stage, code []uint32, entryPoint string) (*Shader, error) {
	if !stage.Valid() {
		return nil, ErrInvalidStage
	}
	if len(code) == 0 {
		return nil, ErrEmptyCode
	}
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	key := NewKey(stage, code, entryPoint)

	m.mu.RLock()
	if s, ok := m.modules[key]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.modules[key]; ok {
		return s, nil
	}

	s, err := New(stage, code, entryPoint)
	if err != nil {
		return nil, err
	}
	m.modules[key] = s
	return s, nil
}

// Lookup returns the shader registered for key, if any.
func (m *ModuleSet) Lookup(key Key) (*Shader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.modules[key]
	return s, ok
}

// Len returns the number of distinct shaders in the set.
func (m *ModuleSet) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.modules)
}
