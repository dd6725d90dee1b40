// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dxcore/shader"
)

// Handle identifies a backend pipeline object.
// The zero value is reserved as invalid.
type Handle uint64

// InvalidHandle is the zero Handle.
const InvalidHandle Handle = 0

// Compiler creates and destroys backend pipeline objects.
//
// Compile methods are called at most once per pipeline key, the first time
// the pipeline handle is requested.
type Compiler interface {
	CompileGraphicsPipeline(shaders GraphicsShaders) (Handle, error)
	CompileComputePipeline(shaders ComputeShaders) (Handle, error)
	DestroyPipeline(h Handle)
}

// GraphicsShaders is the set of shaders bound to a graphics pipeline.
// A nil field means the stage is absent. The vertex stage is mandatory.
type GraphicsShaders struct {
	VS *shader.Shader
	HS *shader.Shader
	DS *shader.Shader
	GS *shader.Shader
	PS *shader.Shader
}

// Stages returns the shaders in stage order: vertex, hull, domain, geometry, pixel.
func (s GraphicsShaders) Stages() [5]*shader.Shader {
	return [5]*shader.Shader{s.VS, s.HS, s.DS, s.GS, s.PS}
}

// graphicsShadersFromStages is the inverse of Stages.
func graphicsShadersFromStages(st [5]*shader.Shader) GraphicsShaders {
	return GraphicsShaders{VS: st[0], HS: st[1], DS: st[2], GS: st[3], PS: st[4]}
}

// ComputeShaders is the shader bound to a compute pipeline.
type ComputeShaders struct {
	CS *shader.Shader
}

// lazyHandle realizes a backend handle exactly once.
type lazyHandle struct {
	once     sync.Once
	handle   Handle
	err      error
	realized atomic.Bool
}

func (l *lazyHandle) get(compile func() (Handle, error)) (Handle, error) {
	l.once.Do(func() {
		l.handle, l.err = compile()
		l.realized.Store(l.err == nil)
	})
	return l.handle, l.err
}

// peek returns the handle if it has been realized successfully.
func (l *lazyHandle) peek() (Handle, bool) {
	if !l.realized.Load() {
		return InvalidHandle, false
	}
	return l.handle, true
}

// GraphicsPipeline is a cached graphics pipeline.
//
// The backend object is compiled on the first call to Handle. The shader set
// never changes after creation.
type GraphicsPipeline struct {
	shaders  GraphicsShaders
	compiler Compiler
	lazy     lazyHandle
}

// Shaders returns the shader set the pipeline was created for.
func (p *GraphicsPipeline) Shaders() GraphicsShaders { return p.shaders }

// Handle returns the backend pipeline, compiling it on first use.
// A compile error is remembered and returned on every later call.
func (p *GraphicsPipeline) Handle() (Handle, error) {
	return p.lazy.get(func() (Handle, error) {
		h, err := p.compiler.CompileGraphicsPipeline(p.shaders)
		if err != nil {
			return InvalidHandle, fmt.Errorf("pipeline: compile graphics pipeline %s: %w", p.shaders.VS.Name(), err)
		}
		return h, nil
	})
}

// ComputePipeline is a cached compute pipeline.
type ComputePipeline struct {
	shaders  ComputeShaders
	compiler Compiler
	lazy     lazyHandle
}

// Shaders returns the shader the pipeline was created for.
func (p *ComputePipeline) Shaders() ComputeShaders { return p.shaders }

// Handle returns the backend pipeline, compiling it on first use.
func (p *ComputePipeline) Handle() (Handle, error) {
	return p.lazy.get(func() (Handle, error) {
		h, err := p.compiler.CompileComputePipeline(p.shaders)
		if err != nil {
			return InvalidHandle, fmt.Errorf("pipeline: compile compute pipeline %s: %w", p.shaders.CS.Name(), err)
		}
		return h, nil
	})
}
