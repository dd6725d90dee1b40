package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dxcore/pipeline"
	"github.com/gogpu/dxcore/shader"
)

// CompileGraphicsPipeline creates a render pipeline for s.
//
// Pipelines use an empty layout and a single color target. Hull, domain
// and geometry stages are rejected with ErrUnsupportedStage.
func (b *Backend) CompileGraphicsPipeline(s pipeline.GraphicsShaders) (pipeline.Handle, error) {
	if s.HS != nil || s.DS != nil || s.GS != nil {
		return pipeline.InvalidHandle, ErrUnsupportedStage
	}
	if b.isClosed() {
		return pipeline.InvalidHandle, ErrClosed
	}

	layout, err := b.pipelineLayout()
	if err != nil {
		return pipeline.InvalidHandle, err
	}
	vs, err := b.shaderModule(s.VS)
	if err != nil {
		return pipeline.InvalidHandle, err
	}

	var fragment *hal.FragmentState
	if s.PS != nil {
		ps, err := b.shaderModule(s.PS)
		if err != nil {
			return pipeline.InvalidHandle, err
		}
		fragment = &hal.FragmentState{
			Module:     ps,
			EntryPoint: s.PS.EntryPoint(),
			Targets: []gputypes.ColorTargetState{
				{
					Format:    b.colorFormat,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		}
	}

	p, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "graphics_" + s.VS.Name(),
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: s.VS.EntryPoint(),
		},
		Fragment: fragment,
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return pipeline.InvalidHandle, fmt.Errorf("native: create render pipeline: %w", err)
	}

	h := pipeline.Handle(b.nextHandle.Add(1))
	b.mu.Lock()
	b.render[h] = p
	b.mu.Unlock()

	b.logger.Debug("native: render pipeline created", "vs", s.VS.Name(), "handle", uint64(h))
	return h, nil
}

// CompileComputePipeline creates a compute pipeline for s.
func (b *Backend) CompileComputePipeline(s pipeline.ComputeShaders) (pipeline.Handle, error) {
	if b.isClosed() {
		return pipeline.InvalidHandle, ErrClosed
	}

	layout, err := b.pipelineLayout()
	if err != nil {
		return pipeline.InvalidHandle, err
	}
	cs, err := b.shaderModule(s.CS)
	if err != nil {
		return pipeline.InvalidHandle, err
	}

	p, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "compute_" + s.CS.Name(),
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     cs,
			EntryPoint: s.CS.EntryPoint(),
		},
	})
	if err != nil {
		return pipeline.InvalidHandle, fmt.Errorf("native: create compute pipeline: %w", err)
	}

	h := pipeline.Handle(b.nextHandle.Add(1))
	b.mu.Lock()
	b.compute[h] = p
	b.mu.Unlock()

	b.logger.Debug("native: compute pipeline created", "cs", s.CS.Name(), "handle", uint64(h))
	return h, nil
}

// DestroyPipeline releases the pipeline behind h. Unknown handles are ignored.
func (b *Backend) DestroyPipeline(h pipeline.Handle) {
	b.mu.Lock()
	rp, isRender := b.render[h]
	cp, isCompute := b.compute[h]
	delete(b.render, h)
	delete(b.compute, h)
	b.mu.Unlock()

	if isRender {
		b.device.DestroyRenderPipeline(rp)
	}
	if isCompute {
		b.device.DestroyComputePipeline(cp)
	}
}

// PipelineCount returns the number of live render and compute pipelines.
func (b *Backend) PipelineCount() (render, compute int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.render), len(b.compute)
}

// shaderModule returns the HAL module for s, creating it on first use.
func (b *Backend) shaderModule(s *shader.Shader) (hal.ShaderModule, error) {
	b.mu.RLock()
	m, ok := b.modules[s.Key()]
	b.mu.RUnlock()
	if ok {
		return m, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.modules[s.Key()]; ok {
		return m, nil
	}
	m, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: s.Name(),
		Source: hal.ShaderSource{
			SPIRV: s.Code(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create shader module %s: %w", s.Name(), err)
	}
	b.modules[s.Key()] = m
	return m, nil
}

// pipelineLayout returns the shared empty pipeline layout.
func (b *Backend) pipelineLayout() (hal.PipelineLayout, error) {
	b.mu.RLock()
	layout := b.layout
	b.mu.RUnlock()
	if layout != nil {
		return layout, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.layout != nil {
		return b.layout, nil
	}
	layout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "dxcore_empty_layout",
	})
	if err != nil {
		return nil, fmt.Errorf("native: create pipeline layout: %w", err)
	}
	b.layout = layout
	return layout, nil
}
