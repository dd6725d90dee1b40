package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/dxcore"
	"github.com/gogpu/dxcore/backend/native"
	"github.com/gogpu/dxcore/initializer"
	"github.com/gogpu/dxcore/pipeline"
	"github.com/gogpu/dxcore/resource"
	"github.com/gogpu/dxcore/shader"
)

const vertexWGSL = `
@vertex
fn main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
	return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

const pixelWGSL = `
@fragment
fn main() -> @location(0) vec4<f32> {
	return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

// simulateParams are the workload parameters of the simulate command.
type simulateParams struct {
	buffers     int
	size        uint64
	hostEvery   int
	pipelines   int
	maxCommands int
	maxBytes    uint64
}

func newSimulateCmd(v *viper.Viper) *cobra.Command {
	var p simulateParams

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the device over a noop GPU device and print statistics",
		Long: `Simulate creates a dxcore device on a noop GPU device, initializes a
set of buffers and creates compute and graphics pipelines, then prints the
initializer flush and pipeline cache statistics.

Every second buffer is zero-filled, the others receive data. With
--host-every N every Nth buffer is host-visible and written directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.OutOrStdout(), v, p)
		},
	}

	cmd.Flags().IntVar(&p.buffers, "buffers", 64, "number of buffers to initialize")
	cmd.Flags().Uint64Var(&p.size, "size", 4096, "size of each buffer in bytes")
	cmd.Flags().IntVar(&p.hostEvery, "host-every", 0, "make every Nth buffer host-visible (0 for none)")
	cmd.Flags().IntVar(&p.pipelines, "pipelines", 4, "number of distinct compute pipelines")
	cmd.Flags().IntVar(&p.maxCommands, "max-commands", 0, "implicit flush command threshold (0 for default)")
	cmd.Flags().Uint64Var(&p.maxBytes, "max-bytes", 0, "implicit flush byte threshold (0 for default)")
	return cmd
}

func runSimulate(out io.Writer, v *viper.Viper, p simulateParams) (err error) {
	if p.buffers < 0 || p.pipelines < 0 || p.hostEvery < 0 {
		return errors.New("counts must not be negative")
	}
	if p.size == 0 {
		return errors.New("--size must be positive")
	}

	cfg, _, exe, err := loadConfig(v)
	if err != nil {
		return err
	}

	halDevice, queue, cleanup, err := openNoopDevice()
	if err != nil {
		return err
	}
	defer cleanup()

	backend, err := native.New(halDevice, queue, native.WithLogger(dxcore.Logger()))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, backend.Close()) }()

	d, err := dxcore.NewDevice(backend,
		dxcore.WithConfig(cfg),
		dxcore.WithExeName(exe),
		dxcore.WithInitLimits(initializer.Limits{
			MaxCommands: p.maxCommands,
			MaxBytes:    p.maxBytes,
		}))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, d.Close()) }()

	host, err := initBuffers(d, backend, p)
	if err != nil {
		return err
	}
	if err := d.Flush(); err != nil {
		return err
	}

	if err := createPipelines(d, p.pipelines); err != nil {
		return err
	}
	prewarmed := d.Prewarm()

	count := d.PipelineCount()
	hits, misses := d.PipelineManager().Stats()

	fmt.Fprintf(out, "buffers:      %d (%d host-visible)\n", p.buffers, host)
	fmt.Fprintf(out, "init flushes: %d\n", d.InitFlushes())
	fmt.Fprintf(out, "submissions:  %d\n", backend.Submissions())
	fmt.Fprintf(out, "shaders:      %d\n", d.ShaderCount())
	fmt.Fprintf(out, "pipelines:    graphics %d, compute %d\n", count.Graphics, count.Compute)
	fmt.Fprintf(out, "lookups:      %d hits, %d misses (%.2f)\n", hits, misses, d.PipelineManager().HitRate())
	if path := d.StateCachePath(); path != "" {
		fmt.Fprintf(out, "state cache:  %s (%d prewarmed)\n", path, prewarmed)
	}
	return nil
}

// initBuffers initializes p.buffers buffers and returns how many were
// host-visible.
func initBuffers(d *dxcore.Device, backend *native.Backend, p simulateParams) (int, error) {
	var host int
	payload := make([]byte, p.size)

	for i := range p.buffers {
		var buf resource.BufferSlice
		if p.hostEvery > 0 && (i+1)%p.hostEvery == 0 {
			buf = resource.NewHostSlice(resource.BufferID(i+1), make([]byte, p.size))
			host++
		} else {
			b, err := backend.CreateBuffer(p.size)
			if err != nil {
				return host, err
			}
			buf = b
		}

		var data []byte
		if i%2 == 1 {
			for j := range payload {
				payload[j] = byte(i)
			}
			data = payload
		}
		if err := d.InitBuffer(buf, data); err != nil {
			return host, fmt.Errorf("init buffer %d: %w", i, err)
		}
	}
	return host, nil
}

// createPipelines creates n distinct compute pipelines and one graphics
// pipeline, requesting each twice.
func createPipelines(d *dxcore.Device, n int) error {
	for i := range n {
		src := fmt.Sprintf("@compute @workgroup_size(%d)\nfn main() {\n}\n", i+1)
		cs, err := d.CreateShaderWGSL(shader.Compute, src, "main")
		if err != nil {
			return err
		}
		for range 2 {
			p := d.CreateComputePipeline(pipeline.ComputeShaders{CS: cs})
			if _, err := p.Handle(); err != nil {
				return err
			}
		}
	}

	vs, err := d.CreateShaderWGSL(shader.Vertex, vertexWGSL, "main")
	if err != nil {
		return err
	}
	ps, err := d.CreateShaderWGSL(shader.Pixel, pixelWGSL, "main")
	if err != nil {
		return err
	}
	for range 2 {
		p := d.CreateGraphicsPipeline(pipeline.GraphicsShaders{VS: vs, PS: ps})
		if _, err := p.Handle(); err != nil {
			return err
		}
	}
	return nil
}

// openNoopDevice opens the first adapter of the noop HAL backend.
func openNoopDevice() (hal.Device, hal.Queue, func(), error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, errors.New("no noop adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("open adapter: %w", err)
	}
	cleanup := func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return open.Device, open.Queue, cleanup, nil
}
