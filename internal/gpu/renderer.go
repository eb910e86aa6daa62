// Package gpu dispatches the deep-zoom Mandelbrot kernel through the
// wgpu HAL. It owns the compute pipeline, respecializes the kernel when
// the coordinate word count changes, and reads packed depth results back
// to the host.
package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/mandelzoom"
)

//go:embed mandelbrot.wgsl
var shaderTemplate string

const (
	// wordCountAnchor is the line the template rewrite targets. The
	// kernel bakes the word count in as a constant, so a width change
	// means a full pipeline rebuild.
	wordCountAnchor = "const WORD_COUNT: u32 = 8;"

	// fenceTimeout is the maximum time to wait for GPU work to complete.
	fenceTimeout = 5 * time.Second
)

// Calibration coordinate: the top-left corner of the largest 16:10
// rectangle inscribed in the main cardioid. Every pixel of a view
// anchored here iterates to the depth limit without escaping, which
// makes frame timing at a given word count reproducible.
const (
	calibrationX = -0.6827560061104002
	calibrationY = -0.2914862451646308
)

// bindings holds the per-view buffer set for one dispatch target.
type bindings struct {
	params    hal.Buffer
	result    hal.Buffer
	state     hal.Buffer
	bindGroup hal.BindGroup

	// pendingReset means the params buffer still carries the reset flag
	// from the last full write; the first dispatch consumes it.
	pendingReset bool
}

// Renderer runs the Mandelbrot kernel on a HAL device. It keeps two
// dispatch targets: the view bindings, iterated incrementally across
// frames, and the calibration bindings, restarted every calibration
// pass so the balancer can time a known workload.
//
// Renderer methods are safe for concurrent use, though the intended
// caller is a single render loop.
type Renderer struct {
	mu sync.Mutex

	instance   hal.Instance
	device     hal.Device
	queue      hal.Queue
	ownsDevice bool

	shaderModule   hal.ShaderModule
	bgLayout       hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.ComputePipeline
	wordCount      int

	view        bindings
	calibration bindings
	staging     hal.Buffer

	dims       mandelzoom.Dimensions
	resultSize uint64
	depthLimit uint32
	depth      uint32
}

// halProvider is the structural interface a host GPU context implements
// to share its device with the renderer.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// New creates a renderer on a standalone Vulkan device. This is the
// path taken when no host application shares a device.
func New() (*Renderer, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("mandelzoom gpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("mandelzoom gpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("mandelzoom gpu: no adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("mandelzoom gpu: open device: %w", err)
	}

	mandelzoom.Logger().Info("gpu renderer initialized",
		"adapter", selected.Info.Name, "standalone", true)
	return &Renderer{
		instance:   instance,
		device:     openDev.Device,
		queue:      openDev.Queue,
		ownsDevice: true,
	}, nil
}

// NewWithProvider creates a renderer on a device shared by the host
// application. The provider either exposes HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue, or implements
// DeviceHandle with hal-backed device and queue objects.
func NewWithProvider(provider any) (*Renderer, error) {
	var device hal.Device
	var queue hal.Queue

	switch p := provider.(type) {
	case halProvider:
		var ok bool
		if device, ok = p.HalDevice().(hal.Device); !ok {
			return nil, fmt.Errorf("mandelzoom gpu: provider HalDevice is not hal.Device")
		}
		if queue, ok = p.HalQueue().(hal.Queue); !ok {
			return nil, fmt.Errorf("mandelzoom gpu: provider HalQueue is not hal.Queue")
		}
	case DeviceHandle:
		var ok bool
		if device, ok = p.Device().(hal.Device); !ok {
			return nil, fmt.Errorf("mandelzoom gpu: device handle is not hal-backed")
		}
		if queue, ok = p.Queue().(hal.Queue); !ok {
			return nil, fmt.Errorf("mandelzoom gpu: queue handle is not hal-backed")
		}
	default:
		return nil, fmt.Errorf("mandelzoom gpu: provider does not expose device access")
	}

	mandelzoom.Logger().Info("gpu renderer initialized", "standalone", false)
	return &Renderer{device: device, queue: queue}, nil
}

// buildPipeline compiles the kernel for the given word count and
// replaces any previous pipeline.
func (r *Renderer) buildPipeline(wordCount int) error {
	src := strings.Replace(shaderTemplate, wordCountAnchor,
		fmt.Sprintf("const WORD_COUNT: u32 = %d;", wordCount), 1)

	module, err := r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mandelbrot",
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return fmt.Errorf("mandelzoom gpu: create shader module: %w", err)
	}

	storageRO := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}
	bgLayout, err := r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "mandelbrot_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{storageRO, storageRW(1), storageRW(2)},
	})
	if err != nil {
		r.device.DestroyShaderModule(module)
		return fmt.Errorf("mandelzoom gpu: create bind group layout: %w", err)
	}

	pipelineLayout, err := r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "mandelbrot_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		r.device.DestroyBindGroupLayout(bgLayout)
		r.device.DestroyShaderModule(module)
		return fmt.Errorf("mandelzoom gpu: create pipeline layout: %w", err)
	}

	pipeline, err := r.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "mandelbrot",
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		r.device.DestroyPipelineLayout(pipelineLayout)
		r.device.DestroyBindGroupLayout(bgLayout)
		r.device.DestroyShaderModule(module)
		return fmt.Errorf("mandelzoom gpu: create compute pipeline: %w", err)
	}

	r.destroyPipeline()
	r.shaderModule = module
	r.bgLayout = bgLayout
	r.pipelineLayout = pipelineLayout
	r.pipeline = pipeline
	r.wordCount = wordCount

	mandelzoom.Logger().Info("kernel respecialized", "words", wordCount)
	return nil
}

func (r *Renderer) destroyPipeline() {
	if r.pipeline != nil {
		r.device.DestroyComputePipeline(r.pipeline)
		r.pipeline = nil
	}
	if r.pipelineLayout != nil {
		r.device.DestroyPipelineLayout(r.pipelineLayout)
		r.pipelineLayout = nil
	}
	if r.bgLayout != nil {
		r.device.DestroyBindGroupLayout(r.bgLayout)
		r.bgLayout = nil
	}
	if r.shaderModule != nil {
		r.device.DestroyShaderModule(r.shaderModule)
		r.shaderModule = nil
	}
}

// createBindings allocates the buffer set for one dispatch target and
// writes the full params block with the reset flag set.
func (r *Renderer) createBindings(params *Params) (bindings, error) {
	wordCount := params.Coords.Size()
	alignedWidth := uint64(params.Size.AlignedWidth(rowAlign))
	height := uint64(params.Size.Height)

	var b bindings
	var err error

	b.params, err = r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_params",
		Size:  uint64(ParamsSize(wordCount)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return b, fmt.Errorf("mandelzoom gpu: create params buffer: %w", err)
	}

	b.result, err = r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_result",
		Size:  4 * alignedWidth * height,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		r.destroyBindings(&b)
		return b, fmt.Errorf("mandelzoom gpu: create result buffer: %w", err)
	}

	// Orbit state: x and y at the full width, per pixel.
	b.state, err = r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_state",
		Size:  2 * uint64(wordCount) * 4 * alignedWidth * height,
		Usage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		r.destroyBindings(&b)
		return b, fmt.Errorf("mandelzoom gpu: create state buffer: %w", err)
	}

	entry := func(binding uint32, buf hal.Buffer, size uint64) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: size},
		}
	}
	b.bindGroup, err = r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "mandelbrot_bg",
		Layout: r.bgLayout,
		Entries: []gputypes.BindGroupEntry{
			entry(0, b.params, uint64(ParamsSize(wordCount))),
			entry(1, b.result, 4*alignedWidth*height),
			entry(2, b.state, 2*uint64(wordCount)*4*alignedWidth*height),
		},
	})
	if err != nil {
		r.destroyBindings(&b)
		return b, fmt.Errorf("mandelzoom gpu: create bind group: %w", err)
	}

	r.queue.WriteBuffer(b.params, 0, params.Encode())
	b.pendingReset = true
	return b, nil
}

func (r *Renderer) destroyBindings(b *bindings) {
	if b.bindGroup != nil {
		r.device.DestroyBindGroup(b.bindGroup)
	}
	if b.state != nil {
		r.device.DestroyBuffer(b.state)
	}
	if b.result != nil {
		r.device.DestroyBuffer(b.result)
	}
	if b.params != nil {
		r.device.DestroyBuffer(b.params)
	}
	*b = bindings{}
}

// Configure prepares the renderer for a view: it rebuilds the pipeline
// when the coordinate width changed, reallocates both dispatch targets,
// and resets the iteration depth. dims is the render grid: one pixel per
// coordinate step.
func (r *Renderer) Configure(dims mandelzoom.Dimensions, coords *mandelzoom.Coordinates, depthLimit uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wordCount := coords.Size()
	if r.pipeline == nil || wordCount != r.wordCount {
		if err := r.buildPipeline(wordCount); err != nil {
			return err
		}
	}

	r.releaseTargetsLocked()

	view, err := r.createBindings(&Params{
		DepthLimit: 0,
		Reset:      true,
		Size:       dims,
		Coords:     coords,
	})
	if err != nil {
		return err
	}

	calibCoords, err := mandelzoom.NewMagnifiedCoordinates(
		calibrationX, calibrationY, wordCount, coords.Precision())
	if err != nil {
		r.destroyBindings(&view)
		return fmt.Errorf("mandelzoom gpu: calibration coordinates: %w", err)
	}
	calibration, err := r.createBindings(&Params{
		DepthLimit: 0,
		Reset:      true,
		Size:       dims,
		Coords:     &calibCoords,
	})
	if err != nil {
		r.destroyBindings(&view)
		return err
	}

	resultSize := 4 * uint64(dims.AlignedWidth(rowAlign)) * uint64(dims.Height)
	staging, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_staging",
		Size:  resultSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		r.destroyBindings(&view)
		r.destroyBindings(&calibration)
		return fmt.Errorf("mandelzoom gpu: create staging buffer: %w", err)
	}

	r.view = view
	r.calibration = calibration
	r.staging = staging
	r.dims = dims
	r.resultSize = resultSize
	r.depthLimit = depthLimit
	r.depth = 0

	mandelzoom.Logger().Debug("gpu configured",
		"width", dims.AlignedWidth(rowAlign), "height", dims.Height,
		"words", wordCount, "depth_limit", depthLimit)
	return nil
}

// Depth returns the cumulative iteration depth reached so far.
func (r *Renderer) Depth() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth
}

// Done reports whether the view has been iterated to the depth limit.
func (r *Renderer) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth >= r.depthLimit
}

// Iterate advances the view by at most budget iterations, waits for the
// GPU, and reads the packed per-pixel results into dst, which must hold
// alignedWidth*height words.
func (r *Renderer) Iterate(budget uint32, dst []uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.view.bindGroup == nil {
		return fmt.Errorf("mandelzoom gpu: renderer not configured")
	}

	r.depth = min(r.depth+budget, r.depthLimit)
	r.writeHeader(&r.view, r.depth)

	if err := r.dispatch(&r.view, true); err != nil {
		return err
	}
	return r.readResults(dst)
}

// Calibrate runs the kernel over the calibration view from scratch with
// the given iteration budget, without reading results back. The caller
// times the call.
func (r *Renderer) Calibrate(budget uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.calibration.bindGroup == nil {
		return fmt.Errorf("mandelzoom gpu: renderer not configured")
	}

	// Calibration always restarts so that each pass measures the same
	// workload.
	r.calibration.pendingReset = true
	r.writeHeader(&r.calibration, budget)
	return r.dispatch(&r.calibration, false)
}

// writeHeader updates the depth limit and reset flag words of a params
// buffer, preserving the coordinate payload behind them.
func (r *Renderer) writeHeader(b *bindings, depthLimit uint32) {
	r.queue.WriteBuffer(b.params, 0, EncodeIterate(depthLimit, b.pendingReset))
	b.pendingReset = false
}

// dispatch encodes one compute pass over the full grid and waits for the
// fence. When copyResults is set, the result buffer is copied into the
// staging buffer inside the same submission.
func (r *Renderer) dispatch(b *bindings, copyResults bool) error {
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "mandelbrot_compute",
	})
	if err != nil {
		return fmt.Errorf("mandelzoom gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("mandelbrot_compute"); err != nil {
		return fmt.Errorf("mandelzoom gpu: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "mandelbrot"})
	pass.SetPipeline(r.pipeline)
	pass.SetBindGroup(0, b.bindGroup, nil)
	pass.Dispatch(r.dims.AlignedWidth(rowAlign)/rowAlign, r.dims.Height, 1)
	pass.End()

	if copyResults {
		encoder.CopyBufferToBuffer(b.result, r.staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: r.resultSize},
		})
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("mandelzoom gpu: end encoding: %w", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("mandelzoom gpu: create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("mandelzoom gpu: submit: %w", err)
	}
	ok, err := r.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("mandelzoom gpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("mandelzoom gpu: timeout after %v", fenceTimeout)
	}
	return nil
}

// readResults decodes the staging buffer into dst.
func (r *Renderer) readResults(dst []uint32) error {
	if uint64(len(dst))*4 < r.resultSize {
		return fmt.Errorf("mandelzoom gpu: result slice too small: %d words for %d bytes",
			len(dst), r.resultSize)
	}
	readback := make([]byte, r.resultSize)
	if err := r.queue.ReadBuffer(r.staging, 0, readback); err != nil {
		return fmt.Errorf("mandelzoom gpu: readback: %w", err)
	}
	for i := range r.resultSize / 4 {
		dst[i] = binary.LittleEndian.Uint32(readback[i*4:])
	}
	return nil
}

func (r *Renderer) releaseTargetsLocked() {
	r.destroyBindings(&r.view)
	r.destroyBindings(&r.calibration)
	if r.staging != nil {
		r.device.DestroyBuffer(r.staging)
		r.staging = nil
	}
}

// Close releases all GPU resources. A renderer created with New also
// owns its device and instance and destroys them here.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseTargetsLocked()
	r.destroyPipeline()

	if r.ownsDevice {
		if r.device != nil {
			r.device.Destroy()
			r.device = nil
		}
		if r.instance != nil {
			r.instance.Destroy()
			r.instance = nil
		}
	}
}
