// Package render turns a captured frame into pixels ready for the RFB
// encoder: it uploads either host-memory (SHM) or GPU-resident (DMA-BUF)
// frame data into a GPU texture through a real shader pipeline, generates a
// mip chain for it, and reads the result back for encoding. A second GPU
// pipeline diffs each new texture against the previous one to produce the
// damage tiles the encoder uses to avoid re-sending unchanged regions.
package render

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sys/unix"

	"github.com/wlrfb/wlrfb/pkg/capture"
)

// Queue is the subset of command submission a Renderer needs, extended with
// a synchronous buffer readback beyond what the generic hal.Queue interface
// exposes. Concrete backend queues (e.g. *vulkan.Queue) that already
// implement hal.Queue and a ReadBuffer method satisfy this directly.
type Queue interface {
	hal.Queue
	ReadBuffer(buf hal.Buffer, offset uint64, dst []byte) error
}

// mipLevelsFor returns the mip chain depth for a width x height texture,
// matching the usual floor(log2(max(w,h)))+1 rule.
func mipLevelsFor(width, height int) int {
	levels := 1
	for max(width, height)>>uint(levels) > 0 {
		levels++
	}
	return levels
}

// Texture is the renderer's handle on one uploaded frame: the live GPU
// texture plus the geometry and mip depth it was created with.
type Texture struct {
	tex       hal.Texture
	view0     hal.TextureView // level-0 view, used for sampling in the damage pass
	width     int
	height    int
	mipLevels int
	format    gputypes.TextureFormat
}

func (t *Texture) Width() int  { return t.width }
func (t *Texture) Height() int { return t.height }

// SourceFormat declares the byte order the captured frames arrive in. The
// compositor's ARGB/XRGB wire formats are BGRA bytes in memory on little-
// endian, so that is the default; true per-frame format detection isn't
// something the capture protocols offer, which is why this is configuration
// rather than negotiation.
type SourceFormat int

const (
	SourceBGRA SourceFormat = iota
	SourceRGBA
)

// Renderer owns a device/queue pair, the compiled shader pipelines, and the
// single texture currently bound to the most recent frame so it can be
// diffed against the next one.
type Renderer struct {
	log    *slog.Logger
	device hal.Device
	queue  Queue

	sampler hal.Sampler

	plain  pipeline // samples one texture, used for the SHM upload path
	mip    pipeline // identity sampling pass used for mip generation
	dmabuf pipeline // samples one texture with a Y-flip, used for the DMA-BUF path
	damage pipeline // samples two textures, writes non-zero where they differ

	current *Texture

	warnedFormats map[uint32]struct{}
}

// pipeline bundles everything needed to run one fullscreen-triangle render
// pass: the compiled shader, the bind group layout its shader expects, and
// the pipeline built against that layout. Nothing here is frame-specific;
// only the bind group (built fresh per draw from whatever textures are
// live) changes from call to call.
type pipeline struct {
	shader hal.ShaderModule
	layout hal.BindGroupLayout
	pl     hal.PipelineLayout
	rp     hal.RenderPipeline
}

// New wraps an already-opened device/queue pair and compiles the renderer's
// shader programs against it. source declares the captured frames' byte
// order; the level-0 upload pass swizzles BGRA sources into the RGBA the
// readback and the RFB encoder expect. Device/adapter/instance bring-up is
// out of scope for this package; cmd/wlrfbd owns that sequence the same way
// the example programs under gogpu-wgpu's cmd/ tree do.
func New(log *slog.Logger, device hal.Device, queue Queue, source SourceFormat) (*Renderer, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Renderer{log: log, device: device, queue: queue, warnedFormats: make(map[uint32]struct{})}

	swizzle := ""
	if source == SourceBGRA {
		swizzle = ".bgra"
	}

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "wlrfb-sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create sampler: %w", err)
	}
	r.sampler = sampler

	if r.plain, err = r.buildPipeline("wlrfb-plain", fmt.Sprintf(plainWGSL, swizzle), 1); err != nil {
		return nil, err
	}
	if r.mip, err = r.buildPipeline("wlrfb-mip", fmt.Sprintf(plainWGSL, ""), 1); err != nil {
		return nil, err
	}
	if r.dmabuf, err = r.buildPipeline("wlrfb-dmabuf", fmt.Sprintf(dmabufWGSL, swizzle), 1); err != nil {
		return nil, err
	}
	if r.damage, err = r.buildPipeline("wlrfb-damage", damageWGSL, 2); err != nil {
		return nil, err
	}
	return r, nil
}

// buildPipeline compiles one fullscreen-triangle shader program sampling
// textureCount textures (plus the shared sampler) and builds the bind group
// layout, pipeline layout, and render pipeline for it.
func (r *Renderer) buildPipeline(label, wgsl string, textureCount int) (pipeline, error) {
	shader, err := r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: wgsl},
	})
	if err != nil {
		return pipeline{}, fmt.Errorf("render: compile %s shader: %w", label, err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, 0, textureCount+1)
	for i := 0; i < textureCount; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    uint32(textureCount),
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	})

	layout, err := r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "-layout",
		Entries: entries,
	})
	if err != nil {
		return pipeline{}, fmt.Errorf("render: %s bind group layout: %w", label, err)
	}

	pl, err := r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "-pipeline-layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return pipeline{}, fmt.Errorf("render: %s pipeline layout: %w", label, err)
	}

	rp, err := r.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: pl,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatRGBA8Unorm, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
	})
	if err != nil {
		return pipeline{}, fmt.Errorf("render: %s render pipeline: %w", label, err)
	}

	return pipeline{shader: shader, layout: layout, pl: pl, rp: rp}, nil
}

// Close releases the current texture and the compiled pipelines.
func (r *Renderer) Close() {
	r.releaseCurrent()
	for _, p := range []pipeline{r.plain, r.mip, r.dmabuf, r.damage} {
		if p.rp != nil {
			r.device.DestroyRenderPipeline(p.rp)
		}
		if p.pl != nil {
			r.device.DestroyPipelineLayout(p.pl)
		}
		if p.layout != nil {
			r.device.DestroyBindGroupLayout(p.layout)
		}
		if p.shader != nil {
			r.device.DestroyShaderModule(p.shader)
		}
	}
	if r.sampler != nil {
		r.device.DestroySampler(r.sampler)
	}
}

func (r *Renderer) releaseCurrent() {
	if r.current == nil {
		return
	}
	r.device.DestroyTextureView(r.current.view0)
	r.device.DestroyTexture(r.current.tex)
	r.current = nil
}

// Upload pushes a captured frame through the plain or DMA-BUF shader
// pipeline into a fresh, mip-chained GPU texture. SHM frames upload their
// host pixels directly through the plain pipeline; DMA-BUF frames are
// memory-mapped host-side first (see mapPlanes), since the wired GPU
// binding exposes no external-memory import path, then go through the
// Y-flipping dmabuf pipeline to correct for wlr-export-dmabuf's bottom-up
// row order. The texture returned replaces whatever the renderer
// previously retained the next time Diff is called, not immediately: Diff
// is what destroys the prior texture, once it has been compared against.
func (r *Renderer) Upload(frame *capture.Frame) (*Texture, error) {
	if !capture.KnownFourcc(frame.Format) {
		if _, warned := r.warnedFormats[frame.Format]; !warned {
			r.warnedFormats[frame.Format] = struct{}{}
			r.log.Warn("frame format outside the known set, colors may be swapped",
				"fourcc", fmt.Sprintf("%#08x", frame.Format))
		}
	}

	pixels := frame.Pixels
	stride := frame.Stride
	prog := r.plain

	if frame.IsDmabuf() {
		mapped, mappedStride, err := mapPlanes(frame)
		if err != nil {
			return nil, fmt.Errorf("render: map dmabuf planes: %w", err)
		}
		defer unix.Munmap(mapped)
		pixels = mapped
		stride = mappedStride
		prog = r.dmabuf

		// The mapping stays valid after the fd closes; the backend handed
		// ownership of these fds to this upload, so they're closed here
		// rather than left for the caller.
		for _, p := range frame.Planes {
			unix.Close(p.Fd)
		}
	}

	staging, err := r.uploadStaging(pixels, stride, frame.Width, frame.Height)
	if err != nil {
		return nil, err
	}
	defer r.device.DestroyTextureView(staging.view)
	defer r.device.DestroyTexture(staging.tex)

	return r.renderMipChain(prog, staging.view, frame.Width, frame.Height)
}

type stagingTexture struct {
	tex  hal.Texture
	view hal.TextureView
}

// uploadStaging copies host pixels into a single-mip, sampleable texture
// that renderMipChain's shader pass reads from.
func (r *Renderer) uploadStaging(pixels []byte, stride, width, height int) (stagingTexture, error) {
	format := gputypes.TextureFormatRGBA8Unorm
	tex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "wlrfb-staging",
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return stagingTexture{}, fmt.Errorf("render: create staging texture: %w", err)
	}

	r.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex},
		pixels,
		&hal.ImageDataLayout{BytesPerRow: uint32(stride), RowsPerImage: uint32(height)},
		&hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
	)

	view, err := r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "wlrfb-staging-view",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		r.device.DestroyTexture(tex)
		return stagingTexture{}, fmt.Errorf("render: staging view: %w", err)
	}
	return stagingTexture{tex: tex, view: view}, nil
}

// renderMipChain allocates the renderer's new texture with a full mip
// chain and fills every level with a render pass: level 0 samples srcView
// through prog (the plain or dmabuf program, which also performs the
// Y-flip when required); each subsequent level is generated by sampling
// the previous level of the destination texture itself, the same
// mip-generation-by-blit technique used for downsampling when no dedicated
// mipmap generator is wired.
func (r *Renderer) renderMipChain(prog pipeline, srcView hal.TextureView, width, height int) (*Texture, error) {
	format := gputypes.TextureFormatRGBA8Unorm
	levels := mipLevelsFor(width, height)

	tex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "wlrfb-frame",
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: uint32(levels),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create frame texture: %w", err)
	}

	w, h := width, height
	srcOfLevel := srcView
	var prevLevelView hal.TextureView
	for level := 0; level < levels; level++ {
		dstView, err := r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label:           "wlrfb-frame-mip",
			Format:          format,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			BaseMipLevel:    uint32(level),
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
		})
		if err != nil {
			r.device.DestroyTexture(tex)
			return nil, fmt.Errorf("render: mip level %d view: %w", level, err)
		}

		if err := r.drawFullscreen(prog, []hal.TextureView{srcOfLevel}, dstView, w, h); err != nil {
			r.device.DestroyTextureView(dstView)
			r.device.DestroyTexture(tex)
			return nil, fmt.Errorf("render: mip level %d pass: %w", level, err)
		}

		if level > 0 {
			r.device.DestroyTextureView(prevLevelView)
		}
		prevLevelView = dstView
		// Level 0's Y-flip/swizzle work is already baked into its pixels;
		// every later level just downsamples the texture's own previous
		// mip, so switch to the identity pass from here on.
		prog = r.mip
		srcOfLevel = dstView
		w, h = max(1, w/2), max(1, h/2)
	}
	if levels > 1 {
		r.device.DestroyTextureView(prevLevelView)
	}

	retained, err := r.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           "wlrfb-frame-level0",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		r.device.DestroyTexture(tex)
		return nil, fmt.Errorf("render: retained level-0 view: %w", err)
	}

	return &Texture{tex: tex, view0: retained, width: width, height: height, mipLevels: levels, format: format}, nil
}

// drawFullscreen binds srcViews (in order) plus the shared sampler and runs
// one fullscreen-triangle draw into dstView.
func (r *Renderer) drawFullscreen(prog pipeline, srcViews []hal.TextureView, dstView hal.TextureView, width, height int) error {
	entries := make([]gputypes.BindGroupEntry, 0, len(srcViews)+1)
	for i, v := range srcViews {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.TextureViewBinding{TextureView: nativeHandle(v)},
		})
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  uint32(len(srcViews)),
		Resource: gputypes.SamplerBinding{Sampler: nativeHandle(r.sampler)},
	})

	bindGroup, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "wlrfb-draw",
		Layout:  prog.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer r.device.DestroyBindGroup(bindGroup)

	enc, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "wlrfb-draw"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("wlrfb-draw"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	pass := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "wlrfb-draw",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{View: dstView, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore},
		},
	})
	pass.SetPipeline(prog.rp)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.SetViewport(0, 0, float32(width), float32(height), 0, 1)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	cmd, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}

	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if ok, err := r.device.Wait(fence, 1, 0); err != nil {
		return fmt.Errorf("wait: %w", err)
	} else if !ok {
		return fmt.Errorf("draw timed out")
	}
	return nil
}

// nativeHandle extracts the backend-native handle gputypes resource
// bindings want. Concrete hal backend types (hal/gles, hal/vulkan, ...)
// implement this beyond the minimal Resource interface hal declares; the
// assertion is the defensive form of the same call the wgpu package's own
// BindGroupEntry.toHAL makes directly against its concrete types.
func nativeHandle(r interface{ Destroy() }) uintptr {
	if h, ok := r.(interface{ NativeHandle() uintptr }); ok {
		return h.NativeHandle()
	}
	return 0
}

// Diff renders the GPU damage pass comparing tex against the texture
// retained from the previous Upload/Diff call, then aggregates the
// resulting per-pixel diff into tiles. On the first call, or after a
// geometry change, there is nothing to diff against and every tile is
// reported via FullFrame instead. The previous texture is released once
// the comparison completes and tex becomes the new retained texture.
func (r *Renderer) Diff(tex *Texture) ([]Tile, error) {
	prev := r.current
	r.current = tex

	if prev == nil || prev.width != tex.width || prev.height != tex.height {
		if prev != nil {
			r.device.DestroyTextureView(prev.view0)
			r.device.DestroyTexture(prev.tex)
		}
		return FullFrame(tex.width, tex.height), nil
	}
	defer func() {
		r.device.DestroyTextureView(prev.view0)
		r.device.DestroyTexture(prev.tex)
	}()

	diffFormat := gputypes.TextureFormatRGBA8Unorm
	diffTex, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "wlrfb-diff",
		Size:          hal.Extent3D{Width: uint32(tex.width), Height: uint32(tex.height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        diffFormat,
		Usage:         gputypes.TextureUsageCopySrc | gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create diff texture: %w", err)
	}
	defer r.device.DestroyTexture(diffTex)

	diffView, err := r.device.CreateTextureView(diffTex, &hal.TextureViewDescriptor{
		Label:           "wlrfb-diff-view",
		Format:          diffFormat,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("render: diff view: %w", err)
	}
	defer r.device.DestroyTextureView(diffView)

	if err := r.drawFullscreen(r.damage, []hal.TextureView{tex.view0, prev.view0}, diffView, tex.width, tex.height); err != nil {
		return nil, fmt.Errorf("render: damage pass: %w", err)
	}

	diff, err := r.readTexture(diffTex, tex.width, tex.height)
	if err != nil {
		return nil, fmt.Errorf("render: read diff texture: %w", err)
	}

	est := NewDamageEstimator()
	est.SameGeometry(tex.width, tex.height)
	return est.TilesFromDiff(diff, tex.width, tex.height), nil
}

// Readback copies a texture's level-0 contents back into host memory as
// tightly packed RGBA8 rows, suitable for handing straight to the RFB
// encoder.
func (r *Renderer) Readback(tex *Texture) ([]byte, error) {
	return r.readTexture(tex.tex, tex.width, tex.height)
}

func (r *Renderer) readTexture(tex hal.Texture, width, height int) ([]byte, error) {
	rowBytes := width * 4
	size := uint64(rowBytes * height)

	staging, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "wlrfb-readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer r.device.DestroyBuffer(staging)

	enc, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "wlrfb-readback"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("wlrfb-readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	enc.CopyTextureToBuffer(tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: uint32(rowBytes), RowsPerImage: uint32(height)},
		TextureBase:  hal.ImageCopyTexture{Texture: tex},
		Size:         hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
	}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}

	fence, err := r.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if ok, err := r.device.Wait(fence, 1, 0); err != nil {
		return nil, fmt.Errorf("wait: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("readback timed out")
	}

	out := make([]byte, size)
	if err := r.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}
	return out, nil
}

// mapPlanes memory-maps the fds of a single-plane DMA-BUF frame and returns
// the mapping plus its row stride. Multi-planar formats (subsampled
// chroma/luma planes) are out of scope: the capture side only ever offers
// single-plane formats compatible with RGBA8 upload.
func mapPlanes(frame *capture.Frame) ([]byte, int, error) {
	if len(frame.Planes) != 1 {
		return nil, 0, fmt.Errorf("render: unsupported plane count %d", len(frame.Planes))
	}
	p := frame.Planes[0]
	mapped, err := unix.Mmap(p.Fd, int64(p.Offset), int(p.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, 0, fmt.Errorf("mmap plane fd %d: %w", p.Fd, err)
	}
	return mapped, int(p.Pitch), nil
}

// plainWGSL samples one texture in top-down row order: the SHM upload path.
// The %s slot takes the channel swizzle chosen at init ("" for RGBA
// sources, ".bgra" for the default BGRA byte order); the mip-generation
// pipeline compiles the same source with an empty swizzle.
const plainWGSL = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;

struct VSOut {
  @builtin(position) pos: vec4<f32>,
  @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> VSOut {
  var positions = array<vec2<f32>, 3>(
    vec2<f32>(-1.0, -1.0),
    vec2<f32>(3.0, -1.0),
    vec2<f32>(-1.0, 3.0),
  );
  var uvs = array<vec2<f32>, 3>(
    vec2<f32>(0.0, 1.0),
    vec2<f32>(2.0, 1.0),
    vec2<f32>(0.0, -1.0),
  );
  var out: VSOut;
  out.pos = vec4<f32>(positions[idx], 0.0, 1.0);
  out.uv = uvs[idx];
  return out;
}

@fragment
fn fs_main(in: VSOut) -> @location(0) vec4<f32> {
  return textureSample(src, samp, in.uv)%s;
}
`

// dmabufWGSL samples one texture with the V coordinate inverted: wlr's
// export-dmabuf protocol hands frames in bottom-up row order relative to
// this renderer's upload convention, so the fragment shader flips Y instead
// of the host re-copying rows.
const dmabufWGSL = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;

struct VSOut {
  @builtin(position) pos: vec4<f32>,
  @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> VSOut {
  var positions = array<vec2<f32>, 3>(
    vec2<f32>(-1.0, -1.0),
    vec2<f32>(3.0, -1.0),
    vec2<f32>(-1.0, 3.0),
  );
  var uvs = array<vec2<f32>, 3>(
    vec2<f32>(0.0, 1.0),
    vec2<f32>(2.0, 1.0),
    vec2<f32>(0.0, -1.0),
  );
  var out: VSOut;
  out.pos = vec4<f32>(positions[idx], 0.0, 1.0);
  out.uv = uvs[idx];
  return out;
}

@fragment
fn fs_main(in: VSOut) -> @location(0) vec4<f32> {
  let flipped = vec2<f32>(in.uv.x, 1.0 - in.uv.y);
  return textureSample(src, samp, flipped)%s;
}
`

// damageWGSL samples both the current and previous frame textures and
// writes a fully opaque white pixel wherever any channel differs by more
// than epsilon, zero (transparent black) where they match. The CPU side
// (TilesFromDiff) only buckets this already-computed per-pixel result into
// tiles; it never compares frame bytes itself.
const damageWGSL = `
@group(0) @binding(0) var cur: texture_2d<f32>;
@group(0) @binding(1) var prev: texture_2d<f32>;
@group(0) @binding(2) var samp: sampler;

struct VSOut {
  @builtin(position) pos: vec4<f32>,
  @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> VSOut {
  var positions = array<vec2<f32>, 3>(
    vec2<f32>(-1.0, -1.0),
    vec2<f32>(3.0, -1.0),
    vec2<f32>(-1.0, 3.0),
  );
  var uvs = array<vec2<f32>, 3>(
    vec2<f32>(0.0, 1.0),
    vec2<f32>(2.0, 1.0),
    vec2<f32>(0.0, -1.0),
  );
  var out: VSOut;
  out.pos = vec4<f32>(positions[idx], 0.0, 1.0);
  out.uv = uvs[idx];
  return out;
}

const epsilon: f32 = 1.0 / 255.0;

@fragment
fn fs_main(in: VSOut) -> @location(0) vec4<f32> {
  let a = textureSample(cur, samp, in.uv);
  let b = textureSample(prev, samp, in.uv);
  let diff = max(max(abs(a.r - b.r), abs(a.g - b.g)), max(abs(a.b - b.b), abs(a.a - b.a)));
  let signal = step(epsilon, diff);
  return vec4<f32>(signal, signal, signal, signal);
}
`
