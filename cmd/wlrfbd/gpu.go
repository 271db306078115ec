package main

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/vulkan"
	"github.com/gogpu/wgpu/hal/vulkan/vk"
)

// renderQueue adapts *vulkan.Queue to pkg/render's Queue interface, which
// extends hal.Queue with a synchronous ReadBuffer the renderer's pixel
// readback path needs. The concrete vulkan queue already implements both;
// this is only a named type so gpu.go doesn't need render to export its
// interface back into main.
type renderQueue interface {
	hal.Queue
	ReadBuffer(buf hal.Buffer, offset uint64, dst []byte) error
}

// openGPU brings up a headless Vulkan device for offscreen rendering,
// the same instance -> adapter -> device sequence every gogpu-wgpu example
// under cmd/ uses. No window or swapchain is created: pkg/render only ever
// writes textures and reads them back.
func openGPU() (hal.Device, renderQueue, func(), error) {
	if err := vk.Init(); err != nil {
		return nil, nil, nil, fmt.Errorf("gpu: vk.Init: %w", err)
	}

	backend := vulkan.Backend{}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.BackendsVulkan,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("gpu: no Vulkan adapters found")
	}

	openDev, err := adapters[0].Adapter.Open(0, adapters[0].Capabilities.Limits)
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("gpu: open device %q: %w", adapters[0].Info.Name, err)
	}

	cleanup := func() {
		_ = openDev.Device.WaitIdle()
		openDev.Device.Destroy()
		instance.Destroy()
	}

	queue, ok := openDev.Queue.(renderQueue)
	if !ok {
		cleanup()
		return nil, nil, nil, fmt.Errorf("gpu: adapter queue does not support synchronous readback")
	}

	return openDev.Device, queue, cleanup, nil
}
