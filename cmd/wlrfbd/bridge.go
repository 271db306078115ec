package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"

	"github.com/wlrfb/wlrfb/pkg/capture"
	"github.com/wlrfb/wlrfb/pkg/config"
	"github.com/wlrfb/wlrfb/pkg/inputinject"
	"github.com/wlrfb/wlrfb/pkg/keymap"
	"github.com/wlrfb/wlrfb/pkg/render"
	"github.com/wlrfb/wlrfb/pkg/rfb"
	"github.com/wlrfb/wlrfb/pkg/wlclient"
)

// Bridge owns every long-lived component this daemon wires together: the
// Wayland capture bring-up, the capture scheduler, the GPU renderer and
// damage estimator, the keyboard/pointer injectors, and the RFB server.
// One struct built by a constructor, run to completion by one Run(ctx),
// torn down by one Close.
type Bridge struct {
	log *slog.Logger
	cfg *config.Config

	display *wlclient.Display
	portal  *wlclient.PortalSession
	monitor *wlclient.Monitor

	scheduler *capture.Scheduler
	renderer  *render.Renderer
	gpuClose  func()

	resolver *keymap.Resolver
	watcher  *keymap.Watcher

	keyboard   *inputinject.Keyboard
	kbManager  *virtual_keyboard.VirtualKeyboardManager
	pointer    *inputinject.Pointer
	ptrManager *virtual_pointer.VirtualPointerManager

	width, height int
	rfbServer     *rfb.Server

	captureMu     sync.Mutex
	captureCancel context.CancelFunc

	runMu     sync.Mutex
	runCancel context.CancelFunc
}

// NewBridge performs every piece of startup bring-up eagerly: compositor
// connection, capture backend selection, GPU device open, virtual input
// device creation. A failure at any stage is fatal to startup; nothing
// here is worth retrying without operator intervention.
func NewBridge(log *slog.Logger, cfg *config.Config) (*Bridge, error) {
	ctx := context.Background()

	b := &Bridge{log: log, cfg: cfg}

	display, mode, err := wlclient.ChooseBringUp(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("compositor bring-up: %w", err)
	}
	b.display = display

	if mode == wlclient.BringUpPortal {
		portal, err := wlclient.ConnectPortal(ctx, log)
		if err != nil {
			display.Close()
			return nil, fmt.Errorf("portal fallback: %w", err)
		}
		if err := portal.CreateRemoteDesktopSession(ctx); err != nil {
			display.Close()
			portal.Close()
			return nil, fmt.Errorf("portal remote desktop session: %w", err)
		}
		b.portal = portal
	}

	b.monitor = wlclient.NewMonitor(log, func(ctx context.Context) (*wlclient.Display, error) {
		return wlclient.Connect(ctx, log)
	})
	b.monitor.OnReconnect(func(d *wlclient.Display) {
		b.log.Warn("wayland connection re-established; capture backends were bound to the old " +
			"connection and are not rebuilt automatically, restart wlrfbd to resume capture")
		b.display = d
	})
	b.monitor.OnGiveUp(func(err error) {
		b.log.Error("wayland connection lost and could not be re-established, shutting down", "error", err)
		b.runMu.Lock()
		cancel := b.runCancel
		b.runMu.Unlock()
		if cancel != nil {
			cancel()
		}
	})

	if err := b.setupCapture(); err != nil {
		b.Close()
		return nil, fmt.Errorf("capture setup: %w", err)
	}

	if err := b.setupRenderer(); err != nil {
		b.Close()
		return nil, fmt.Errorf("renderer setup: %w", err)
	}

	if err := b.setupInput(); err != nil {
		b.Close()
		return nil, fmt.Errorf("input setup: %w", err)
	}

	b.setupServer()

	return b, nil
}

func (b *Bridge) setupCapture() error {
	output, info, err := wlclient.BindOutput(b.display)
	if err != nil {
		return fmt.Errorf("bind output: %w", err)
	}
	b.width, b.height = info.Width, info.Height

	_, hasScreencopy := b.display.Global(wlclient.IfaceScreencopyManager)
	_, hasDmabuf := b.display.Global(wlclient.IfaceExportDmabufManager)
	if !hasScreencopy && !hasDmabuf {
		return fmt.Errorf("%w: no capture protocol advertised", capture.ErrCompositorRefused)
	}

	var screencopyBackend capture.Backend
	if hasScreencopy {
		mgr, err := wlclient.NewScreencopyManager(b.log, b.display, output)
		if err != nil {
			return err
		}
		provider, err := wlclient.NewShmBufferProvider(b.log, b.display)
		if err != nil {
			return err
		}
		screencopyBackend = capture.NewScreencopyBackend(b.log, mgr, provider, b.cfg.OverlayCursor)
	}

	var dmabufBackend capture.Backend
	if hasDmabuf {
		mgr, err := wlclient.NewDmabufManager(b.log, b.display, output)
		if err != nil {
			return err
		}
		dmabufBackend = capture.NewDmabufBackend(b.log, mgr, b.cfg.OverlayCursor)
	}

	var active, fallback capture.Backend
	switch {
	case b.cfg.PreferDmabuf && dmabufBackend != nil:
		active, fallback = dmabufBackend, screencopyBackend
	case screencopyBackend != nil:
		active, fallback = screencopyBackend, dmabufBackend
	default:
		active = dmabufBackend
	}

	tau := time.Duration(b.cfg.SmootherTimeConstant * float64(time.Second))
	b.scheduler = capture.NewScheduler(b.log, active, fallback, b.cfg.RateLimitHz, tau)
	return nil
}

func (b *Bridge) setupRenderer() error {
	device, queue, cleanup, err := openGPU()
	if err != nil {
		return err
	}
	b.gpuClose = cleanup
	source := render.SourceBGRA
	if b.cfg.PixelFormat == "rgba" {
		source = render.SourceRGBA
	}
	renderer, err := render.New(b.log, device, queue, source)
	if err != nil {
		return fmt.Errorf("compile render pipelines: %w", err)
	}
	b.renderer = renderer
	return nil
}

func (b *Bridge) setupInput() error {
	ctx := context.Background()

	b.resolver = keymap.NewResolver(b.log, b.cfg.Layout, b.cfg.Variant, "")
	b.watcher = keymap.NewWatcher(b.log, b.resolver, swayLayoutSource, 0)

	kbDevice, err := b.createKeyboardDevice(ctx)
	if err != nil {
		return err
	}
	b.keyboard = inputinject.NewKeyboard(b.log, b.resolver, kbDevice)

	if blob, err := b.resolver.Compile(); err != nil {
		b.log.Warn("keymap compile failed, compositor key codes may not match the resolver", "error", err)
	} else {
		if err := b.keyboard.UploadKeymap(blob); err != nil {
			b.log.Warn("keymap upload failed", "error", err)
		}
		blob.Segment.Close()
	}

	if err := inputinject.Prime(b.keyboard); err != nil {
		b.log.Warn("keyboard priming failed", "error", err)
	}

	ptrDevice, err := b.createPointerDevice(ctx)
	if err != nil {
		return err
	}
	b.pointer = inputinject.NewPointer(b.log, ptrDevice, b.width, b.height)

	return nil
}

// createKeyboardDevice binds zwp_virtual_keyboard_v1 when the compositor
// advertises it, and falls back to a /dev/uinput keyboard otherwise (a
// plain X11 session, or a wlroots build without the virtual-keyboard
// protocol compiled in).
func (b *Bridge) createKeyboardDevice(ctx context.Context) (inputinject.KeyboardDevice, error) {
	if _, ok := b.display.Global(wlclient.IfaceVirtualKeyboardManager); ok {
		kbManager, err := virtual_keyboard.NewVirtualKeyboardManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("virtual keyboard manager: %w", err)
		}
		b.kbManager = kbManager

		kbDevice, err := kbManager.CreateKeyboard()
		if err != nil {
			return nil, fmt.Errorf("create virtual keyboard: %w", err)
		}
		return kbDevice, nil
	}

	b.log.Warn("compositor does not advertise zwp_virtual_keyboard_manager_v1, falling back to /dev/uinput")
	kb, err := inputinject.NewUinputKeyboard("wlrfb-keyboard")
	if err != nil {
		return nil, fmt.Errorf("uinput keyboard fallback: %w", err)
	}
	return kb, nil
}

// createPointerDevice mirrors createKeyboardDevice for zwlr_virtual_pointer_v1.
func (b *Bridge) createPointerDevice(ctx context.Context) (inputinject.PointerDevice, error) {
	if _, ok := b.display.Global(wlclient.IfaceVirtualPointerManager); ok {
		ptrManager, err := virtual_pointer.NewVirtualPointerManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("virtual pointer manager: %w", err)
		}
		b.ptrManager = ptrManager

		ptrDevice, err := ptrManager.CreatePointer()
		if err != nil {
			return nil, fmt.Errorf("create virtual pointer: %w", err)
		}
		return ptrDevice, nil
	}

	b.log.Warn("compositor does not advertise zwlr_virtual_pointer_manager_v1, falling back to /dev/uinput")
	ptr, err := inputinject.NewUinputPointer(b.log, "wlrfb-mouse")
	if err != nil {
		return nil, fmt.Errorf("uinput pointer fallback: %w", err)
	}
	return ptr, nil
}

func (b *Bridge) setupServer() {
	b.rfbServer = rfb.NewServer(b.log, rfb.ServerConfig{
		Width:        b.width,
		Height:       b.height,
		DesktopName:  "wlrfb",
		PreSharedKey: b.cfg.PreSharedKey,
		Keyboard:     b.keyboard,
		Pointer:      b.pointer,
	})

	b.scheduler.OnFrame(b.onFrame)
	b.scheduler.OnFatal(func(err error) {
		b.log.Error("all capture backends exhausted", "error", err)
	})

	b.rfbServer.OnFirstClient(b.startCapture)
	b.rfbServer.OnLastClient(b.stopCapture)
}

// startCapture spins up the scheduler; capture only drives the compositor
// while at least one RFB viewer is connected.
func (b *Bridge) startCapture() {
	b.captureMu.Lock()
	if b.captureCancel != nil {
		b.captureMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.captureCancel = cancel
	b.captureMu.Unlock()

	go func() {
		if err := b.scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			b.log.Info("capture scheduler stopped", "error", err)
		}
	}()
}

// stopCapture cancels the scheduler's context, which calls Stop() on every
// backend on its own goroutine (Run's ctx.Done branch), so nothing here
// touches backend state directly.
func (b *Bridge) stopCapture() {
	b.captureMu.Lock()
	defer b.captureMu.Unlock()
	if b.captureCancel == nil {
		return
	}
	b.captureCancel()
	b.captureCancel = nil
}

// onFrame is the scheduler's per-cycle continuation: upload, diff,
// readback, hand the result to every connected RFB client.
func (b *Bridge) onFrame(frame *capture.Frame) {
	tex, err := b.renderer.Upload(frame)
	if err != nil {
		b.log.Warn("frame upload failed, dropping frame", "error", err)
		return
	}

	pixels, err := b.renderer.Readback(tex)
	if err != nil {
		b.log.Warn("frame readback failed, dropping frame", "error", err)
		return
	}

	tiles, err := b.renderer.Diff(tex)
	if err != nil {
		b.log.Warn("damage pass failed, reporting full frame", "error", err)
		tiles = render.FullFrame(tex.Width(), tex.Height())
	}
	b.rfbServer.PushFrame(pixels, tex.Width(), tex.Height(), tiles)
}

// Run starts the RFB TCP listener, the optional WebSocket proxy, and the
// keymap layout watcher, blocking until ctx is cancelled. The capture
// scheduler itself only starts once the first viewer connects (wired in
// setupServer), so an idle daemon with nobody watching never drives the
// compositor.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.runMu.Lock()
	b.runCancel = cancel
	b.runMu.Unlock()

	errCh := make(chan error, 4)

	go func() { errCh <- b.monitor.Watch(ctx, b.display) }()
	go func() { errCh <- b.watcher.Run(ctx) }()
	if b.portal != nil {
		keepalive := wlclient.NewSessionKeepalive(b.log, b.portal)
		go keepalive.Run(ctx)
	}
	go func() { errCh <- b.rfbServer.ListenAndServe(ctx, b.cfg.ListenAddr) }()
	if b.cfg.WebSocketAddr != "" {
		go func() { errCh <- b.rfbServer.ListenAndServeWebSocket(ctx, b.cfg.WebSocketAddr) }()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// Close releases every device/connection the bridge opened, in reverse
// dependency order. Safe to call on a partially-constructed Bridge (e.g.
// from NewBridge's error paths), since every field is nil-checked.
func (b *Bridge) Close() {
	if b.keyboard != nil {
		if err := b.keyboard.Close(); err != nil {
			b.log.Warn("error closing keyboard", "error", err)
		}
	}
	if b.kbManager != nil {
		if err := b.kbManager.Close(); err != nil {
			b.log.Warn("error closing keyboard manager", "error", err)
		}
	}
	if b.pointer != nil {
		if err := b.pointer.Close(); err != nil {
			b.log.Warn("error closing pointer", "error", err)
		}
	}
	if b.ptrManager != nil {
		if err := b.ptrManager.Close(); err != nil {
			b.log.Warn("error closing pointer manager", "error", err)
		}
	}
	if b.renderer != nil {
		b.renderer.Close()
	}
	if b.gpuClose != nil {
		b.gpuClose()
	}
	if b.portal != nil {
		if err := b.portal.Close(); err != nil {
			b.log.Warn("error closing portal session", "error", err)
		}
	}
	if b.display != nil {
		if err := b.display.Close(); err != nil {
			b.log.Warn("error closing wayland display", "error", err)
		}
	}
}
