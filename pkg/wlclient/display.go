// Package wlclient owns the Wayland connection: registry bring-up, global
// discovery, and the low-level object binding that lets pkg/capture's
// screencopy and export-dmabuf backends talk to a real compositor instead of
// a fake.
package wlclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neurlang/wayland/wl"
)

// Interface names this package knows how to bind. Declared once so
// detect.go's capability probe and the concrete backends agree on spelling.
const (
	IfaceScreencopyManager      = "zwlr_screencopy_manager_v1"
	IfaceExportDmabufManager    = "zwlr_export_dmabuf_manager_v1"
	IfaceVirtualKeyboardManager = "zwp_virtual_keyboard_manager_v1"
	IfaceVirtualPointerManager  = "zwlr_virtual_pointer_manager_v1"
	IfaceSeat                   = "wl_seat"
)

// Global is one entry from the registry's global announcement.
type Global struct {
	Name    uint32
	Version uint32
}

// Display owns one Wayland connection and the set of globals the compositor
// advertised over it. Mirrors the registry/proxy bookkeeping in
// dominikh-go-libwayland's Display (a proxies table plus add/forget
// lifecycle) re-expressed against neurlang/wayland's pure-Go proxy API
// instead of a cgo wl_proxy table, since this module avoids cgo everywhere
// it can.
type Display struct {
	log *slog.Logger

	display  *wl.Display
	registry *wl.Registry

	mu      sync.Mutex
	globals map[string]Global
}

// Connect opens the Wayland connection named by WAYLAND_DISPLAY (or the
// compositor's default socket) and performs one registry round-trip to
// collect the advertised globals.
func Connect(ctx context.Context, log *slog.Logger) (*Display, error) {
	if log == nil {
		log = slog.Default()
	}

	disp, err := wl.Connect("")
	if err != nil {
		return nil, fmt.Errorf("wlclient: connect: %w", err)
	}

	d := &Display{
		log:     log,
		display: disp,
		globals: make(map[string]Global),
	}

	registry, err := disp.GetRegistry()
	if err != nil {
		disp.Context().Close()
		return nil, fmt.Errorf("wlclient: get registry: %w", err)
	}
	d.registry = registry

	registry.AddGlobalHandler(wl.RegistryGlobalHandlerFunc(func(ev wl.RegistryGlobalEvent) {
		d.mu.Lock()
		d.globals[ev.Interface] = Global{Name: ev.Name, Version: ev.Version}
		d.mu.Unlock()
		d.log.Debug("wayland global advertised", "interface", ev.Interface, "name", ev.Name, "version", ev.Version)
	}))

	if err := disp.Context().Roundtrip(); err != nil {
		disp.Context().Close()
		return nil, fmt.Errorf("wlclient: initial roundtrip: %w", err)
	}

	return d, nil
}

// Global reports whether the compositor advertised the named interface, and
// the (name, version) pair needed to bind it.
func (d *Display) Global(iface string) (Global, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.globals[iface]
	return g, ok
}

// Context exposes the underlying protocol context for the low-level request
// marshalling in screencopy.go/dmabuf.go.
func (d *Display) Context() *wl.Context {
	return d.display.Context()
}

// Registry returns the bound registry proxy, used to bind globals that have
// no generated stub (the wlr-protocols extensions this package drives).
func (d *Display) Registry() *wl.Registry {
	return d.registry
}

// Roundtrip flushes pending requests and blocks until the compositor has
// processed them, the same synchronous boundary dominikh's binding gets from
// wl_display_roundtrip.
func (d *Display) Roundtrip() error {
	return d.display.Context().Roundtrip()
}

// Dispatch processes any events already queued without blocking for more.
func (d *Display) Dispatch() error {
	return d.display.Context().DispatchPending()
}

// Fd returns the underlying connection's file descriptor, for integrating
// the display into an external poll/select loop.
func (d *Display) Fd() int {
	return d.display.Context().Fd()
}

// Close releases the Wayland connection.
func (d *Display) Close() error {
	return d.display.Context().Close()
}
