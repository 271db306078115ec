package wlclient

import (
	"fmt"

	"github.com/neurlang/wayland/wl"
)

// extProxy wraps a generic wl.Proxy bound via Registry.Bind for an
// interface neurlang/wayland has no generated stub for (every wlr-protocols
// extension this package needs: screencopy, export-dmabuf, and the
// virtual-keyboard manager used only for capability detection here). Request
// and event marshalling goes through the proxy's low-level Marshal/dispatch
// pair instead of a typed method set, the same escape hatch every generated
// Wayland client binding exposes for protocols outside its own codegen.
type extProxy struct {
	proxy *wl.Proxy
}

// bindExtension binds global "iface" (previously observed by Display) to a
// fresh proxy of the given version (or the advertised version, if lower) and
// wires its events to the supplied dispatch function.
func bindExtension(d *Display, iface string, version uint32, dispatch func(opcode uint32, args []interface{})) (*extProxy, error) {
	g, ok := d.Global(iface)
	if !ok {
		return nil, fmt.Errorf("wlclient: compositor does not advertise %s", iface)
	}
	if g.Version < version {
		version = g.Version
	}

	p, err := d.Registry().Bind(g.Name, iface, version)
	if err != nil {
		return nil, fmt.Errorf("wlclient: bind %s: %w", iface, err)
	}
	p.AddDispatcher(wl.DispatcherFunc(dispatch))

	return &extProxy{proxy: p}, nil
}

// request marshals a zero-or-more-argument request with no new_id return.
func (e *extProxy) request(opcode uint32, args ...interface{}) error {
	return e.proxy.Marshal(opcode, args...)
}

// requestNewID marshals a request that allocates a new server-side object
// (e.g. capture_output), returning the freshly bound proxy for it.
func (e *extProxy) requestNewID(opcode uint32, iface string, version uint32, args ...interface{}) (*extProxy, error) {
	child, err := e.proxy.MarshalConstructor(opcode, iface, version, args...)
	if err != nil {
		return nil, fmt.Errorf("wlclient: %s request %d: %w", iface, opcode, err)
	}
	return &extProxy{proxy: child}, nil
}

func (e *extProxy) onDispatch(fn func(opcode uint32, args []interface{})) {
	e.proxy.AddDispatcher(wl.DispatcherFunc(fn))
}

func (e *extProxy) destroy(opcode uint32) {
	_ = e.proxy.Marshal(opcode)
}
