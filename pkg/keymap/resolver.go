package keymap

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/wlrfb/wlrfb/pkg/shm"
)

// Resolver owns the currently active layout's lookup table. Compile builds
// the shared-memory-backed keymap blob the virtual-keyboard protocol needs
// to have bound before it will accept key(code, state) requests; the caller
// owns each blob it returns.
type Resolver struct {
	log *slog.Logger

	mu      sync.RWMutex
	table   *Table
	layout  string
	variant string
}

// NewResolver compiles the given layout/variant immediately; a Resolver
// with no working xkbcommon build (e.g. cgo disabled) still constructs
// successfully with an empty table, so Find simply never resolves anything
// rather than the whole bridge failing to start. An unknown layout name
// falls back to xkbcommon's default keymap.
func NewResolver(log *slog.Logger, layout, variant, options string) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	r := &Resolver{log: log}
	if err := r.Reload(layout, variant, options); err != nil {
		log.Warn("keymap resolver starting with no working layout", "error", err)
		r.table = NewTable(nil)
	}
	return r
}

// Reload recompiles the table for a new layout/variant/options triple.
// Safe to call concurrently with Find.
func (r *Resolver) Reload(layout, variant, options string) error {
	entries, err := buildFromRules(layout, variant, options)
	if err != nil {
		return fmt.Errorf("keymap: reload %q/%q: %w", layout, variant, err)
	}

	table := NewTable(entries)

	r.mu.Lock()
	r.table = table
	r.layout = layout
	r.variant = variant
	r.mu.Unlock()

	r.log.Info("keymap reloaded", "layout", layout, "variant", variant, "symbols", table.Len())
	return nil
}

// NewResolverForTest builds a Resolver around an explicit entry set, with no
// xkbcommon compilation step, for packages that drive a Resolver without
// wanting a cgo build or a real layout.
func NewResolverForTest(entries ...Entry) *Resolver {
	return &Resolver{log: slog.Default(), table: NewTable(entries)}
}

// Find resolves a keysym against the currently active layout.
func (r *Resolver) Find(symbol uint32) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Find(symbol)
}

// Layout returns the layout/variant currently compiled.
func (r *Resolver) Layout() (layout, variant string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.layout, r.variant
}

// KeymapBlob is a serialized keymap ready to hand to
// zwp_virtual_keyboard_v1.keymap(format, fd, size): an anonymous sealed
// segment holding the XKB_KEYMAP_FORMAT_TEXT_V1 text, NUL-terminated as the
// protocol requires.
type KeymapBlob struct {
	Segment *shm.Segment
	Size    int64
}

// Compile builds the wire-format keymap blob for the resolver's current
// layout. The caller owns the returned segment and must Close it once the
// compositor has mapped its own copy.
func (r *Resolver) Compile() (*KeymapBlob, error) {
	r.mu.RLock()
	layout, variant := r.layout, r.variant
	r.mu.RUnlock()

	text, err := compileText(layout, variant, "")
	if err != nil {
		return nil, fmt.Errorf("keymap: compile text: %w", err)
	}

	data := append([]byte(text), 0) // keymap() requires a NUL-terminated string
	seg, err := shm.Alloc(int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("keymap: allocate keymap segment: %w", err)
	}

	mapped, err := seg.Map()
	if err != nil {
		seg.Close()
		return nil, fmt.Errorf("keymap: map keymap segment: %w", err)
	}
	copy(mapped, data)
	if err := seg.Unmap(mapped); err != nil {
		seg.Close()
		return nil, fmt.Errorf("keymap: unmap keymap segment: %w", err)
	}

	return &KeymapBlob{Segment: seg, Size: int64(len(data))}, nil
}
