// Package keymap resolves X11/VNC keysyms to the (evdev keycode, level)
// pairs the virtual-keyboard protocol's injected keymap actually binds,
// using xkbcommon to stay correct across non-QWERTY layouts.
package keymap

import "sort"

// Entry is one keysym -> keycode binding at a given shift level. Level 0
// means no modifier is needed to produce the symbol; level 1 and above need
// whatever real modifier mask xkbcommon reports for that level (Shift,
// AltGr/ISO_Level3, or a combination) — Mods carries that mask exactly as
// xkb_keymap_key_get_mods_for_level produced it, rather than this package
// guessing Shift for any non-zero level.
type Entry struct {
	Symbol uint32
	Code   int
	Level  int
	Mods   uint32
}

// Table is a keysym -> Entry lookup, sorted by (Symbol, Level) so the
// lowest-level (least modifier pressure) binding for a symbol sorts first.
type Table struct {
	entries []Entry
}

// NewTable builds a Table from an unsorted entry list, keeping only the
// lowest-level entry per symbol (preferring no-shift over shifted bindings,
// matching how a real keyboard would produce the symbol without pressing
// Shift if it can).
func NewTable(raw []Entry) *Table {
	best := make(map[uint32]Entry, len(raw))
	for _, e := range raw {
		cur, ok := best[e.Symbol]
		if !ok || e.Level < cur.Level {
			best[e.Symbol] = e
		}
	}

	entries := make([]Entry, 0, len(best))
	for _, e := range best {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Symbol != entries[j].Symbol {
			return entries[i].Symbol < entries[j].Symbol
		}
		return entries[i].Level < entries[j].Level
	})

	return &Table{entries: entries}
}

// Find looks up the binding for a keysym via binary search over the sorted
// entry list. ok is false if the active layout has no key that produces it.
func (t *Table) Find(symbol uint32) (entry Entry, ok bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Symbol >= symbol
	})
	if i < len(t.entries) && t.entries[i].Symbol == symbol {
		return t.entries[i], true
	}
	return Entry{}, false
}

// Len reports the number of distinct symbols the table can resolve.
func (t *Table) Len() int { return len(t.entries) }
