//go:build cgo

package keymap

/*
#cgo pkg-config: xkbcommon
#include <xkbcommon/xkbcommon.h>
#include <stdlib.h>

// Walk every keycode/level the compiled keymap defines at layout index 0
// and emit one (keysym, keycode, level, mods) quadruple per symbol produced
// there. Only layout 0 is considered: a keymap's other layouts (alternate
// groups, e.g. a second language bound to the same keys) aren't symbols
// this resolver needs to reach.
static int build_table(
    struct xkb_keymap *keymap,
    uint32_t *symbols_out,
    uint32_t *codes_out,
    uint32_t *levels_out,
    uint32_t *mods_out,
    int max_entries
) {
    int count = 0;
    xkb_keycode_t min_key = xkb_keymap_min_keycode(keymap);
    xkb_keycode_t max_key = xkb_keymap_max_keycode(keymap);
    xkb_layout_index_t layout = 0;

    for (xkb_keycode_t keycode = min_key; keycode <= max_key && count < max_entries; keycode++) {
        if (layout >= xkb_keymap_num_layouts_for_key(keymap, keycode)) {
            continue;
        }

        xkb_level_index_t num_levels = xkb_keymap_num_levels_for_key(keymap, keycode, layout);

        for (xkb_level_index_t level = 0; level < num_levels && count < max_entries; level++) {
            const xkb_keysym_t *syms;
            int num_syms = xkb_keymap_key_get_syms_by_level(keymap, keycode, layout, level, &syms);
            if (num_syms <= 0) {
                continue;
            }

            xkb_mod_mask_t masks[8];
            size_t num_masks = xkb_keymap_key_get_mods_for_level(keymap, keycode, layout, level, masks, 8);
            uint32_t mods = num_masks > 0 ? (uint32_t)masks[0] : 0;

            for (int i = 0; i < num_syms && count < max_entries; i++) {
                symbols_out[count] = syms[i];
                // XKB keycodes are evdev + 8.
                codes_out[count] = keycode - 8;
                levels_out[count] = level;
                mods_out[count] = mods;
                count++;
            }
        }
    }

    return count;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

const maxTableEntries = 8192

// buildFromRules compiles an xkbcommon keymap for the given rule names
// (layout/variant/options, RMLVO-style but limited to what this package
// needs) and flattens it into raw Entry triples.
func buildFromRules(layout, variant, options string) ([]Entry, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, fmt.Errorf("keymap: xkb_context_new failed")
	}
	defer C.xkb_context_unref(ctx)

	cModel := C.CString("pc105")
	defer C.free(unsafe.Pointer(cModel))

	var names C.struct_xkb_rule_names
	names.model = cModel
	if layout != "" {
		cLayout := C.CString(layout)
		defer C.free(unsafe.Pointer(cLayout))
		names.layout = cLayout
	}
	if variant != "" {
		cVariant := C.CString(variant)
		defer C.free(unsafe.Pointer(cVariant))
		names.variant = cVariant
	}
	if options != "" {
		cOptions := C.CString(options)
		defer C.free(unsafe.Pointer(cOptions))
		names.options = cOptions
	}

	km := C.xkb_keymap_new_from_names(ctx, &names, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		km = C.xkb_keymap_new_from_names(ctx, nil, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
		if km == nil {
			return nil, fmt.Errorf("keymap: xkb_keymap_new_from_names failed for layout %q", layout)
		}
	}
	defer C.xkb_keymap_unref(km)

	symbols := make([]C.uint32_t, maxTableEntries)
	codes := make([]C.uint32_t, maxTableEntries)
	levels := make([]C.uint32_t, maxTableEntries)
	mods := make([]C.uint32_t, maxTableEntries)

	count := C.build_table(
		km,
		(*C.uint32_t)(unsafe.Pointer(&symbols[0])),
		(*C.uint32_t)(unsafe.Pointer(&codes[0])),
		(*C.uint32_t)(unsafe.Pointer(&levels[0])),
		(*C.uint32_t)(unsafe.Pointer(&mods[0])),
		C.int(maxTableEntries),
	)

	entries := make([]Entry, count)
	for i := 0; i < int(count); i++ {
		entries[i] = Entry{
			Symbol: uint32(symbols[i]),
			Code:   int(codes[i]),
			Level:  int(levels[i]),
			Mods:   uint32(mods[i]),
		}
	}
	return entries, nil
}

// compileText serializes a compiled xkb keymap to its text representation,
// the form the virtual-keyboard protocol's keymap(fd, size) request expects
// on the wire (XKB_KEYMAP_FORMAT_TEXT_V1).
func compileText(layout, variant, options string) (string, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return "", fmt.Errorf("keymap: xkb_context_new failed")
	}
	defer C.xkb_context_unref(ctx)

	cModel := C.CString("pc105")
	defer C.free(unsafe.Pointer(cModel))

	var names C.struct_xkb_rule_names
	names.model = cModel
	if layout != "" {
		cLayout := C.CString(layout)
		defer C.free(unsafe.Pointer(cLayout))
		names.layout = cLayout
	}
	if variant != "" {
		cVariant := C.CString(variant)
		defer C.free(unsafe.Pointer(cVariant))
		names.variant = cVariant
	}

	km := C.xkb_keymap_new_from_names(ctx, &names, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		return "", fmt.Errorf("keymap: compile failed for layout %q", layout)
	}
	defer C.xkb_keymap_unref(km)

	cStr := C.xkb_keymap_get_as_string(km, C.XKB_KEYMAP_FORMAT_TEXT_V1)
	if cStr == nil {
		return "", fmt.Errorf("keymap: xkb_keymap_get_as_string failed")
	}
	defer C.free(unsafe.Pointer(cStr))

	return C.GoString(cStr), nil
}
