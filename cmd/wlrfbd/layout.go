package main

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"time"
)

// swayInput is one entry of `swaymsg -t get_inputs`'s JSON array, trimmed
// to the fields this bridge needs.
type swayInput struct {
	Type                string `json:"type"`
	XkbActiveLayoutName string `json:"xkb_active_layout_name"`
}

// swayLayoutSource queries Sway for the active keyboard layout name, for
// use as a keymap.LayoutSource. It reports ok=false on any non-Sway
// compositor (no SWAYSOCK) or swaymsg failure.
func swayLayoutSource(ctx context.Context) (string, bool) {
	if os.Getenv("SWAYSOCK") == "" {
		return "", false
	}

	qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(qctx, "swaymsg", "-t", "get_inputs")
	output, err := cmd.Output()
	if err != nil {
		return "", false
	}

	var inputs []swayInput
	if err := json.Unmarshal(output, &inputs); err != nil {
		return "", false
	}

	for _, in := range inputs {
		if in.Type == "keyboard" && in.XkbActiveLayoutName != "" {
			return in.XkbActiveLayoutName, true
		}
	}
	return "", false
}
