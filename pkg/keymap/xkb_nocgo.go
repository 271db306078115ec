//go:build !cgo

package keymap

import "fmt"

func buildFromRules(layout, variant, options string) ([]Entry, error) {
	return nil, fmt.Errorf("keymap: xkbcommon support requires cgo")
}

func compileText(layout, variant, options string) (string, error) {
	return "", fmt.Errorf("keymap: xkbcommon support requires cgo")
}
