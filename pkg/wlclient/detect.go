package wlclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// BringUpMode names which path was used to reach the compositor's capture
// protocols.
type BringUpMode int

const (
	// BringUpDirect binds the wlr-protocols globals straight off the
	// registry: no portal round-trip, lowest latency, requires a
	// wlroots-family compositor that advertises screencopy/export-dmabuf.
	BringUpDirect BringUpMode = iota
	// BringUpPortal falls back to xdg-desktop-portal-wlr's D-Bus session
	// API when direct global binding fails (e.g. GNOME/Mutter, or a
	// sandboxed environment that only exposes the portal).
	BringUpPortal
)

// DetectCompositor reads XDG_CURRENT_DESKTOP (XDG_SESSION_TYPE is not
// consulted) and reports a short name used only for logging; it does not gate which bring-up path is
// chosen; that's decided by whether the wlr globals are actually present
// (see ChooseBringUp), since env vars are a hint and compositors lie about
// them more often than protocol globals do.
func DetectCompositor() string {
	desktop := os.Getenv("XDG_CURRENT_DESKTOP")
	switch desktop {
	case "sway", "Sway":
		return "sway"
	case "GNOME", "gnome", "ubuntu:GNOME":
		return "gnome"
	case "":
		return "unknown"
	default:
		return desktop
	}
}

// ChooseBringUp connects to the Wayland display, and reports whether the
// screencopy and export-dmabuf globals are directly available. If neither
// is, the caller should fall back to NewPortalSession instead of this
// Display.
func ChooseBringUp(ctx context.Context, log *slog.Logger) (*Display, BringUpMode, error) {
	if log == nil {
		log = slog.Default()
	}

	d, err := Connect(ctx, log)
	if err != nil {
		return nil, BringUpPortal, fmt.Errorf("wlclient: direct connect failed, falling back to portal: %w", err)
	}

	_, hasScreencopy := d.Global(IfaceScreencopyManager)
	_, hasDmabuf := d.Global(IfaceExportDmabufManager)
	if !hasScreencopy && !hasDmabuf {
		log.Warn("compositor advertises neither wlr capture protocol; portal fallback required",
			"compositor", DetectCompositor())
		return d, BringUpPortal, nil
	}

	log.Info("bound wlr capture globals directly",
		"compositor", DetectCompositor(), "screencopy", hasScreencopy, "export_dmabuf", hasDmabuf)
	return d, BringUpDirect, nil
}
