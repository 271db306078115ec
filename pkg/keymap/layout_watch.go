package keymap

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// LayoutSource reports the compositor's current human-readable keyboard
// layout name (e.g. via `swaymsg -t get_inputs`, or any compositor-specific
// equivalent), or ok=false if it can't be determined right now.
type LayoutSource func(ctx context.Context) (name string, ok bool)

// Watcher polls a LayoutSource and reloads a Resolver whenever the active
// layout changes, so a user switching keyboard layouts mid-session doesn't
// leave stale keysym bindings in place.
type Watcher struct {
	log      *slog.Logger
	resolver *Resolver
	source   LayoutSource
	interval time.Duration

	current string
}

// NewWatcher polls source every interval. A zero interval defaults to 2
// seconds, matching the cadence cheap enough to not bother a compositor's
// IPC socket but responsive enough that a layout switch feels immediate.
func NewWatcher(log *slog.Logger, resolver *Resolver, source LayoutSource, interval time.Duration) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{log: log, resolver: resolver, source: source, interval: interval}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	name, ok := w.source(ctx)
	if !ok || name == "" || name == w.current {
		return
	}

	xkbLayout := NameToXKBLayout(name)
	w.log.Info("keyboard layout changed", "old", w.current, "new", name, "xkb_layout", xkbLayout)

	if err := w.resolver.Reload(xkbLayout, "", ""); err != nil {
		w.log.Warn("failed to reload keymap for new layout", "layout", xkbLayout, "error", err)
		return
	}
	w.current = name
}

// NameToXKBLayout converts a compositor-reported display name ("English
// (US)", "German", ...) to an xkbcommon layout code ("us", "de", ...).
// Unrecognized names fall back to their first word, which happens to match
// xkbcommon's own layout codes often enough to be a reasonable guess.
func NameToXKBLayout(name string) string {
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "english") && strings.Contains(lower, "us"):
		return "us"
	case strings.Contains(lower, "english") && strings.Contains(lower, "uk"):
		return "gb"
	case strings.Contains(lower, "german"):
		return "de"
	case strings.Contains(lower, "french"):
		return "fr"
	case strings.Contains(lower, "spanish"):
		return "es"
	case strings.Contains(lower, "italian"):
		return "it"
	case strings.Contains(lower, "portuguese"):
		return "pt"
	case strings.Contains(lower, "russian"):
		return "ru"
	case strings.Contains(lower, "japanese"):
		return "jp"
	case strings.Contains(lower, "korean"):
		return "kr"
	case strings.Contains(lower, "polish"):
		return "pl"
	case strings.Contains(lower, "dutch"):
		return "nl"
	case strings.Contains(lower, "swedish"):
		return "se"
	case strings.Contains(lower, "norwegian"):
		return "no"
	case strings.Contains(lower, "danish"):
		return "dk"
	case strings.Contains(lower, "finnish"):
		return "fi"
	case strings.Contains(lower, "dvorak"):
		return "us(dvorak)"
	case strings.Contains(lower, "colemak"):
		return "us(colemak)"
	default:
		if fields := strings.Fields(lower); len(fields) > 0 {
			return fields[0]
		}
		return "us"
	}
}
