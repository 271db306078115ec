package wlclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// xdg-desktop-portal D-Bus constants.
const (
	portalBus  = "org.freedesktop.portal.Desktop"
	portalPath = "/org/freedesktop/portal/desktop"

	portalRemoteDesktopIface = "org.freedesktop.portal.RemoteDesktop"
	portalRequestIface       = "org.freedesktop.portal.Request"
)

// PortalSession is the xdg-desktop-portal-wlr fallback used when a
// compositor (GNOME/Mutter, or a sandboxed environment) doesn't advertise
// the wlr capture globals directly. It drives RemoteDesktop's CreateSession
// so input injection has a session handle to attach to; screen content
// still arrives over the same capture.Backend contract via whatever the
// portal negotiates, so the rest of the bridge is unaware which bring-up
// path is in effect.
type PortalSession struct {
	log  *slog.Logger
	conn *dbus.Conn

	sessionHandle string
}

// ConnectPortal waits for the session bus and the portal service to become
// available, the same bounded retry loop as connectDBusPortal.
func ConnectPortal(ctx context.Context, log *slog.Logger) (*PortalSession, error) {
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for attempt := 0; attempt < 60; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			lastErr = err
			time.Sleep(time.Second)
			continue
		}

		obj := conn.Object(portalBus, portalPath)
		if err := obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Err; err != nil {
			lastErr = err
			conn.Close()
			time.Sleep(time.Second)
			continue
		}

		log.Info("connected to xdg-desktop-portal")
		return &PortalSession{log: log, conn: conn}, nil
	}

	return nil, fmt.Errorf("wlclient: portal not ready after 60 attempts: %w", lastErr)
}

// CreateRemoteDesktopSession opens a RemoteDesktop portal session via the
// request-token/Response-signal dance the portal API requires. Its session
// handle is used only for input passthrough when the compositor requires
// it; the capture path here still goes through this package's direct
// wlr-protocol bindings whenever they're available.
func (p *PortalSession) CreateRemoteDesktopSession(ctx context.Context) error {
	requestToken := fmt.Sprintf("wlrfb_rd_%d", time.Now().UnixNano())
	sessionToken := fmt.Sprintf("wlrfb_sess_%d", time.Now().UnixNano())

	requestPath := p.requestPath(requestToken)
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(requestPath),
		dbus.WithMatchInterface(portalRequestIface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return fmt.Errorf("wlclient: add signal match: %w", err)
	}

	signalChan := make(chan *dbus.Signal, 10)
	p.conn.Signal(signalChan)
	defer p.conn.RemoveSignal(signalChan)

	obj := p.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(requestToken),
		"session_handle_token": dbus.MakeVariant(sessionToken),
	}

	var returnedPath dbus.ObjectPath
	if err := obj.Call(portalRemoteDesktopIface+".CreateSession", 0, options).Store(&returnedPath); err != nil {
		return fmt.Errorf("wlclient: RemoteDesktop CreateSession: %w", err)
	}

	handle, err := p.waitForSessionHandle(ctx, signalChan)
	if err != nil {
		return fmt.Errorf("wlclient: RemoteDesktop session response: %w", err)
	}
	p.sessionHandle = handle
	p.log.Info("portal RemoteDesktop session created", "handle", handle)
	return nil
}

func (p *PortalSession) requestPath(token string) dbus.ObjectPath {
	names := p.conn.Names()
	sender := names[0]
	var b strings.Builder
	for _, c := range sender[1:] {
		if c == '.' {
			b.WriteByte('_')
		} else {
			b.WriteRune(c)
		}
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/request/%s/%s", b.String(), token))
}

func (p *PortalSession) waitForSessionHandle(ctx context.Context, signalChan chan *dbus.Signal) (string, error) {
	timeout := time.After(30 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case sig := <-signalChan:
			if sig.Name != portalRequestIface+".Response" || len(sig.Body) < 2 {
				continue
			}
			response, ok := sig.Body[0].(uint32)
			if !ok {
				continue
			}
			if response != 0 {
				return "", fmt.Errorf("portal returned error response %d", response)
			}
			results, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				return "", nil
			}
			if val, ok := results["session_handle"]; ok {
				if s, ok := val.Value().(string); ok {
					return s, nil
				}
			}
			return "", nil
		case <-timeout:
			return "", fmt.Errorf("timeout waiting for portal response")
		}
	}
}

// Close releases the D-Bus connection.
func (p *PortalSession) Close() error {
	return p.conn.Close()
}
