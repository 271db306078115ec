package rfb

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/wlrfb/wlrfb/pkg/render"
)

// rfbConn is the narrow surface handleConn needs from a connection: enough
// for a raw net.Conn (TCP) and the wsConn adapter in wsproxy.go (WebSocket)
// to share the same handshake/readLoop machinery.
type rfbConn interface {
	io.Reader
	io.Writer
	io.Closer
	RemoteAddr() net.Addr
}

// KeyInjector is the subset of inputinject.Keyboard the RFB server drives.
// Declared here, at the consuming boundary, rather than imported as a
// concrete type, so this package never needs inputinject's construction
// details.
type KeyInjector interface {
	PressSymbol(symbol uint32) error
	ReleaseSymbol(symbol uint32) error
	ReleaseAll() error
}

// PointerInjector is the subset of inputinject.Pointer the RFB server
// drives.
type PointerInjector interface {
	MoveAbsolute(fracX, fracY float64) error
	Button(button int, pressed bool) error
	Scroll(deltaX, deltaY float64) error
}

// Server is the RFB/VNC endpoint: it accepts TCP (and, via wsproxy.go,
// WebSocket) connections, runs the RFC 6143 handshake on each, and then
// relays framebuffer updates one way and key/pointer events the other,
// forwarding the latter straight into the keyboard/pointer injectors.
// PushFrame is the capture pipeline's delivery point, and
// OnFirstClient/OnLastClient let the caller tie capture start/stop to
// viewer presence instead of capturing with nobody watching.
type Server struct {
	log *slog.Logger

	width, height int
	desktopName   string
	preSharedKey  string

	keyboard KeyInjector
	pointer  PointerInjector

	onFirstClient func()
	onLastClient  func()

	mu         sync.Mutex
	frame      []byte // tightly packed RGBA8, width*height*4
	clients    map[*clientConn]struct{}
}

// ServerConfig bundles what NewServer needs; kept separate from pkg/config.Config
// since that one also carries capture/keymap fields this package never
// touches.
type ServerConfig struct {
	Width, Height int
	DesktopName   string
	PreSharedKey  string
	Keyboard      KeyInjector
	Pointer       PointerInjector
}

// NewServer builds a Server for a framebuffer of the given size. The
// framebuffer starts black; PushFrame must be called before any client's
// first update is meaningful, though the handshake is valid regardless.
func NewServer(log *slog.Logger, cfg ServerConfig) *Server {
	if log == nil {
		log = slog.Default()
	}
	name := cfg.DesktopName
	if name == "" {
		name = "wlrfb"
	}
	return &Server{
		log:          log,
		width:        cfg.Width,
		height:       cfg.Height,
		desktopName:  name,
		preSharedKey: cfg.PreSharedKey,
		keyboard:     cfg.Keyboard,
		pointer:      cfg.Pointer,
		frame:        make([]byte, cfg.Width*cfg.Height*4),
		clients:      make(map[*clientConn]struct{}),
	}
}

// OnFirstClient registers a callback fired when the first viewer connects,
// transitioning from zero to one connected client.
func (s *Server) OnFirstClient(fn func()) { s.onFirstClient = fn }

// OnLastClient registers a callback fired when the last viewer disconnects.
func (s *Server) OnLastClient(fn func()) { s.onLastClient = fn }

// PushFrame is the core's on_frame_done: it updates the stored framebuffer
// and marks tiles dirty on every connected client, to be flushed the next
// time that client's FramebufferUpdateRequest is serviced.
func (s *Server) PushFrame(pixels []byte, width, height int, tiles []render.Tile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width != s.width || height != s.height {
		s.log.Warn("frame geometry changed after server start, ignoring", "got_w", width, "got_h", height, "want_w", s.width, "want_h", s.height)
		return
	}
	copy(s.frame, pixels)

	for c := range s.clients {
		c.markDirty(tiles)
	}
}

// ListenAndServe accepts TCP connections on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("rfb: listen %s: %w", addr, err)
	}
	s.log.Info("rfb server listening", "addr", addr)
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rfb: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn rfbConn) {
	defer conn.Close()
	log := s.log.With("remote", conn.RemoteAddr().String())

	r := newBufferedConnReader(conn)
	if _, err := s.handshake(r, conn); err != nil {
		log.Warn("rfb handshake failed", "error", err)
		return
	}

	c := newClientConn(conn, s.width, s.height)
	s.addClient(c)
	defer s.removeClient(c)

	log.Info("rfb client connected")

	errCh := make(chan error, 1)
	go func() { errCh <- s.readLoop(r, c, log) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Info("rfb client disconnected", "error", err)
		} else {
			log.Info("rfb client disconnected")
		}
	}

	if s.keyboard != nil {
		if err := s.keyboard.ReleaseAll(); err != nil {
			log.Warn("error releasing keys on client disconnect", "error", err)
		}
	}
}

func (s *Server) addClient(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A fresh client starts fully dirty: it has never seen a frame, so the
	// first FramebufferUpdateRequest must deliver the whole screen.
	c.markWholeScreenDirty(s.width, s.height)

	first := len(s.clients) == 0
	s.clients[c] = struct{}{}
	if first && s.onFirstClient != nil {
		s.onFirstClient()
	}
}

func (s *Server) removeClient(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
	if len(s.clients) == 0 && s.onLastClient != nil {
		s.onLastClient()
	}
}

// snapshot returns the frame bytes under lock, for a client flushing its
// pending dirty rectangles.
func (s *Server) snapshot() ([]byte, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.frame))
	copy(out, s.frame)
	return out, s.width, s.height
}

func (s *Server) readLoop(r *bufio.Reader, c *clientConn, log *slog.Logger) error {
	for {
		msgType, err := r.ReadByte()
		if err != nil {
			return err
		}

		switch msgType {
		case cmsgSetPixelFormat:
			if err := skipBytes(r, 3); err != nil {
				return fmt.Errorf("rfb: read SetPixelFormat padding: %w", err)
			}
			if _, err := readPixelFormat(r); err != nil {
				return fmt.Errorf("rfb: read SetPixelFormat: %w", err)
			}
			// Ignored: this server only ever serves its own PixelFormat.

		case cmsgSetEncodings:
			if err := s.readSetEncodings(r); err != nil {
				return err
			}

		case cmsgFramebufferUpdateRequest:
			incremental, x, y, w, h, err := readFramebufferUpdateRequest(r)
			if err != nil {
				return err
			}
			if !incremental {
				c.markDirtyRect(x, y, w, h)
			}
			pixels, width, height := s.snapshot()
			if err := c.flush(pixels, width, height); err != nil {
				return fmt.Errorf("rfb: flush framebuffer update: %w", err)
			}

		case cmsgKeyEvent:
			if err := s.handleKeyEvent(r); err != nil {
				return err
			}

		case cmsgPointerEvent:
			if err := s.handlePointerEvent(r, c); err != nil {
				return err
			}

		case cmsgClientCutText:
			if err := discardClientCutText(r); err != nil {
				return err
			}

		default:
			return errUnexpectedMessageType(msgType)
		}
	}
}
