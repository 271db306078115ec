package rfb

import (
	"fmt"
	"io"
	"sync"

	"github.com/wlrfb/wlrfb/pkg/render"
)

// clientConn tracks one connected viewer's pending dirty tiles and owns the
// mutex-protected write path, the same per-client-lock-around-Conn.Write
// shape session_registry.go's sendMessage uses for its WebSocket clients.
type clientConn struct {
	writeMu sync.Mutex
	conn    rfbConn

	dirtyMu sync.Mutex
	dirty   map[render.Tile]struct{}

	// lastButtonMask is only ever touched from the connection's own read
	// goroutine (server.readLoop), so it needs no lock of its own.
	lastButtonMask byte
}

func newClientConn(conn rfbConn, width, height int) *clientConn {
	return &clientConn{conn: conn, dirty: make(map[render.Tile]struct{})}
}

func (c *clientConn) markDirty(tiles []render.Tile) {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	for _, t := range tiles {
		c.dirty[t] = struct{}{}
	}
}

func (c *clientConn) markWholeScreenDirty(width, height int) {
	cols := (width + render.TileSize - 1) / render.TileSize
	rows := (height + render.TileSize - 1) / render.TileSize

	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			c.dirty[render.Tile{Col: col, Row: row}] = struct{}{}
		}
	}
}

// markDirtyRect marks every tile overlapping the given pixel rectangle,
// used when a client's FramebufferUpdateRequest has incremental=false: it
// wants the requested region resent regardless of whether anything changed.
func (c *clientConn) markDirtyRect(x, y, w, h int) {
	colLo := x / render.TileSize
	colHi := (x + w - 1) / render.TileSize
	rowLo := y / render.TileSize
	rowHi := (y + h - 1) / render.TileSize

	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()
	for row := rowLo; row <= rowHi; row++ {
		for col := colLo; col <= colHi; col++ {
			c.dirty[render.Tile{Col: col, Row: row}] = struct{}{}
		}
	}
}

// flush sends one FramebufferUpdate message covering every currently
// pending tile, each as a raw-encoded rectangle clipped to the framebuffer
// bounds, then clears the pending set. A client with nothing pending still
// gets a (zero-rectangle) update, matching servers that always answer a
// FramebufferUpdateRequest rather than leaving the client hanging.
func (c *clientConn) flush(pixels []byte, width, height int) error {
	c.dirtyMu.Lock()
	tiles := make([]render.Tile, 0, len(c.dirty))
	for t := range c.dirty {
		tiles = append(tiles, t)
	}
	c.dirty = make(map[render.Tile]struct{})
	c.dirtyMu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	header := make([]byte, 4)
	header[0] = smsgFramebufferUpdate
	// header[1] is padding.
	if len(tiles) > 0xFFFF {
		return fmt.Errorf("rfb: too many dirty rectangles in one update: %d", len(tiles))
	}
	header[2] = byte(len(tiles) >> 8)
	header[3] = byte(len(tiles))
	if _, err := c.conn.Write(header); err != nil {
		return err
	}

	stride := width * 4
	for _, t := range tiles {
		x := t.Col * render.TileSize
		y := t.Row * render.TileSize
		w := min(render.TileSize, width-x)
		h := min(render.TileSize, height-y)
		if w <= 0 || h <= 0 {
			continue
		}

		if err := writeRectHeader(c.conn, x, y, w, h, encodingRaw); err != nil {
			return err
		}
		for row := 0; row < h; row++ {
			off := (y+row)*stride + x*4
			if _, err := c.conn.Write(pixels[off : off+w*4]); err != nil {
				return err
			}
		}
	}
	return nil
}

func skipBytes(r io.Reader, n int) error {
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}
