package rfb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// handleKeyEvent parses a KeyEvent message (down-flag, padding, keysym) and
// forwards it to the keyboard injector. A nil injector (server built without
// one, e.g. in tests) silently drops the event.
func (s *Server) handleKeyEvent(r *bufio.Reader) error {
	buf := make([]byte, 7)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("rfb: read KeyEvent: %w", err)
	}
	down := buf[0] != 0
	// buf[1:3] is padding.
	symbol := binary.BigEndian.Uint32(buf[3:7])

	if s.keyboard == nil {
		return nil
	}
	if down {
		return s.keyboard.PressSymbol(symbol)
	}
	return s.keyboard.ReleaseSymbol(symbol)
}

// pointerEvent bit masks within the button-mask byte, RFC 6143 section 7.5.5.
const (
	buttonMaskLeft      = 1 << 0
	buttonMaskMiddle    = 1 << 1
	buttonMaskRight     = 1 << 2
	buttonMaskWheelUp   = 1 << 3
	buttonMaskWheelDown = 1 << 4
)

// handlePointerEvent parses a PointerEvent message (button-mask, x, y) and
// forwards motion plus whatever button transitions occurred since the last
// event. RFB reports the full button state on every message rather than
// discrete press/release events, so this tracks the previously seen mask
// per connection to synthesize transitions the injector expects.
func (s *Server) handlePointerEvent(r *bufio.Reader, c *clientConn) error {
	buf := make([]byte, 5)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("rfb: read PointerEvent: %w", err)
	}
	mask := buf[0]
	x := int(binary.BigEndian.Uint16(buf[1:3]))
	y := int(binary.BigEndian.Uint16(buf[3:5]))

	if s.pointer == nil {
		return nil
	}

	fracX := float64(x) / float64(max(1, s.width))
	fracY := float64(y) / float64(max(1, s.height))
	if err := s.pointer.MoveAbsolute(fracX, fracY); err != nil {
		return err
	}

	prev := c.lastButtonMask
	c.lastButtonMask = mask
	if err := s.syncButton(prev, mask, buttonMaskLeft, 1); err != nil {
		return err
	}
	if err := s.syncButton(prev, mask, buttonMaskMiddle, 2); err != nil {
		return err
	}
	if err := s.syncButton(prev, mask, buttonMaskRight, 3); err != nil {
		return err
	}

	// Wheel "buttons" arrive as a momentary bit set and cleared within the
	// same logical scroll tick; treat any 0->1 edge as one notch.
	if prev&buttonMaskWheelUp == 0 && mask&buttonMaskWheelUp != 0 {
		if err := s.pointer.Scroll(0, -1); err != nil {
			return err
		}
	}
	if prev&buttonMaskWheelDown == 0 && mask&buttonMaskWheelDown != 0 {
		if err := s.pointer.Scroll(0, 1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) syncButton(prev, cur byte, bit byte, rfbButton int) error {
	if prev&bit == cur&bit {
		return nil
	}
	return s.pointer.Button(rfbButton, cur&bit != 0)
}

// discardClientCutText drops a ClientCutText message: clipboard
// passthrough is out of scope for this bridge.
func discardClientCutText(r *bufio.Reader) error {
	if err := skipBytes(r, 3); err != nil { // padding
		return fmt.Errorf("rfb: read ClientCutText padding: %w", err)
	}
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return fmt.Errorf("rfb: read ClientCutText length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf)
	return skipBytes(r, int(n))
}
