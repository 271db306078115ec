// Package rfb implements the server half of the RFB/VNC wire protocol
// (RFC 6143): version negotiation, a single-secret security handshake,
// the pixel-format/name exchange, and framebuffer updates carrying the
// damage rectangles pkg/render produces. It is deliberately thin: wire
// framing is a transport for the capture pipeline's output, not a place
// to grow features.
package rfb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// protocolVersion is the greeting both sides exchange verbatim. RFB 3.8 is
// the version every modern viewer (TigerVNC, noVNC, RealVNC) speaks.
const protocolVersion = "RFB 003.008\n"

// Security types this server offers, in the single-byte list ServerInit's
// handshake predecessor sends.
const (
	secTypeInvalid = 0
	secTypeNone    = 1
	secTypeVNCAuth = 2
)

// secResultOK / secResultFailed are the four-byte SecurityResult values.
const (
	secResultOK     = 0
	secResultFailed = 1
)

// Client-to-server message types.
const (
	cmsgSetPixelFormat           = 0
	cmsgSetEncodings             = 2
	cmsgFramebufferUpdateRequest = 3
	cmsgKeyEvent                 = 4
	cmsgPointerEvent             = 5
	cmsgClientCutText            = 6
)

// Server-to-client message types.
const (
	smsgFramebufferUpdate = 0
)

// encodingRaw is the only pixel encoding this server emits. Every tile the
// damage estimator reports is sent as raw pixels; the damage tiles already
// bound the update size, so a codec would buy latency for little
// bandwidth at desktop frame rates.
const encodingRaw = 0

// serverPixelFormat is the 16-byte PIXEL_FORMAT structure RFB negotiates. This
// server only ever offers one: 32bpp true-colour, matching the RGBA8
// readback pkg/render hands it.
var serverPixelFormat = PixelFormat{
	BitsPerPixel: 32,
	Depth:        24,
	BigEndian:    0,
	TrueColor:    1,
	RedMax:       255,
	GreenMax:     255,
	BlueMax:      255,
	RedShift:     0,
	GreenShift:   8,
	BlueShift:    16,
}

// PixelFormat mirrors RFC 6143 section 7.4.
type PixelFormat struct {
	BitsPerPixel, Depth             uint8
	BigEndian, TrueColor            uint8
	RedMax, GreenMax, BlueMax       uint16
	RedShift, GreenShift, BlueShift uint8
}

func writePixelFormat(w io.Writer, pf PixelFormat) error {
	buf := make([]byte, 16)
	buf[0] = pf.BitsPerPixel
	buf[1] = pf.Depth
	buf[2] = pf.BigEndian
	buf[3] = pf.TrueColor
	binary.BigEndian.PutUint16(buf[4:6], pf.RedMax)
	binary.BigEndian.PutUint16(buf[6:8], pf.GreenMax)
	binary.BigEndian.PutUint16(buf[8:10], pf.BlueMax)
	buf[10] = pf.RedShift
	buf[11] = pf.GreenShift
	buf[12] = pf.BlueShift
	// buf[13:16] is padding, left zero.
	_, err := w.Write(buf)
	return err
}

func readPixelFormat(r io.Reader) (PixelFormat, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return PixelFormat{}, err
	}
	return PixelFormat{
		BitsPerPixel: buf[0],
		Depth:        buf[1],
		BigEndian:    buf[2],
		TrueColor:    buf[3],
		RedMax:       binary.BigEndian.Uint16(buf[4:6]),
		GreenMax:     binary.BigEndian.Uint16(buf[6:8]),
		BlueMax:      binary.BigEndian.Uint16(buf[8:10]),
		RedShift:     buf[10],
		GreenShift:   buf[11],
		BlueShift:    buf[12],
	}, nil
}

// writeRectHeader writes one FramebufferUpdate rectangle header: x, y, w, h, encoding.
func writeRectHeader(w io.Writer, x, y, rw, rh int, encoding int32) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], uint16(x))
	binary.BigEndian.PutUint16(buf[2:4], uint16(y))
	binary.BigEndian.PutUint16(buf[4:6], uint16(rw))
	binary.BigEndian.PutUint16(buf[6:8], uint16(rh))
	binary.BigEndian.PutUint32(buf[8:12], uint32(encoding))
	_, err := w.Write(buf)
	return err
}

func newBufferedConnReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 16*1024)
}

func errUnexpectedMessageType(t byte) error {
	return fmt.Errorf("rfb: unexpected client message type %d", t)
}
