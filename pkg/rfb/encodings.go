package rfb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// readSetEncodings drains a SetEncodings message. This server only ever
// emits Raw rectangles regardless of what the client lists, so the
// encoding list itself is discarded; RFC 6143 still requires reading it
// fully to stay in sync with the byte stream.
func (s *Server) readSetEncodings(r *bufio.Reader) error {
	if err := skipBytes(r, 1); err != nil { // padding
		return fmt.Errorf("rfb: read SetEncodings padding: %w", err)
	}
	countBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, countBuf); err != nil {
		return fmt.Errorf("rfb: read SetEncodings count: %w", err)
	}
	count := binary.BigEndian.Uint16(countBuf)
	return skipBytes(r, int(count)*4)
}

// readFramebufferUpdateRequest parses the 9-byte body following the
// already-consumed message-type byte: incremental flag, then x/y/w/h.
func readFramebufferUpdateRequest(r *bufio.Reader) (incremental bool, x, y, w, h int, err error) {
	buf := make([]byte, 9)
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, 0, 0, 0, 0, fmt.Errorf("rfb: read FramebufferUpdateRequest: %w", err)
	}
	incremental = buf[0] != 0
	x = int(binary.BigEndian.Uint16(buf[1:3]))
	y = int(binary.BigEndian.Uint16(buf[3:5]))
	w = int(binary.BigEndian.Uint16(buf[5:7]))
	h = int(binary.BigEndian.Uint16(buf[7:9]))
	return incremental, x, y, w, h, nil
}
