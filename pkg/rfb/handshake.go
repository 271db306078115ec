package rfb

import (
	"bufio"
	"crypto/des" //nolint:staticcheck // RFC 6143 VNC Authentication mandates DES; there is no modern substitute.
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// handshake runs ProtocolVersion through ClientInit and reports whether the
// client asked for a shared session, matching RFC 6143 sections 7.1-7.3.
// The single pre-shared secret, when configured, is
// enforced via VNC Authentication (security type 2); with no secret
// configured the server offers only security type 1 (None).
func (s *Server) handshake(r *bufio.Reader, w io.Writer) (shareDesktop bool, err error) {
	if _, err := w.Write([]byte(protocolVersion)); err != nil {
		return false, fmt.Errorf("rfb: send protocol version: %w", err)
	}

	clientVersion := make([]byte, 12)
	if _, err := io.ReadFull(r, clientVersion); err != nil {
		return false, fmt.Errorf("rfb: read client protocol version: %w", err)
	}
	// Accept any 3.x the client offers; this server only ever speaks 3.8
	// semantics regardless of what's echoed back, matching how permissive
	// real VNC servers are about the client's claimed minor version.

	if err := s.negotiateSecurity(r, w); err != nil {
		return false, err
	}

	clientInit := make([]byte, 1)
	if _, err := io.ReadFull(r, clientInit); err != nil {
		return false, fmt.Errorf("rfb: read ClientInit: %w", err)
	}
	shareDesktop = clientInit[0] != 0

	if err := s.sendServerInit(w); err != nil {
		return false, err
	}
	return shareDesktop, nil
}

func (s *Server) negotiateSecurity(r *bufio.Reader, w io.Writer) error {
	var types []byte
	if s.preSharedKey != "" {
		types = []byte{secTypeVNCAuth}
	} else {
		types = []byte{secTypeNone}
	}

	header := append([]byte{byte(len(types))}, types...)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("rfb: send security types: %w", err)
	}

	chosen := make([]byte, 1)
	if _, err := io.ReadFull(r, chosen); err != nil {
		return fmt.Errorf("rfb: read chosen security type: %w", err)
	}

	switch chosen[0] {
	case secTypeNone:
		if s.preSharedKey != "" {
			return s.sendSecurityResult(w, false, "server requires authentication")
		}
		return s.sendSecurityResult(w, true, "")

	case secTypeVNCAuth:
		ok, err := s.runVNCAuth(r, w)
		if err != nil {
			return err
		}
		return s.sendSecurityResult(w, ok, "authentication failed")

	default:
		return fmt.Errorf("rfb: client chose unsupported security type %d", chosen[0])
	}
}

// runVNCAuth implements the DES challenge-response VNC Authentication uses:
// a random 16-byte challenge, encrypted by the client with a key derived
// from the pre-shared secret (each byte bit-reversed, per RFC 6143's quirk
// inherited from the original RealVNC implementation), compared byte for
// byte against the server's own encryption of the same challenge.
func (s *Server) runVNCAuth(r *bufio.Reader, w io.Writer) (bool, error) {
	challenge := make([]byte, 16)
	if _, err := rand.Read(challenge); err != nil {
		return false, fmt.Errorf("rfb: generate VNC auth challenge: %w", err)
	}
	if _, err := w.Write(challenge); err != nil {
		return false, fmt.Errorf("rfb: send VNC auth challenge: %w", err)
	}

	response := make([]byte, 16)
	if _, err := io.ReadFull(r, response); err != nil {
		return false, fmt.Errorf("rfb: read VNC auth response: %w", err)
	}

	expected, err := desEncryptChallenge(s.preSharedKey, challenge)
	if err != nil {
		return false, fmt.Errorf("rfb: compute expected VNC auth response: %w", err)
	}

	ok := true
	for i := range expected {
		if expected[i] != response[i] {
			ok = false
		}
	}
	return ok, nil
}

func desEncryptChallenge(secret string, challenge []byte) ([]byte, error) {
	key := make([]byte, 8)
	copy(key, secret)
	for i, b := range key {
		key[i] = reverseBits(b)
	}

	block, err := des.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 16)
	block.Encrypt(out[0:8], challenge[0:8])
	block.Encrypt(out[8:16], challenge[8:16])
	return out, nil
}

func reverseBits(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

func (s *Server) sendSecurityResult(w io.Writer, ok bool, failReason string) error {
	result := uint32(secResultOK)
	if !ok {
		result = secResultFailed
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, result)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("rfb: send SecurityResult: %w", err)
	}
	if !ok {
		reason := []byte(failReason)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(reason)))
		if _, err := w.Write(lenBuf); err != nil {
			return err
		}
		if _, err := w.Write(reason); err != nil {
			return err
		}
		return fmt.Errorf("rfb: security handshake failed: %s", failReason)
	}
	return nil
}

func (s *Server) sendServerInit(w io.Writer) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], uint16(s.width))
	binary.BigEndian.PutUint16(buf[2:4], uint16(s.height))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("rfb: send ServerInit geometry: %w", err)
	}
	if err := writePixelFormat(w, serverPixelFormat); err != nil {
		return fmt.Errorf("rfb: send ServerInit pixel format: %w", err)
	}

	name := []byte(s.desktopName)
	nameLen := make([]byte, 4)
	binary.BigEndian.PutUint32(nameLen, uint32(len(name)))
	if _, err := w.Write(nameLen); err != nil {
		return err
	}
	_, err := w.Write(name)
	return err
}
