package rfb

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, preSharedKey string) *Server {
	t.Helper()
	return NewServer(nil, ServerConfig{Width: 1920, Height: 1080, DesktopName: "test", PreSharedKey: preSharedKey})
}

// runServerHandshake runs the handshake against one end of an in-memory
// pipe on a background goroutine and returns the result once the test's
// client-side script on the other end completes.
func runServerHandshake(t *testing.T, s *Server, clientSide func(net.Conn)) (bool, error) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	resultCh := make(chan struct {
		share bool
		err   error
	}, 1)
	go func() {
		r := bufio.NewReader(serverConn)
		share, err := s.handshake(r, serverConn)
		resultCh <- struct {
			share bool
			err   error
		}{share, err}
	}()

	clientSide(clientConn)
	result := <-resultCh
	return result.share, result.err
}

func TestHandshakeNoAuthSucceeds(t *testing.T) {
	s := newTestServer(t, "")

	share, err := runServerHandshake(t, s, func(c net.Conn) {
		r := bufio.NewReader(c)

		version := make([]byte, 12)
		_, rerr := io.ReadFull(r, version)
		require.NoError(t, rerr)
		_, werr := c.Write([]byte(protocolVersion))
		require.NoError(t, werr)

		secCount := make([]byte, 1)
		_, rerr = io.ReadFull(r, secCount)
		require.NoError(t, rerr)
		types := make([]byte, secCount[0])
		_, rerr = io.ReadFull(r, types)
		require.NoError(t, rerr)
		require.Equal(t, []byte{secTypeNone}, types)

		_, werr = c.Write([]byte{secTypeNone})
		require.NoError(t, werr)

		result := make([]byte, 4)
		_, rerr = io.ReadFull(r, result)
		require.NoError(t, rerr)
		require.Equal(t, uint32(secResultOK), binary.BigEndian.Uint32(result))

		_, werr = c.Write([]byte{1}) // ClientInit: share desktop
		require.NoError(t, werr)

		geometry := make([]byte, 4)
		_, rerr = io.ReadFull(r, geometry)
		require.NoError(t, rerr)
		assert.Equal(t, uint16(1920), binary.BigEndian.Uint16(geometry[0:2]))
		assert.Equal(t, uint16(1080), binary.BigEndian.Uint16(geometry[2:4]))

		pf := make([]byte, 16)
		_, rerr = io.ReadFull(r, pf)
		require.NoError(t, rerr)

		nameLen := make([]byte, 4)
		_, rerr = io.ReadFull(r, nameLen)
		require.NoError(t, rerr)
		name := make([]byte, binary.BigEndian.Uint32(nameLen))
		_, rerr = io.ReadFull(r, name)
		require.NoError(t, rerr)
		assert.Equal(t, "test", string(name))
	})

	require.NoError(t, err)
	assert.True(t, share)
}

func TestHandshakeVNCAuthSuccess(t *testing.T) {
	s := newTestServer(t, "swordfish")

	_, err := runServerHandshake(t, s, func(c net.Conn) {
		r := bufio.NewReader(c)

		version := make([]byte, 12)
		require.NoError(t, ignoreN(io.ReadFull(r, version)))
		_, werr := c.Write([]byte(protocolVersion))
		require.NoError(t, werr)

		secCount := make([]byte, 1)
		require.NoError(t, ignoreN(io.ReadFull(r, secCount)))
		types := make([]byte, secCount[0])
		require.NoError(t, ignoreN(io.ReadFull(r, types)))
		require.Equal(t, []byte{secTypeVNCAuth}, types)

		_, werr = c.Write([]byte{secTypeVNCAuth})
		require.NoError(t, werr)

		challenge := make([]byte, 16)
		require.NoError(t, ignoreN(io.ReadFull(r, challenge)))

		response, rerr := desEncryptChallenge("swordfish", challenge)
		require.NoError(t, rerr)
		_, werr = c.Write(response)
		require.NoError(t, werr)

		result := make([]byte, 4)
		require.NoError(t, ignoreN(io.ReadFull(r, result)))
		assert.Equal(t, uint32(secResultOK), binary.BigEndian.Uint32(result))

		_, werr = c.Write([]byte{0})
		require.NoError(t, werr)

		serverInit := make([]byte, 4+16)
		require.NoError(t, ignoreN(io.ReadFull(r, serverInit)))
		nameLen := make([]byte, 4)
		require.NoError(t, ignoreN(io.ReadFull(r, nameLen)))
		name := make([]byte, binary.BigEndian.Uint32(nameLen))
		require.NoError(t, ignoreN(io.ReadFull(r, name)))
		assert.Equal(t, "test", string(name))
	})

	require.NoError(t, err)
}

func TestHandshakeVNCAuthWrongSecretFails(t *testing.T) {
	s := newTestServer(t, "swordfish")

	_, err := runServerHandshake(t, s, func(c net.Conn) {
		r := bufio.NewReader(c)

		version := make([]byte, 12)
		require.NoError(t, ignoreN(io.ReadFull(r, version)))
		_, werr := c.Write([]byte(protocolVersion))
		require.NoError(t, werr)

		secCount := make([]byte, 1)
		require.NoError(t, ignoreN(io.ReadFull(r, secCount)))
		types := make([]byte, secCount[0])
		require.NoError(t, ignoreN(io.ReadFull(r, types)))

		_, werr = c.Write([]byte{secTypeVNCAuth})
		require.NoError(t, werr)

		challenge := make([]byte, 16)
		require.NoError(t, ignoreN(io.ReadFull(r, challenge)))

		wrong, rerr := desEncryptChallenge("wrong-secret", challenge)
		require.NoError(t, rerr)
		_, werr = c.Write(wrong)
		require.NoError(t, werr)

		result := make([]byte, 4)
		require.NoError(t, ignoreN(io.ReadFull(r, result)))
		assert.Equal(t, uint32(secResultFailed), binary.BigEndian.Uint32(result))

		reasonLen := make([]byte, 4)
		require.NoError(t, ignoreN(io.ReadFull(r, reasonLen)))
		reason := make([]byte, binary.BigEndian.Uint32(reasonLen))
		require.NoError(t, ignoreN(io.ReadFull(r, reason)))
		assert.Equal(t, "authentication failed", string(reason))
	})

	assert.Error(t, err)
}

func ignoreN(n int, err error) error { return err }
