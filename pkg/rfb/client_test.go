package rfb

import (
	"bufio"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlrfb/wlrfb/pkg/render"
)

func TestMarkWholeScreenDirtyCoversAllTiles(t *testing.T) {
	c := newClientConn(nil, 64, 64)
	c.markWholeScreenDirty(64, 64)
	assert.Len(t, c.dirty, 4) // 2x2 tiles of 32px each
}

func TestMarkDirtyRectCoversOverlappingTilesOnly(t *testing.T) {
	c := newClientConn(nil, 64, 64)
	c.markDirtyRect(0, 0, 10, 10)
	assert.Equal(t, map[render.Tile]struct{}{{Col: 0, Row: 0}: {}}, c.dirty)
}

func TestFlushSendsOneRectPerDirtyTile(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := newClientConn(server, 64, 32)
	c.markDirty([]render.Tile{{Col: 0, Row: 0}})

	pixels := make([]byte, 64*32*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- c.flush(pixels, 64, 32) }()

	r := bufio.NewReader(client)
	header := make([]byte, 4)
	_, err := readFullClient(r, header)
	require.NoError(t, err)
	assert.Equal(t, byte(smsgFramebufferUpdate), header[0])
	numRects := binary.BigEndian.Uint16(header[2:4])
	assert.Equal(t, uint16(1), numRects)

	rectHeader := make([]byte, 12)
	_, err = readFullClient(r, rectHeader)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(rectHeader[0:2])) // x
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(rectHeader[2:4])) // y
	assert.Equal(t, uint16(32), binary.BigEndian.Uint16(rectHeader[4:6]))
	assert.Equal(t, uint16(32), binary.BigEndian.Uint16(rectHeader[6:8]))

	rowData := make([]byte, 32*4)
	for row := 0; row < 32; row++ {
		_, err := readFullClient(r, rowData)
		require.NoError(t, err)
	}

	require.NoError(t, <-errCh)
	assert.Empty(t, c.dirty, "flush must clear the pending set")
}

func readFullClient(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
