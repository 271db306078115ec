package rfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFormatRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePixelFormat(&buf, serverPixelFormat))
	assert.Equal(t, 16, buf.Len())

	got, err := readPixelFormat(&buf)
	require.NoError(t, err)
	assert.Equal(t, serverPixelFormat, got)
}

func TestWriteRectHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRectHeader(&buf, 32, 64, 16, 8, encodingRaw))
	assert.Equal(t, []byte{
		0, 32, // x
		0, 64, // y
		0, 16, // w
		0, 8, // h
		0, 0, 0, 0, // encoding
	}, buf.Bytes())
}
