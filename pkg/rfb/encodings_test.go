package rfb

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSetEncodingsDrainsEncodingList(t *testing.T) {
	// padding(1) + count(2)=2 + two int32 encodings, exactly 11 bytes total.
	msg := []byte{0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 1}
	s := newTestServer(t, "")
	r := bufio.NewReader(bytes.NewReader(msg))
	require.NoError(t, s.readSetEncodings(r))
	_, err := r.ReadByte()
	assert.Error(t, err, "entire SetEncodings body should have been consumed")
}

func TestReadFramebufferUpdateRequestParsesFields(t *testing.T) {
	msg := []byte{
		1,    // incremental
		0, 10, // x
		0, 20, // y
		0, 100, // w
		0, 50, // h
	}
	r := bufio.NewReader(bytes.NewReader(msg))
	incremental, x, y, w, h, err := readFramebufferUpdateRequest(r)
	require.NoError(t, err)
	assert.True(t, incremental)
	assert.Equal(t, 10, x)
	assert.Equal(t, 20, y)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
}

func TestDiscardClientCutTextConsumesFullPayload(t *testing.T) {
	msg := []byte{0, 0, 0, 0, 0, 0, 3, 'h', 'i', '!'}
	r := bufio.NewReader(bytes.NewReader(msg))
	require.NoError(t, discardClientCutText(r))
	_, err := r.ReadByte()
	assert.Error(t, err, "entire payload should have been consumed")
}
