package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFourccFromWlShmSpecialCases(t *testing.T) {
	assert.Equal(t, FourccARGB8888, FourccFromWlShm(0))
	assert.Equal(t, FourccXRGB8888, FourccFromWlShm(1))
}

func TestFourccFromWlShmPassthrough(t *testing.T) {
	// wl_shm values beyond the two special cases coincide with their DRM
	// FourCC, e.g. ABGR8888.
	const abgr8888 = 0x34324241
	assert.Equal(t, uint32(abgr8888), FourccFromWlShm(abgr8888))
}

func TestKnownFourcc(t *testing.T) {
	assert.True(t, KnownFourcc(FourccARGB8888))
	assert.True(t, KnownFourcc(FourccXRGB8888))
	assert.False(t, KnownFourcc(0x34324241))
}
