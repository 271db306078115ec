package capture

// DRM FourCC codes for the formats this bridge actually handles. Little-
// endian packed 32bpp, matching drm_fourcc.h's fourcc_code('A','R','2','4')
// and ('X','R','2','4').
const (
	FourccARGB8888 uint32 = 0x34325241 // 'AR24'
	FourccXRGB8888 uint32 = 0x34325258 // 'XR24'
)

// wl_shm.format enum values. Unlike every other wl_shm format, which is
// numerically identical to its DRM FourCC, these two are special-cased to 0
// and 1 by the core protocol.
const (
	wlShmFormatARGB8888 uint32 = 0
	wlShmFormatXRGB8888 uint32 = 1
)

// FourccFromWlShm maps a wl_shm.format value to the DRM FourCC used
// everywhere downstream of the capture boundary. The two core-protocol
// special cases are translated; every other wl_shm value already equals its
// FourCC and passes through unchanged.
func FourccFromWlShm(format uint32) uint32 {
	switch format {
	case wlShmFormatARGB8888:
		return FourccARGB8888
	case wlShmFormatXRGB8888:
		return FourccXRGB8888
	default:
		return format
	}
}

// KnownFourcc reports whether the renderer understands the byte layout of
// the given FourCC. Frames in any other format still upload, but the color
// channels may come out swapped; the renderer logs a warning for them.
func KnownFourcc(format uint32) bool {
	return format == FourccARGB8888 || format == FourccXRGB8888
}
