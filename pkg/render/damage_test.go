package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func solidDiff(width, height int, signal byte) []byte {
	px := make([]byte, width*height*4)
	for i := 0; i < len(px); i += 4 {
		px[i], px[i+1], px[i+2], px[i+3] = signal, signal, signal, signal
	}
	return px
}

func TestFullFrameCoversEveryTile(t *testing.T) {
	tiles := FullFrame(64, 64)
	assert.Len(t, tiles, 4) // 2x2 grid of 32px tiles
}

func TestFullFrameRoundsUpPartialTiles(t *testing.T) {
	tiles := FullFrame(40, 40)
	assert.Len(t, tiles, 4) // each axis needs 2 tiles to cover 40px at TileSize 32
}

func TestTilesFromDiffReportsNoDamageWhenZero(t *testing.T) {
	d := NewDamageEstimator()
	diff := solidDiff(64, 64, 0)

	tiles := d.TilesFromDiff(diff, 64, 64)

	assert.Empty(t, tiles)
}

func TestTilesFromDiffReportsEveryTileWhenAllSignal(t *testing.T) {
	d := NewDamageEstimator()
	diff := solidDiff(64, 64, 255)

	tiles := d.TilesFromDiff(diff, 64, 64)

	assert.Len(t, tiles, 4)
}

func TestTilesFromDiffIsolatesSingleTile(t *testing.T) {
	d := NewDamageEstimator()
	diff := solidDiff(64, 64, 0)

	stride := 64 * 4
	// Touch one pixel inside tile (col=1, row=1): pixel (40, 40).
	off := 40*stride + 40*4
	diff[off] = 255

	tiles := d.TilesFromDiff(diff, 64, 64)

	assert.Equal(t, []Tile{{Col: 1, Row: 1}}, tiles)
}

func TestSameGeometryDetectsChange(t *testing.T) {
	d := NewDamageEstimator()

	assert.False(t, d.SameGeometry(32, 32)) // first call, nothing to compare against
	assert.True(t, d.SameGeometry(32, 32))
	assert.False(t, d.SameGeometry(64, 64))
	assert.True(t, d.SameGeometry(64, 64))
}

func TestRectClampsToFrameBounds(t *testing.T) {
	d := NewDamageEstimator()
	d.SameGeometry(40, 40)

	x, y, w, h := d.Rect(Tile{Col: 1, Row: 1})
	assert.Equal(t, 32, x)
	assert.Equal(t, 32, y)
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)
}
