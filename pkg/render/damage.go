package render

// TileSize is the granularity at which changed regions are reported. A
// whole-frame diff at pixel granularity is wasted work downstream: the RFB
// encoder only cares which coarse tiles moved.
const TileSize = 32

// Tile is one TileSize x TileSize cell in the tile grid, addressed by grid
// coordinates rather than pixel coordinates.
type Tile struct {
	Col, Row int
}

// FullFrame returns every tile covering a width x height frame, for the
// first frame after a backend starts or after a geometry change, when there
// is no prior frame to diff against.
func FullFrame(width, height int) []Tile {
	cols := (width + TileSize - 1) / TileSize
	rows := (height + TileSize - 1) / TileSize

	tiles := make([]Tile, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			tiles = append(tiles, Tile{Col: col, Row: row})
		}
	}
	return tiles
}

// DamageEstimator turns a per-pixel GPU damage-shader output (see
// the damage pipeline and damageWGSL in renderer.go, which samples the current and previous
// frame textures and writes a non-zero pixel wherever they differ) into the
// coarse tile list the RFB encoder wants. It does no pixel comparison
// itself: that happens on the GPU, once per frame, in the damage shader
// program; this type only aggregates that already-computed result into
// tiles and tracks the geometry it was computed for.
type DamageEstimator struct {
	width, height int
}

// NewDamageEstimator creates an estimator with no prior geometry recorded.
func NewDamageEstimator() *DamageEstimator {
	return &DamageEstimator{}
}

// SameGeometry reports whether width/height match the last frame seen, and
// records the new geometry either way. A mismatch (including the very first
// call) means there is no comparable previous frame, so the caller should
// skip the GPU damage pass and report every tile via FullFrame instead.
func (d *DamageEstimator) SameGeometry(width, height int) bool {
	same := d.width == width && d.height == height && d.width != 0
	d.width, d.height = width, height
	return same
}

// TilesFromDiff partitions a tightly packed RGBA8 diff buffer (one already
// produced by the damage shader: every channel zero where the two source
// frames matched, non-zero where they didn't) into the tile grid and
// returns the tiles containing at least one non-zero pixel.
func (d *DamageEstimator) TilesFromDiff(diff []byte, width, height int) []Tile {
	stride := width * 4
	cols := (width + TileSize - 1) / TileSize
	rows := (height + TileSize - 1) / TileSize

	var changed []Tile
	for row := 0; row < rows; row++ {
		y0 := row * TileSize
		y1 := min(y0+TileSize, height)
		for col := 0; col < cols; col++ {
			x0 := col * TileSize
			x1 := min(x0+TileSize, width)

			if tileHasSignal(diff, stride, x0, y0, x1, y1) {
				changed = append(changed, Tile{Col: col, Row: row})
			}
		}
	}
	return changed
}

// tileHasSignal reports whether any byte in the tile's rows of the diff
// buffer is non-zero.
func tileHasSignal(diff []byte, stride, x0, y0, x1, y1 int) bool {
	rowBytes := (x1 - x0) * 4
	for y := y0; y < y1; y++ {
		off := y*stride + x0*4
		if off+rowBytes > len(diff) {
			return true
		}
		row := diff[off : off+rowBytes]
		for _, b := range row {
			if b != 0 {
				return true
			}
		}
	}
	return false
}

// Rect converts a Tile back into pixel coordinates, clamped to the frame
// bounds given at the last SameGeometry call.
func (d *DamageEstimator) Rect(t Tile) (x, y, w, h int) {
	x = t.Col * TileSize
	y = t.Row * TileSize
	w = min(TileSize, d.width-x)
	h = min(TileSize, d.height-y)
	return x, y, w, h
}
