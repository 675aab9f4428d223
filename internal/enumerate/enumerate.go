package enumerate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Tile describes a single map tile to fetch and persist.
// It is produced once per run and never mutated.
type Tile struct {
	// URL is the fully expanded download URL for this tile.
	URL string

	// Key is the stable storage identifier, "z/x/y".
	Key string

	X, Y uint32
	Z    maptile.Zoom
}

// Bounds is a geographic bounding box given by its north-west and
// south-east corners, in degrees.
type Bounds struct {
	North float64
	West  float64
	South float64
	East  float64
}

// Valid reports whether the box is non-degenerate and within range.
func (b Bounds) Valid() bool {
	return b.North >= b.South &&
		b.North <= 90 && b.South >= -90 &&
		b.West >= -180 && b.East <= 180 &&
		b.East >= b.West
}

// Layer describes a slippy-map tile source.
type Layer struct {
	// URLTemplate is the tile URL with {z}, {x}, {y} placeholders, and
	// optionally {s} for a subdomain.
	URLTemplate string

	// Subdomains are substituted for {s}, chosen deterministically per
	// tile so repeated enumerations produce identical URLs.
	Subdomains []string
}

// Tiles returns the tiles covering b at each of the given zoom levels, in
// ascending level order. Within a level, tiles are ordered row by row
// starting at the north-west corner. Duplicate zoom levels are walked once.
func (l Layer) Tiles(b Bounds, zooms []int) []Tile {
	levels := make([]int, 0, len(zooms))
	seen := make(map[int]bool, len(zooms))
	for _, z := range zooms {
		if !seen[z] {
			seen[z] = true
			levels = append(levels, z)
		}
	}
	sort.Ints(levels)

	var tiles []Tile
	for _, z := range levels {
		tiles = append(tiles, l.tilesAt(b, maptile.Zoom(z))...)
	}
	return tiles
}

// tilesAt enumerates a single zoom level.
func (l Layer) tilesAt(b Bounds, zoom maptile.Zoom) []Tile {
	nw := maptile.At(orb.Point{b.West, b.North}, zoom)
	se := maptile.At(orb.Point{b.East, b.South}, zoom)

	tiles := make([]Tile, 0, int(se.X-nw.X+1)*int(se.Y-nw.Y+1))
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			tiles = append(tiles, Tile{
				URL: l.url(x, y, zoom),
				Key: fmt.Sprintf("%d/%d/%d", zoom, x, y),
				X:   x,
				Y:   y,
				Z:   zoom,
			})
		}
	}
	return tiles
}

// url expands the URL template for one tile.
func (l Layer) url(x, y uint32, z maptile.Zoom) string {
	sub := ""
	if len(l.Subdomains) > 0 {
		sub = l.Subdomains[int(x+y)%len(l.Subdomains)]
	}
	r := strings.NewReplacer(
		"{s}", sub,
		"{z}", strconv.Itoa(int(z)),
		"{x}", strconv.FormatUint(uint64(x), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
	)
	return r.Replace(l.URLTemplate)
}
