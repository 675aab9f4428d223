// Package enumerate computes the set of map tiles covering a geographic
// bounding box at one or more zoom levels.
//
// A [Layer] describes a slippy-map tile source by URL template. Calling
// [Layer.Tiles] projects the bounding box corners into tile-grid coordinates
// with maptile and walks the covered x/y range at each requested zoom level,
// producing one [Tile] descriptor per tile. Descriptors are immutable once
// produced and carry everything a downloader needs: the expanded URL, a
// stable storage key, and the z/x/y coordinates.
//
// Zoom levels are always walked in ascending order regardless of the order
// they are requested in, and within a level tiles are emitted row by row from
// the north-west corner.
package enumerate
