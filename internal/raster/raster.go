package raster

import (
	"context"
	"errors"
	"math"

	"nlcd-county/internal/palette"

	"github.com/ctessum/geom/proj"
)

var (
	// ErrSourceUnavailable is returned when a raster cannot be opened, read
	// or decoded (network failure, unexpected HTTP status, malformed tile).
	ErrSourceUnavailable = errors.New("raster source unavailable")

	// ErrGeometryEmpty is returned when a boundary does not intersect the
	// raster extent, so the clip window has zero area.
	ErrGeometryEmpty = errors.New("boundary does not intersect raster extent")
)

// GeoTransform maps pixel (col, row) to map coordinates:
// X = OriginX + col*PixelWidth, Y = OriginY + row*PixelHeight.
// PixelHeight is negative for north-up rasters.
type GeoTransform struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// Pixel returns the fractional (col, row) of map coordinate (x, y).
func (t GeoTransform) Pixel(x, y float64) (col, row float64) {
	return (x - t.OriginX) / t.PixelWidth, (y - t.OriginY) / t.PixelHeight
}

// Coord returns the map coordinate of fractional pixel position (col, row).
func (t GeoTransform) Coord(col, row float64) (x, y float64) {
	return t.OriginX + col*t.PixelWidth, t.OriginY + row*t.PixelHeight
}

// Grid describes the pixel grid of a raster.
type Grid struct {
	Width     int
	Height    int
	Transform GeoTransform
}

// alignTolerance is relative to the pixel size.
const alignTolerance = 1e-6

// Aligned reports whether g and o share size, origin and resolution.
func (g Grid) Aligned(o Grid) bool {
	if g.Width != o.Width || g.Height != o.Height {
		return false
	}
	tol := alignTolerance * math.Max(math.Abs(g.Transform.PixelWidth), math.Abs(g.Transform.PixelHeight))
	near := func(a, b float64) bool { return math.Abs(a-b) <= tol }
	return near(g.Transform.OriginX, o.Transform.OriginX) &&
		near(g.Transform.OriginY, o.Transform.OriginY) &&
		near(g.Transform.PixelWidth, o.Transform.PixelWidth) &&
		near(g.Transform.PixelHeight, o.Transform.PixelHeight)
}

// Window is a rectangular region of a raster's pixel grid.
type Window struct {
	ColOff int
	RowOff int
	Width  int
	Height int
}

// Empty reports whether w has zero area.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

// Intersect returns the part of w that also lies in o.
func (w Window) Intersect(o Window) Window {
	c0, r0 := max(w.ColOff, o.ColOff), max(w.RowOff, o.RowOff)
	c1 := min(w.ColOff+w.Width, o.ColOff+o.Width)
	r1 := min(w.RowOff+w.Height, o.RowOff+o.Height)
	if c1 <= c0 || r1 <= r0 {
		return Window{ColOff: c0, RowOff: r0}
	}
	return Window{ColOff: c0, RowOff: r0, Width: c1 - c0, Height: r1 - r0}
}

// Source is an open, single-band classification raster.
type Source interface {
	// CRS returns the proj4 definition of the raster's coordinate system.
	CRS() string
	// SR returns the parsed spatial reference for CRS.
	SR() *proj.SR
	// NoData returns the no-data sentinel of band 1.
	NoData() int32
	// Colormap returns the class code to color table of band 1.
	Colormap() palette.Colormap
	// Grid returns the raster's pixel grid.
	Grid() Grid
	// ReadWindow returns the row-major band 1 values inside w.
	ReadWindow(ctx context.Context, w Window) ([]int32, error)
	// Close releases the source.
	Close() error
}

// Opener opens the raster for a given year.
type Opener interface {
	Open(ctx context.Context, year int) (Source, error)
}
