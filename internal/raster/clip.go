package raster

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// ClippedRaster holds the class codes of the smallest window containing a
// boundary. Cells whose centre falls outside the boundary hold NoData.
type ClippedRaster struct {
	Window Window
	Codes  []int32
	NoData int32
}

// Width returns the number of columns.
func (c *ClippedRaster) Width() int { return c.Window.Width }

// Height returns the number of rows.
func (c *ClippedRaster) Height() int { return c.Window.Height }

// At returns the code at (col, row) relative to the window.
func (c *ClippedRaster) At(col, row int) int32 { return c.Codes[row*c.Window.Width+col] }

// Clip reads the window of src that contains poly and overwrites every cell
// whose centre lies outside poly with the source's no-data value. poly must
// already be expressed in the source CRS.
func Clip(ctx context.Context, src Source, poly geom.Polygonal) (*ClippedRaster, error) {
	grid := src.Grid()
	win, err := boundsWindow(grid, poly)
	if err != nil {
		return nil, err
	}

	codes, err := src.ReadWindow(ctx, win)
	if err != nil {
		return nil, err
	}
	if len(codes) != win.Width*win.Height {
		return nil, fmt.Errorf("%w: read %d values for a %dx%d window", ErrSourceUnavailable, len(codes), win.Width, win.Height)
	}

	nodata := src.NoData()
	inside := insideMask(grid.Transform, win, poly)
	for i, in := range inside {
		if !in {
			codes[i] = nodata
		}
	}
	return &ClippedRaster{Window: win, Codes: codes, NoData: nodata}, nil
}

// snap absorbs floating point noise so that bounds lying on a pixel edge do
// not grow the window by a column or row.
const snap = 1e-6

func snapFloor(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < snap {
		return int(r)
	}
	return int(math.Floor(v))
}

func snapCeil(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < snap {
		return int(r)
	}
	return int(math.Ceil(v))
}

// boundsWindow returns the smallest whole-pixel window, clipped to the
// raster, that contains the bounds of poly.
func boundsWindow(grid Grid, poly geom.Polygonal) (Window, error) {
	if poly == nil {
		return Window{}, ErrGeometryEmpty
	}
	b := poly.Bounds()
	if b == nil || b.Min.X > b.Max.X || b.Min.Y > b.Max.Y ||
		math.IsInf(b.Min.X, 0) || math.IsInf(b.Max.X, 0) || math.IsNaN(b.Min.X) || math.IsNaN(b.Max.Y) {
		return Window{}, ErrGeometryEmpty
	}

	t := grid.Transform
	c0, r0 := t.Pixel(b.Min.X, b.Min.Y)
	c1, r1 := t.Pixel(b.Max.X, b.Max.Y)
	win := Window{
		ColOff: snapFloor(math.Min(c0, c1)),
		RowOff: snapFloor(math.Min(r0, r1)),
	}
	win.Width = snapCeil(math.Max(c0, c1)) - win.ColOff
	win.Height = snapCeil(math.Max(r0, r1)) - win.RowOff

	win = win.Intersect(Window{Width: grid.Width, Height: grid.Height})
	if win.Empty() {
		return Window{}, ErrGeometryEmpty
	}
	return win, nil
}

type edge struct {
	c0, r0, c1, r1 float64
}

// insideMask marks, row-major over win, the cells whose centre lies inside
// poly under the even-odd rule. It scans one row at a time, intersecting the
// row's centre line with every polygon edge in pixel space.
func insideMask(t GeoTransform, win Window, poly geom.Polygonal) []bool {
	var edges []edge
	for _, p := range poly.Polygons() {
		for _, ring := range p {
			n := len(ring)
			if n < 3 {
				continue
			}
			for i := 0; i < n; i++ {
				a, b := ring[i], ring[(i+1)%n]
				c0, r0 := t.Pixel(a.X, a.Y)
				c1, r1 := t.Pixel(b.X, b.Y)
				if r0 == r1 {
					continue
				}
				edges = append(edges, edge{c0, r0, c1, r1})
			}
		}
	}

	mask := make([]bool, win.Width*win.Height)
	xs := make([]float64, 0, 64)
	for row := 0; row < win.Height; row++ {
		yc := float64(win.RowOff+row) + 0.5

		xs = xs[:0]
		for _, e := range edges {
			if (e.r0 > yc) != (e.r1 > yc) {
				xs = append(xs, e.c0+(yc-e.r0)*(e.c1-e.c0)/(e.r1-e.r0))
			}
		}
		sort.Float64s(xs)

		base := row * win.Width
		for i := 0; i+1 < len(xs); i += 2 {
			// Cell j's centre is j+0.5; it is inside when xa <= j+0.5 < xb.
			j0 := int(math.Ceil(xs[i]-0.5)) - win.ColOff
			j1 := int(math.Ceil(xs[i+1]-0.5)) - win.ColOff
			if j0 < 0 {
				j0 = 0
			}
			if j1 > win.Width {
				j1 = win.Width
			}
			for j := j0; j < j1; j++ {
				mask[base+j] = true
			}
		}
	}
	return mask
}
