package raster

import (
	"context"
	"errors"
	"testing"

	"github.com/ctessum/geom"
)

// pointInRing is an even-odd ray cast used to check the scanline mask.
func pointInRing(x, y float64, ring geom.Path) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func pointInPolygonal(x, y float64, p geom.Polygonal) bool {
	inside := false
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			if pointInRing(x, y, ring) {
				inside = !inside
			}
		}
	}
	return inside
}

var triangle = geom.Polygon{geom.Path{
	{X: -95.3, Y: 45.2},
	{X: -70.1, Y: 40.3},
	{X: -89.7, Y: 25.4},
}}

func checkClip(t *testing.T, f fixture, c *COG, clipped *ClippedRaster, poly geom.Polygonal) (inside int) {
	t.Helper()
	tr := c.Grid().Transform
	w := clipped.Window
	for row := 0; row < w.Height; row++ {
		for col := 0; col < w.Width; col++ {
			x, y := tr.Coord(float64(w.ColOff+col)+0.5, float64(w.RowOff+row)+0.5)
			got := clipped.At(col, row)
			if pointInPolygonal(x, y, poly) {
				inside++
				if want := int32(f.pixel8(w.ColOff+col, w.RowOff+row)); got != want {
					t.Errorf("inside cell (%d,%d) = %d, want original %d", col, row, got, want)
				}
			} else if got != c.NoData() {
				t.Errorf("outside cell (%d,%d) = %d, want nodata %d", col, row, got, c.NoData())
			}
		}
	}
	return inside
}

func TestClip_triangle(t *testing.T) {
	f := defaultFixture()
	c := f.open(t)

	clipped, err := Clip(context.Background(), c, triangle)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if want := (Window{ColOff: 4, RowOff: 4, Width: 26, Height: 21}); clipped.Window != want {
		t.Errorf("window = %+v, want %+v", clipped.Window, want)
	}
	if clipped.Width() != 26 || clipped.Height() != 21 {
		t.Errorf("size = %dx%d", clipped.Width(), clipped.Height())
	}
	if n := checkClip(t, f, c, clipped, triangle); n == 0 {
		t.Error("no cells inside the triangle")
	}
}

func TestClip_polygon_with_hole(t *testing.T) {
	f := defaultFixture()
	c := f.open(t)

	ring := func(x0, y0, x1, y1 float64) geom.Path {
		return geom.Path{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}
	}
	poly := geom.MultiPolygon{
		{ring(-98.2, 48.1, -80.4, 30.3), ring(-93.1, 43.2, -85.6, 35.7)},
		{ring(-70.3, 30.2, -65.2, 22.9)},
	}

	clipped, err := Clip(context.Background(), c, poly)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	checkClip(t, f, c, clipped, poly)

	// (-89.5, 39.5) sits in the hole.
	col, row := c.Grid().Transform.Pixel(-89.5, 39.5)
	w := clipped.Window
	if v := clipped.At(int(col)-w.ColOff, int(row)-w.RowOff); v != c.NoData() {
		t.Errorf("hole cell = %d, want nodata", v)
	}
}

func TestClip_idempotent(t *testing.T) {
	c := defaultFixture().open(t)
	a, err := Clip(context.Background(), c, triangle)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	b, err := Clip(context.Background(), c, triangle)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if a.Window != b.Window || len(a.Codes) != len(b.Codes) {
		t.Fatal("clip windows differ")
	}
	for i := range a.Codes {
		if a.Codes[i] != b.Codes[i] {
			t.Fatalf("code %d differs: %d vs %d", i, a.Codes[i], b.Codes[i])
		}
	}
}

func TestClip_partially_outside_is_cropped_to_raster(t *testing.T) {
	c := defaultFixture().open(t)
	poly := geom.Polygon{geom.Path{{X: -110, Y: 55}, {X: -90, Y: 55}, {X: -90, Y: 40}, {X: -110, Y: 40}}}
	clipped, err := Clip(context.Background(), c, poly)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if want := (Window{ColOff: 0, RowOff: 0, Width: 10, Height: 10}); clipped.Window != want {
		t.Errorf("window = %+v, want %+v", clipped.Window, want)
	}
}

func TestClip_no_overlap_is_geometry_empty(t *testing.T) {
	c := defaultFixture().open(t)
	far := geom.Polygon{geom.Path{{X: 10, Y: 10}, {X: 12, Y: 10}, {X: 11, Y: 12}}}
	if _, err := Clip(context.Background(), c, far); !errors.Is(err, ErrGeometryEmpty) {
		t.Errorf("err = %v, want ErrGeometryEmpty", err)
	}
	if _, err := Clip(context.Background(), c, nil); !errors.Is(err, ErrGeometryEmpty) {
		t.Errorf("nil polygon: err = %v, want ErrGeometryEmpty", err)
	}
}

type failingSource struct{ *COG }

func (failingSource) ReadWindow(context.Context, Window) ([]int32, error) {
	return nil, ErrSourceUnavailable
}

func TestClip_read_failure_propagates(t *testing.T) {
	src := failingSource{defaultFixture().open(t)}
	if _, err := Clip(context.Background(), src, triangle); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}
