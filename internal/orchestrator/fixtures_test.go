package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"nlcd-county/internal/boundary"
	"nlcd-county/internal/palette"
	"nlcd-county/internal/platform/logger"
	"nlcd-county/internal/platform/metrics"
	"nlcd-county/internal/raster"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

const fakeCRS = "+proj=longlat +datum=WGS84 +no_defs"

var (
	water     = []uint8{70, 107, 159, 255}
	developed = []uint8{235, 0, 0, 255}
)

var testGrid = raster.Grid{
	Width:  20,
	Height: 20,
	Transform: raster.GeoTransform{
		OriginX: -124.5, OriginY: 45.5,
		PixelWidth: 0.1, PixelHeight: -0.1,
	},
}

// fakeSource is a 20x20 raster where columns left of 12 are open water and
// the rest developed land.
type fakeSource struct {
	year    int
	crs     string
	sr      *proj.SR
	grid    raster.Grid
	readErr error
	opener  *fakeOpener
}

func (s *fakeSource) CRS() string { return s.crs }
func (s *fakeSource) SR() *proj.SR { return s.sr }
func (s *fakeSource) NoData() int32 { return 250 }
func (s *fakeSource) Grid() raster.Grid { return s.grid }
func (s *fakeSource) Close() error { s.opener.closed++; return nil }
func (s *fakeSource) Colormap() palette.Colormap {
	return palette.Colormap{11: water, 21: developed}
}

func (s *fakeSource) ReadWindow(_ context.Context, w raster.Window) ([]int32, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	codes := make([]int32, 0, w.Width*w.Height)
	for row := 0; row < w.Height; row++ {
		for col := 0; col < w.Width; col++ {
			if w.ColOff+col < 12 {
				codes = append(codes, 11)
			} else {
				codes = append(codes, 21)
			}
		}
	}
	s.opener.clipped = append(s.opener.clipped, s.year)
	return codes, nil
}

// fakeOpener records every year opened, read and closed. tweak, when set,
// may alter the source or fail the open for a given year.
type fakeOpener struct {
	sr      *proj.SR
	opened  []int
	clipped []int
	closed  int
	failed  int
	tweak   func(year int, s *fakeSource) error
}

func (o *fakeOpener) Open(_ context.Context, year int) (raster.Source, error) {
	o.opened = append(o.opened, year)
	s := &fakeSource{year: year, crs: fakeCRS, sr: o.sr, grid: testGrid, opener: o}
	if o.tweak != nil {
		if err := o.tweak(year, s); err != nil {
			o.failed++
			return nil, err
		}
	}
	return s, nil
}

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{geom.Path{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

func newFixture(t *testing.T) (*boundary.InMemoryStore, *fakeOpener) {
	t.Helper()
	sr, err := proj.Parse(fakeCRS)
	if err != nil {
		t.Fatalf("proj.Parse: %v", err)
	}
	// Records share the raster's SR so no reprojection happens.
	store := boundary.NewInMemoryStore([]boundary.Record{
		{State: "Oregon", County: "Benton", Geometry: square(-123.8, 44.3, -123.1, 44.7), SR: sr},
		{State: "Oregon", County: "Lincoln", Geometry: square(-124.1, 44.3, -123.8, 45.0), SR: sr},
		{State: "Oregon", County: "Lincoln", Geometry: square(-124.1, 44.3, -123.8, 45.0), SR: sr},
		{State: "Washington", County: "Benton", Geometry: square(-119.9, 46.0, -119.2, 46.6), SR: sr},
	})
	return store, &fakeOpener{sr: sr}
}

func newTestService(t *testing.T, m *metrics.Metrics) (*Service, *fakeOpener) {
	t.Helper()
	store, opener := newFixture(t)
	opts := Options{FPS: 4, LoopCount: 0, OutputPath: filepath.Join(t.TempDir(), "nlcd.gif")}
	return NewService(store, opener, opts, logger.Discard(), m), opener
}

var errUnreachable = fmt.Errorf("%w: connection refused", raster.ErrSourceUnavailable)

func failYear(fail int) func(int, *fakeSource) error {
	return func(year int, _ *fakeSource) error {
		if year == fail {
			return errUnreachable
		}
		return nil
	}
}

func yearOf(t *testing.T, err error) int {
	t.Helper()
	var ye *YearError
	if !errors.As(err, &ye) {
		t.Fatalf("error %v is not a *YearError", err)
	}
	return ye.Year
}
