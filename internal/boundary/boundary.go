package boundary

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

var (
	// ErrNotFound is returned when no record matches a (state, county) pair.
	ErrNotFound = errors.New("boundary not found")
	// ErrAmbiguousMatch is returned when more than one record matches.
	ErrAmbiguousMatch = errors.New("boundary match is ambiguous")
	// ErrReprojection is returned when a matched geometry cannot be
	// expressed in the target CRS.
	ErrReprojection = errors.New("boundary cannot be reprojected")
)

// WGS84 is the CRS assumed for boundary data that does not declare one.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// Record is one administrative polygon as loaded from the boundary dataset.
type Record struct {
	State    string
	County   string
	Geometry geom.Polygonal
	SR       *proj.SR
}

// AdminBoundary is the resolved boundary of one county, expressed in the
// CRS it was reprojected to.
type AdminBoundary struct {
	State    string
	County   string
	Geometry geom.Polygonal
	SR       *proj.SR
}

// Bounds returns the bounding box of the boundary geometry.
func (b *AdminBoundary) Bounds() *geom.Bounds { return b.Geometry.Bounds() }

// Resolve finds the single record in store matching state and county exactly
// and reprojects it into target. A nil target leaves the geometry in its
// source CRS.
func Resolve(store Store, state, county string, target *proj.SR) (*AdminBoundary, error) {
	matches := store.Find(state, county)
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s, %s", ErrNotFound, county, state)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d records for %s, %s", ErrAmbiguousMatch, len(matches), county, state)
	}
	rec := matches[0]

	out := &AdminBoundary{State: rec.State, County: rec.County, Geometry: rec.Geometry, SR: rec.SR}
	if target != nil && rec.SR != nil && rec.SR != target {
		p, err := reproject(rec.Geometry, rec.SR, target)
		if err != nil {
			return nil, fmt.Errorf("%w: %s, %s: %v", ErrReprojection, county, state, err)
		}
		out.Geometry = p
		out.SR = target
	}
	if !validBounds(out.Geometry) {
		return nil, fmt.Errorf("%w: %s, %s has empty bounds", ErrReprojection, county, state)
	}
	return out, nil
}

func reproject(p geom.Polygonal, from, to *proj.SR) (geom.Polygonal, error) {
	trans, err := from.NewTransform(to)
	if err != nil {
		return nil, err
	}
	g, err := p.Transform(trans)
	if err != nil {
		return nil, err
	}
	out, ok := g.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("transformed geometry is %T, not polygonal", g)
	}
	return out, nil
}

func validBounds(p geom.Polygonal) bool {
	if p == nil {
		return false
	}
	b := p.Bounds()
	if b == nil {
		return false
	}
	for _, v := range []float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Min.X < b.Max.X && b.Min.Y < b.Max.Y
}
