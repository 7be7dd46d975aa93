package boundary

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/proj"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// LoadGeoJSON reads a FeatureCollection of Polygon or MultiPolygon features.
// GeoJSON coordinates are always WGS84 longitude/latitude.
func LoadGeoJSON(r io.Reader, fields Fields) ([]Record, error) {
	fields = fields.orDefault()
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if !strings.EqualFold(fc.Type, "FeatureCollection") {
		return nil, fmt.Errorf("decode geojson: type %q is not a FeatureCollection", fc.Type)
	}
	sr, err := proj.Parse(WGS84)
	if err != nil {
		return nil, err
	}

	recs := make([]Record, 0, len(fc.Features))
	for i, f := range fc.Features {
		p, err := decodePolygonal(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("geojson feature %d: %w", i, err)
		}
		recs = append(recs, Record{
			State:    propString(f.Properties, fields.State),
			County:   propString(f.Properties, fields.County),
			Geometry: p,
			SR:       sr,
		})
	}
	return recs, nil
}

func decodePolygonal(raw []byte) (geom.Polygonal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("missing geometry")
	}
	g, err := geojson.Decode(raw)
	if err != nil {
		return nil, err
	}
	p, ok := g.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("geometry is %T, boundaries need to be polygons", g)
	}
	return p, nil
}

func propString(props map[string]any, name string) string {
	switch v := props[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
