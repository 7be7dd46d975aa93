package boundary

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
)

// Fields names the two hierarchical attributes of a boundary dataset.
type Fields struct {
	State  string
	County string
}

// DefaultFields matches the GADM level-2 administrative layers.
var DefaultFields = Fields{State: "NAME_1", County: "NAME_2"}

func (f Fields) orDefault() Fields {
	if f.State == "" {
		f.State = DefaultFields.State
	}
	if f.County == "" {
		f.County = DefaultFields.County
	}
	return f
}

// LoadShapefile reads every polygon record of the shapefile at path. The CRS
// comes from the sibling .prj file; without one WGS84 is assumed.
func LoadShapefile(path string, fields Fields) ([]Record, error) {
	fields = fields.orDefault()
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer dec.Close()

	sr, err := shapefileSR(dec, path)
	if err != nil {
		return nil, err
	}

	var recs []Record
	for {
		g, attrs, more := dec.DecodeRowFields(fields.State, fields.County)
		if !more {
			break
		}
		p, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("shapefile %s: record %d is %T, boundaries need to be polygons", path, len(recs), g)
		}
		recs = append(recs, Record{
			State:    strings.TrimSpace(attrs[fields.State]),
			County:   strings.TrimSpace(attrs[fields.County]),
			Geometry: p,
			SR:       sr,
		})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", path, err)
	}
	return recs, nil
}

func shapefileSR(dec *shp.Decoder, path string) (*proj.SR, error) {
	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	if _, err := os.Stat(prj); err != nil {
		return proj.Parse(WGS84)
	}
	sr, err := dec.SR()
	if err != nil {
		return nil, fmt.Errorf("shapefile %s projection: %w", path, err)
	}
	return sr, nil
}
