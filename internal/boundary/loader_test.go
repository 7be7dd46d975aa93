package boundary

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

const countiesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"NAME_1": "Oregon", "NAME_2": "Benton"},
     "geometry": {"type": "Polygon", "coordinates": [[[-123.8,44.3],[-123.1,44.3],[-123.1,44.7],[-123.8,44.7],[-123.8,44.3]]]}},
    {"type": "Feature", "properties": {"NAME_1": "Hawaii", "NAME_2": "Maui"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[-156.7,20.5],[-155.9,20.5],[-155.9,21.0],[-156.7,21.0],[-156.7,20.5]]],
       [[[-157.1,20.9],[-156.8,20.9],[-156.8,21.2],[-157.1,21.2],[-157.1,20.9]]]]}}
  ]
}`

func TestLoadGeoJSON(t *testing.T) {
	recs, err := LoadGeoJSON(strings.NewReader(countiesGeoJSON), Fields{})
	if err != nil {
		t.Fatalf("LoadGeoJSON: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].State != "Oregon" || recs[0].County != "Benton" {
		t.Errorf("record 0 = %s, %s", recs[0].County, recs[0].State)
	}
	if n := len(recs[1].Geometry.Polygons()); n != 2 {
		t.Errorf("Maui has %d polygons, want 2", n)
	}
	if recs[0].SR == nil {
		t.Error("GeoJSON records need a CRS")
	}
}

func TestLoadGeoJSON_custom_fields(t *testing.T) {
	const doc = `{"type":"FeatureCollection","features":[{"type":"Feature",
	  "properties":{"STATE":"Oregon","COUNTY":"Benton","FIPS":41003},
	  "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`
	recs, err := LoadGeoJSON(strings.NewReader(doc), Fields{State: "STATE", County: "FIPS"})
	if err != nil {
		t.Fatalf("LoadGeoJSON: %v", err)
	}
	if recs[0].State != "Oregon" || recs[0].County != "41003" {
		t.Errorf("record = %q, %q", recs[0].County, recs[0].State)
	}
}

func TestLoadGeoJSON_rejects_non_polygons(t *testing.T) {
	for name, doc := range map[string]string{
		"point":    `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}]}`,
		"null":     `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":null}]}`,
		"not fc":   `{"type":"Feature","properties":{},"geometry":null}`,
		"not json": `<kml/>`,
	} {
		if _, err := LoadGeoJSON(strings.NewReader(doc), Fields{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

type countyRow struct {
	geom.Polygon
	NAME_1 string
	NAME_2 string
}

// writeShapefile writes rows to dir/name.shp without a .prj.
func writeShapefile(t *testing.T, dir, name string, rows []countyRow) string {
	t.Helper()
	p := filepath.Join(dir, name+".shp")
	e, err := shp.NewEncoder(p, countyRow{})
	if err != nil {
		t.Fatalf("shp.NewEncoder: %v", err)
	}
	for _, r := range rows {
		if err := e.Encode(r); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	e.Close()
	return p
}

var shapefileRows = []countyRow{
	{Polygon: square(-123.8, 44.3, -123.1, 44.7), NAME_1: "Oregon", NAME_2: "Benton"},
	{Polygon: square(-123.1, 44.2, -121.8, 44.8), NAME_1: "Oregon", NAME_2: "Linn"},
	{Polygon: square(-119.9, 46.0, -119.2, 46.6), NAME_1: "Washington", NAME_2: "Benton"},
}

func TestLoadShapefile(t *testing.T) {
	p := writeShapefile(t, t.TempDir(), "counties", shapefileRows)

	recs, err := LoadShapefile(p, DefaultFields)
	if err != nil {
		t.Fatalf("LoadShapefile: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[2].State != "Washington" || recs[2].County != "Benton" {
		t.Errorf("record 2 = %s, %s", recs[2].County, recs[2].State)
	}
	b := recs[0].Geometry.Bounds()
	if b.Min.X != -123.8 || b.Max.Y != 44.7 {
		t.Errorf("record 0 bounds = %+v", b)
	}
	if recs[0].SR == nil {
		t.Error("missing .prj should fall back to WGS84")
	}
}

func zipLayer(t *testing.T, dir, layer, dst string) {
	t.Helper()
	out, err := os.Create(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	zw := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		src, err := os.Open(filepath.Join(dir, layer+ext))
		if err != nil {
			t.Fatal(err)
		}
		w, err := zw.Create("USA_adm/" + layer + ext)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.Copy(w, src); err != nil {
			t.Fatal(err)
		}
		src.Close()
	}
	// A decoy layer that must not be picked up.
	w, err := zw.Create("USA_adm/USA_adm1.dbf")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("decoy"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_zip_over_http(t *testing.T) {
	dir := t.TempDir()
	writeShapefile(t, dir, "USA_adm2", shapefileRows)
	archive := filepath.Join(dir, "USA_adm.zip")
	zipLayer(t, dir, "USA_adm2", archive)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer srv.Close()

	s, err := Open(context.Background(), srv.Client(), Source{Path: srv.URL + "/USA_adm.zip", Layer: "USA_adm2"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
	if _, err := Resolve(s, "Oregon", "Linn", nil); err != nil {
		t.Errorf("Resolve: %v", err)
	}
}

func TestOpen_local_geojson(t *testing.T) {
	p := filepath.Join(t.TempDir(), "counties.geojson")
	if err := os.WriteFile(p, []byte(countiesGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(context.Background(), nil, Source{Path: p})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Counties("Hawaii"); len(got) != 1 || got[0] != "Maui" {
		t.Errorf("Counties(Hawaii) = %v", got)
	}
}

func TestOpen_errors(t *testing.T) {
	dir := t.TempDir()
	writeShapefile(t, dir, "USA_adm2", shapefileRows)
	archive := filepath.Join(dir, "USA_adm.zip")
	zipLayer(t, dir, "USA_adm2", archive)

	if _, err := Open(context.Background(), nil, Source{Path: archive, Layer: "USA_adm3"}); err == nil {
		t.Error("expected error for missing layer")
	}
	if _, err := Open(context.Background(), nil, Source{Path: filepath.Join(dir, "counties.kml")}); err == nil {
		t.Error("expected error for unsupported extension")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := Open(context.Background(), srv.Client(), Source{Path: srv.URL + "/USA_adm.zip"}); err == nil {
		t.Error("expected error for 404 download")
	}
}

func TestLoadSQL(t *testing.T) {
	dsn := os.Getenv("BOUNDARY_TEST_DSN")
	if dsn == "" {
		t.Skip("BOUNDARY_TEST_DSN not set")
	}
	db, err := OpenSQL(dsn)
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	defer db.Close()

	const q = `SELECT 'Oregon', 'Benton', '{"type":"Polygon","coordinates":[[[-123.8,44.3],[-123.1,44.3],[-123.1,44.7],[-123.8,44.3]]]}'`
	recs, err := LoadSQL(context.Background(), db, q)
	if err != nil {
		t.Fatalf("LoadSQL: %v", err)
	}
	if len(recs) != 1 || recs[0].County != "Benton" {
		t.Errorf("records = %+v", recs)
	}

	_, err = LoadSQL(context.Background(), db, `SELECT 'a', 'b', '{"type":"Point","coordinates":[0,0]}'`)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("point geometry: err = %v", err)
	}
}
