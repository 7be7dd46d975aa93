package boundary

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultPath is the GADM administrative boundary archive for the United States.
const DefaultPath = "https://geodata.ucdavis.edu/diva/adm/USA_adm.zip"

// DefaultLayer is the county-level layer inside DefaultPath.
const DefaultLayer = "USA_adm2"

// Source describes where boundary records are loaded from.
type Source struct {
	// Path is a local file or an http(s) URL of a .zip, .shp, .geojson or .json.
	Path string
	// Layer is the shapefile base name to extract from a zip archive.
	Layer  string
	Fields Fields
	// DSN, when set, loads records from PostgreSQL with Query instead of Path.
	DSN   string
	Query string
}

// Open loads every record described by src into an InMemoryStore. Remote
// files are downloaded with client into a temporary directory that is
// removed before Open returns.
func Open(ctx context.Context, client *http.Client, src Source) (*InMemoryStore, error) {
	if src.DSN != "" {
		return openSQL(ctx, src)
	}
	if src.Path == "" {
		src.Path = DefaultPath
	}
	if src.Layer == "" {
		src.Layer = DefaultLayer
	}

	tmp, err := os.MkdirTemp("", "boundary-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	local := src.Path
	if isURL(src.Path) {
		if client == nil {
			client = http.DefaultClient
		}
		local = filepath.Join(tmp, path.Base(strings.SplitN(src.Path, "?", 2)[0]))
		if err := download(ctx, client, src.Path, local); err != nil {
			return nil, err
		}
	}

	var recs []Record
	switch ext := strings.ToLower(filepath.Ext(local)); ext {
	case ".zip":
		shpPath, err := extractLayer(local, src.Layer, tmp)
		if err != nil {
			return nil, err
		}
		recs, err = LoadShapefile(shpPath, src.Fields)
		if err != nil {
			return nil, err
		}
	case ".shp":
		recs, err = LoadShapefile(local, src.Fields)
		if err != nil {
			return nil, err
		}
	case ".geojson", ".json":
		f, err := os.Open(local)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		recs, err = LoadGeoJSON(f, src.Fields)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("boundary source %s: unsupported extension %q", src.Path, ext)
	}
	return NewInMemoryStore(recs), nil
}

func openSQL(ctx context.Context, src Source) (*InMemoryStore, error) {
	db, err := OpenSQL(src.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	recs, err := LoadSQL(ctx, db, src.Query)
	if err != nil {
		return nil, err
	}
	return NewInMemoryStore(recs), nil
}

func isURL(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func download(ctx context.Context, client *http.Client, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	return f.Close()
}

// shapefileParts are the sidecar extensions extracted along with the .shp.
var shapefileParts = []string{".shp", ".shx", ".dbf", ".prj"}

// extractLayer copies the files of layer out of the zip archive into dir and
// returns the path of the extracted .shp.
func extractLayer(archive, layer, dir string) (string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", archive, err)
	}
	defer zr.Close()

	var shpPath string
	for _, zf := range zr.File {
		base := path.Base(zf.Name)
		ext := strings.ToLower(path.Ext(base))
		if !strings.EqualFold(strings.TrimSuffix(base, path.Ext(base)), layer) || !isShapefilePart(ext) {
			continue
		}
		dst := filepath.Join(dir, layer+ext)
		if err := extractFile(zf, dst); err != nil {
			return "", fmt.Errorf("extract %s from %s: %w", zf.Name, archive, err)
		}
		if ext == ".shp" {
			shpPath = dst
		}
	}
	if shpPath == "" {
		return "", fmt.Errorf("layer %s not found in %s", layer, archive)
	}
	return shpPath, nil
}

func isShapefilePart(ext string) bool {
	for _, p := range shapefileParts {
		if ext == p {
			return true
		}
	}
	return false
}

func extractFile(zf *zip.File, dst string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
