package boundary

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ctessum/geom/proj"
	_ "github.com/lib/pq"
)

// DefaultQuery selects (state, county, geometry as GeoJSON in EPSG:4326)
// rows from a PostGIS table of GADM level-2 boundaries.
const DefaultQuery = `SELECT name_1, name_2, ST_AsGeoJSON(ST_Transform(geom, 4326)) FROM usa_adm2 ORDER BY gid`

// OpenSQL connects to a PostgreSQL database.
func OpenSQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	return db, nil
}

// LoadSQL runs query and reads one record per row. Each row must have three
// columns: state name, county name and a GeoJSON geometry in WGS84.
func LoadSQL(ctx context.Context, db *sql.DB, query string) ([]Record, error) {
	if query == "" {
		query = DefaultQuery
	}
	sr, err := proj.Parse(WGS84)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query boundaries: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var state, county, gj sql.NullString
		if err := rows.Scan(&state, &county, &gj); err != nil {
			return nil, fmt.Errorf("scan boundary row: %w", err)
		}
		p, err := decodePolygonal([]byte(gj.String))
		if err != nil {
			return nil, fmt.Errorf("boundary row %d (%s, %s): %w", len(recs), county.String, state.String, err)
		}
		recs = append(recs, Record{State: state.String, County: county.String, Geometry: p, SR: sr})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read boundary rows: %w", err)
	}
	return recs, nil
}
