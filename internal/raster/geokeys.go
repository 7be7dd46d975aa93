package raster

import (
	"fmt"
	"strconv"
	"strings"
)

// GeoKey IDs.
const (
	keyGTModelType        = 1024
	keyGTRasterType       = 1025
	keyGeographicType     = 2048
	keyGeogGeodeticDatum  = 2050
	keyGeogSemiMajorAxis  = 2057
	keyGeogInvFlattening  = 2059
	keyGeogSemiMinorAxis  = 2058
	keyProjectedCSType    = 3072
	keyProjCoordTrans     = 3075
	keyProjLinearUnits    = 3076
	keyProjStdParallel1   = 3078
	keyProjStdParallel2   = 3079
	keyProjNatOriginLong  = 3080
	keyProjNatOriginLat   = 3081
	keyProjFalseEasting   = 3082
	keyProjFalseNorthing  = 3083
	keyProjFalseOrigLong  = 3084
	keyProjFalseOrigLat   = 3085
	keyProjFalseOrigEast  = 3086
	keyProjFalseOrigNorth = 3087
	keyProjCenterLong     = 3088
	keyProjCenterLat      = 3089
	keyProjScaleAtNatOrig = 3092
	keyProjScaleAtCenter  = 3093
)

const (
	modelProjected  = 1
	modelGeographic = 2

	rasterPixelIsPoint = 2

	userDefined = 32767
)

// Coordinate transformation codes (ProjCoordTransGeoKey).
const (
	ctTransverseMercator  = 1
	ctMercator            = 7
	ctLambertConfConic2SP = 8
	ctAlbersEqualArea     = 11
)

// geoKeys holds decoded GeoKey values: integers, doubles, or ASCII.
type geoKeys struct {
	shorts  map[uint16]uint16
	doubles map[uint16]float64
	ascii   map[uint16]string
}

func parseGeoKeys(dir []uint64, doubles []float64, ascii string) (*geoKeys, error) {
	if len(dir) < 4 {
		return nil, fmt.Errorf("geokeys: directory too short")
	}
	k := &geoKeys{
		shorts:  map[uint16]uint16{},
		doubles: map[uint16]float64{},
		ascii:   map[uint16]string{},
	}
	n := int(dir[3])
	if len(dir) < 4+4*n {
		return nil, fmt.Errorf("geokeys: directory declares %d keys but holds %d", n, (len(dir)-4)/4)
	}
	for i := 0; i < n; i++ {
		e := dir[4+4*i : 8+4*i]
		id, loc, count, val := uint16(e[0]), e[1], int(e[2]), int(e[3])
		switch loc {
		case 0:
			k.shorts[id] = uint16(val)
		case tagGeoDoubleParams:
			if val+count > len(doubles) || count < 1 {
				return nil, fmt.Errorf("geokeys: key %d: double index out of range", id)
			}
			k.doubles[id] = doubles[val]
		case tagGeoASCIIParams:
			if val+count > len(ascii) {
				return nil, fmt.Errorf("geokeys: key %d: ascii index out of range", id)
			}
			k.ascii[id] = strings.TrimRight(ascii[val:val+count], "|\x00")
		}
	}
	return k, nil
}

func (k *geoKeys) double(ids ...uint16) (float64, bool) {
	for _, id := range ids {
		if v, ok := k.doubles[id]; ok {
			return v, true
		}
	}
	return 0, false
}

func (k *geoKeys) pixelIsPoint() bool {
	return k.shorts[keyGTRasterType] == rasterPixelIsPoint
}

// proj4 returns the proj4 definition of the coordinate system the keys
// describe.
func (k *geoKeys) proj4() (string, error) {
	model := k.shorts[keyGTModelType]
	if pcs, ok := k.shorts[keyProjectedCSType]; ok && pcs != userDefined {
		if def, ok := epsgProj4(int(pcs)); ok {
			return def, nil
		}
		return "", fmt.Errorf("geokeys: unsupported projected CRS EPSG:%d", pcs)
	}
	if model == modelGeographic {
		return "+proj=longlat " + k.datum() + " +no_defs", nil
	}
	if model != modelProjected && model != 0 {
		return "", fmt.Errorf("geokeys: unsupported model type %d", model)
	}

	ct, ok := k.shorts[keyProjCoordTrans]
	if !ok {
		return "", fmt.Errorf("geokeys: user-defined projection without ProjCoordTransGeoKey")
	}

	p := newParams()
	lat0, _ := k.double(keyProjFalseOrigLat, keyProjNatOriginLat, keyProjCenterLat)
	lon0, _ := k.double(keyProjFalseOrigLong, keyProjNatOriginLong, keyProjCenterLong)
	x0, _ := k.double(keyProjFalseEasting, keyProjFalseOrigEast)
	y0, _ := k.double(keyProjFalseNorthing, keyProjFalseOrigNorth)

	switch ct {
	case ctAlbersEqualArea, ctLambertConfConic2SP:
		lat1, ok1 := k.double(keyProjStdParallel1)
		lat2, ok2 := k.double(keyProjStdParallel2)
		if !ok1 || !ok2 {
			return "", fmt.Errorf("geokeys: conic projection without standard parallels")
		}
		name := "aea"
		if ct == ctLambertConfConic2SP {
			name = "lcc"
		}
		p.add("proj", name)
		p.addFloat("lat_0", lat0)
		p.addFloat("lon_0", lon0)
		p.addFloat("lat_1", lat1)
		p.addFloat("lat_2", lat2)
	case ctTransverseMercator:
		scale, ok := k.double(keyProjScaleAtNatOrig, keyProjScaleAtCenter)
		if !ok {
			scale = 1
		}
		p.add("proj", "tmerc")
		p.addFloat("lat_0", lat0)
		p.addFloat("lon_0", lon0)
		p.addFloat("k", scale)
	case ctMercator:
		scale, ok := k.double(keyProjScaleAtNatOrig)
		if !ok {
			scale = 1
		}
		p.add("proj", "merc")
		p.addFloat("lon_0", lon0)
		p.addFloat("k", scale)
	default:
		return "", fmt.Errorf("geokeys: unsupported coordinate transformation %d", ct)
	}
	p.addFloat("x_0", x0)
	p.addFloat("y_0", y0)
	return p.String() + " " + k.datum() + " " + k.units() + " +no_defs", nil
}

func (k *geoKeys) datum() string {
	gcs := k.shorts[keyGeographicType]
	switch {
	case gcs == 4269 || k.shorts[keyGeogGeodeticDatum] == 6269:
		return "+datum=NAD83"
	case gcs == 4267 || k.shorts[keyGeogGeodeticDatum] == 6267:
		return "+datum=NAD27"
	case gcs == 4326 || k.shorts[keyGeogGeodeticDatum] == 6326:
		return "+datum=WGS84"
	}
	if a, ok := k.double(keyGeogSemiMajorAxis); ok {
		if rf, ok := k.double(keyGeogInvFlattening); ok {
			return fmt.Sprintf("+a=%s +rf=%s", fmtFloat(a), fmtFloat(rf))
		}
		if b, ok := k.double(keyGeogSemiMinorAxis); ok {
			return fmt.Sprintf("+a=%s +b=%s", fmtFloat(a), fmtFloat(b))
		}
	}
	return "+datum=WGS84"
}

func (k *geoKeys) units() string {
	switch k.shorts[keyProjLinearUnits] {
	case 9002:
		return "+units=ft"
	case 9003:
		return "+units=us-ft"
	}
	return "+units=m"
}

// epsgProj4 knows the projected systems NLCD-style rasters are published in.
func epsgProj4(code int) (string, bool) {
	switch {
	case code == 5070:
		return "+proj=aea +lat_0=23 +lon_0=-96 +lat_1=29.5 +lat_2=45.5 +x_0=0 +y_0=0 +datum=NAD83 +units=m +no_defs", true
	case code == 3857:
		return "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +no_defs", true
	case code == 4326:
		return "+proj=longlat +datum=WGS84 +no_defs", true
	case code == 4269:
		return "+proj=longlat +datum=NAD83 +no_defs", true
	case code >= 32601 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), true
	case code >= 32701 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700), true
	case code >= 26901 && code <= 26923:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=NAD83 +units=m +no_defs", code-26900), true
	}
	return "", false
}

type params []string

func newParams() *params { return &params{} }

func (p *params) add(k, v string) { *p = append(*p, "+"+k+"="+v) }

func (p *params) addFloat(k string, v float64) { p.add(k, fmtFloat(v)) }

func (p *params) String() string { return strings.Join(*p, " ") }

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
