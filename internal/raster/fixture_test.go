package raster

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"math"
	"sort"
	"testing"
)

// fixture describes a small single-band 8-bit GeoTIFF built in memory.
type fixture struct {
	width, height int
	tileW, tileH  int // tileW == 0 writes strips of tileH rows
	compression   uint16
	predictor     uint16
	nodata        string
	noColormap    bool
	originX       float64
	originY       float64
	pixel         float64
	geoKeys       []uint16
	geoDoubles    []float64
	pixel8        func(x, y int) uint8
}

var geographicKeys = []uint16{1, 1, 0, 3,
	keyGTModelType, 0, 1, modelGeographic,
	keyGTRasterType, 0, 1, 1,
	keyGeographicType, 0, 1, 4326,
}

func defaultFixture() fixture {
	return fixture{
		width: 40, height: 30,
		tileW: 16, tileH: 16,
		compression: compressionNone,
		nodata:      "250",
		originX:     -100, originY: 50, pixel: 1,
		geoKeys: geographicKeys,
		pixel8:  func(x, y int) uint8 { return uint8((x+7*y)%20 + 1) },
	}
}

type tagValue struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var le = binary.LittleEndian

func shorts(vs ...uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		le.PutUint16(b[2*i:], v)
	}
	return b
}

func longs(vs ...uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		le.PutUint32(b[4*i:], v)
	}
	return b
}

func doubles(vs ...float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		le.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

// build encodes f as a little-endian classic TIFF.
func (f fixture) build(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	tw, th := f.tileW, f.tileH
	tiled := tw > 0
	if !tiled {
		tw = f.width
		if th == 0 {
			th = f.height
		}
	}
	across := (f.width + tw - 1) / tw
	down := (f.height + th - 1) / th

	var offsets, counts []uint32
	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			rows := th
			if !tiled && (ty+1)*th > f.height {
				rows = f.height - ty*th
			}
			raw := make([]byte, tw*rows)
			for y := 0; y < rows; y++ {
				for x := 0; x < tw; x++ {
					ix, iy := tx*tw+x, ty*th+y
					if ix < f.width && iy < f.height {
						raw[y*tw+x] = f.pixel8(ix, iy)
					}
				}
			}
			if f.predictor == predictorHorizontal {
				for y := 0; y < rows; y++ {
					row := raw[y*tw : (y+1)*tw]
					for x := len(row) - 1; x > 0; x-- {
						row[x] -= row[x-1]
					}
				}
			}
			if f.compression == compressionDeflate {
				var z bytes.Buffer
				zw := zlib.NewWriter(&z)
				if _, err := zw.Write(raw); err != nil {
					t.Fatalf("zlib write: %v", err)
				}
				if err := zw.Close(); err != nil {
					t.Fatalf("zlib close: %v", err)
				}
				raw = z.Bytes()
			}
			offsets = append(offsets, uint32(buf.Len()))
			counts = append(counts, uint32(len(raw)))
			buf.Write(raw)
		}
	}

	tags := []tagValue{
		{tagImageWidth, typeShort, 1, shorts(uint16(f.width))},
		{tagImageLength, typeShort, 1, shorts(uint16(f.height))},
		{tagBitsPerSample, typeShort, 1, shorts(8)},
		{tagCompression, typeShort, 1, shorts(f.compression)},
		{tagPhotometricInterpretation, typeShort, 1, shorts(3)},
		{tagSamplesPerPixel, typeShort, 1, shorts(1)},
		{tagModelPixelScale, typeDouble, 3, doubles(f.pixel, f.pixel, 0)},
		{tagModelTiepoint, typeDouble, 6, doubles(0, 0, 0, f.originX, f.originY, 0)},
	}
	if f.predictor != 0 {
		tags = append(tags, tagValue{tagPredictor, typeShort, 1, shorts(f.predictor)})
	}
	n := uint32(len(offsets))
	if tiled {
		tags = append(tags,
			tagValue{tagTileWidth, typeShort, 1, shorts(uint16(tw))},
			tagValue{tagTileLength, typeShort, 1, shorts(uint16(th))},
			tagValue{tagTileOffsets, typeLong, n, longs(offsets...)},
			tagValue{tagTileByteCounts, typeLong, n, longs(counts...)},
		)
	} else {
		tags = append(tags,
			tagValue{tagRowsPerStrip, typeShort, 1, shorts(uint16(th))},
			tagValue{tagStripOffsets, typeLong, n, longs(offsets...)},
			tagValue{tagStripByteCounts, typeLong, n, longs(counts...)},
		)
	}
	if !f.noColormap {
		cm := make([]uint16, 3*256)
		for i := 0; i < 256; i++ {
			cm[i] = uint16(i * 257)             // red = code
			cm[256+i] = uint16((255 - i) * 257) // green = 255 - code
			cm[512+i] = 0x7f7f                  // blue = 127
		}
		tags = append(tags, tagValue{tagColorMap, typeShort, uint32(len(cm)), shorts(cm...)})
	}
	if f.geoKeys != nil {
		tags = append(tags, tagValue{tagGeoKeyDirectory, typeShort, uint32(len(f.geoKeys)), shorts(f.geoKeys...)})
	}
	if f.geoDoubles != nil {
		tags = append(tags, tagValue{tagGeoDoubleParams, typeDouble, uint32(len(f.geoDoubles)), doubles(f.geoDoubles...)})
	}
	if f.nodata != "" {
		s := append([]byte(f.nodata), 0)
		tags = append(tags, tagValue{tagGDALNoData, typeASCII, uint32(len(s)), s})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].tag < tags[j].tag })

	values := make([][4]byte, len(tags))
	for i, tg := range tags {
		if len(tg.data) <= 4 {
			copy(values[i][:], tg.data)
			continue
		}
		if buf.Len()%2 == 1 {
			buf.WriteByte(0)
		}
		le.PutUint32(values[i][:], uint32(buf.Len()))
		buf.Write(tg.data)
	}

	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	ifdOff := uint32(buf.Len())
	buf.Write(shorts(uint16(len(tags))))
	for i, tg := range tags {
		buf.Write(shorts(tg.tag, tg.typ))
		buf.Write(longs(tg.count))
		buf.Write(values[i][:])
	}
	buf.Write(longs(0))

	out := buf.Bytes()
	le.PutUint32(out[4:8], ifdOff)
	return out
}

// open builds f and opens it through an in-memory RangeReader.
func (f fixture) open(t *testing.T) *COG {
	t.Helper()
	c, err := Open(context.Background(), ReaderAtRange{R: bytes.NewReader(f.build(t))}, Options{Name: "fixture"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}
