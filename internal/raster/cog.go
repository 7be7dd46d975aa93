package raster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"nlcd-county/internal/palette"

	"github.com/ctessum/geom/proj"
)

// YearPlaceholder is substituted with the four-digit year in URL templates.
const YearPlaceholder = "{year}"

// DefaultURLTemplate addresses the Annual NLCD land cover tiles.
const DefaultURLTemplate = "https://s3-us-west-2.amazonaws.com/mrlc/Annual_NLCD_LndCov_" + YearPlaceholder + "_CU_C1V0.tif"

var errClosed = errors.New("raster: source is closed")

// Options tune how a GeoTIFF is interpreted.
type Options struct {
	// Name identifies the raster in error messages, typically its URL.
	Name string
	// CRS, when set, is used instead of the CRS derived from GeoKeys.
	CRS string
}

// COG is a tiled or stripped GeoTIFF read through byte-range requests.
type COG struct {
	name string
	t    *tiffReader
	lay  layout

	grid        Grid
	tilesAcross int
	tilesDown   int
	offsets     ifdEntry
	counts      ifdEntry

	crs      string
	sr       *proj.SR
	nodata   int32
	colormap palette.Colormap
	closed   bool
}

// Open reads the header and first image directory of a GeoTIFF. All errors
// wrap ErrSourceUnavailable.
func Open(ctx context.Context, rr RangeReader, opts Options) (*COG, error) {
	c, err := open(ctx, rr, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, opts.Name, err)
	}
	return c, nil
}

func open(ctx context.Context, rr RangeReader, opts Options) (*COG, error) {
	t, dir, err := openTIFF(ctx, rr)
	if err != nil {
		return nil, err
	}
	c := &COG{name: opts.Name, t: t}

	width, err := t.uint(ctx, dir, tagImageWidth, 0)
	if err != nil {
		return nil, err
	}
	height, err := t.uint(ctx, dir, tagImageLength, 0)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("missing image dimensions")
	}
	c.grid.Width, c.grid.Height = int(width), int(height)

	if err := c.readLayout(ctx, dir); err != nil {
		return nil, err
	}
	if err := c.readGeoreference(ctx, dir, opts.CRS); err != nil {
		return nil, err
	}
	if err := c.readNoData(ctx, dir); err != nil {
		return nil, err
	}
	if err := c.readColormap(ctx, dir); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *COG) readLayout(ctx context.Context, dir ifd) error {
	t := c.t
	lay := layout{order: t.order}

	samples, err := t.uint(ctx, dir, tagSamplesPerPixel, 1)
	if err != nil {
		return err
	}
	lay.samples = int(samples)
	if planar, err := t.uint(ctx, dir, tagPlanarConfiguration, 1); err != nil {
		return err
	} else if planar != 1 && lay.samples > 1 {
		return fmt.Errorf("planar configuration %d is not supported", planar)
	}

	bits, err := t.uint(ctx, dir, tagBitsPerSample, 1)
	if err != nil {
		return err
	}
	if bits != 8 && bits != 16 {
		return fmt.Errorf("%d bits per sample is not supported", bits)
	}
	lay.bits = int(bits)

	format, err := t.uint(ctx, dir, tagSampleFormat, sampleUint)
	if err != nil {
		return err
	}
	switch format {
	case sampleUint:
	case sampleInt:
		lay.signed = true
	default:
		return fmt.Errorf("sample format %d is not supported", format)
	}

	if lay.compression, err = t.uint(ctx, dir, tagCompression, compressionNone); err != nil {
		return err
	}
	if lay.predictor, err = t.uint(ctx, dir, tagPredictor, 1); err != nil {
		return err
	}

	if _, tiled := dir[tagTileWidth]; tiled {
		tw, err := t.uint(ctx, dir, tagTileWidth, 0)
		if err != nil {
			return err
		}
		th, err := t.uint(ctx, dir, tagTileLength, 0)
		if err != nil {
			return err
		}
		if tw == 0 || th == 0 {
			return fmt.Errorf("zero tile size")
		}
		lay.tileWidth, lay.tileHeight = int(tw), int(th)
		c.offsets, c.counts = dir[tagTileOffsets], dir[tagTileByteCounts]
	} else {
		rows, err := t.uint(ctx, dir, tagRowsPerStrip, uint64(c.grid.Height))
		if err != nil {
			return err
		}
		if rows == 0 || rows > uint64(c.grid.Height) {
			rows = uint64(c.grid.Height)
		}
		lay.tileWidth, lay.tileHeight = c.grid.Width, int(rows)
		c.offsets, c.counts = dir[tagStripOffsets], dir[tagStripByteCounts]
	}

	c.tilesAcross = (c.grid.Width + lay.tileWidth - 1) / lay.tileWidth
	c.tilesDown = (c.grid.Height + lay.tileHeight - 1) / lay.tileHeight
	need := uint64(c.tilesAcross * c.tilesDown)
	if c.offsets.count < need || c.counts.count < need {
		return fmt.Errorf("expected %d tile offsets, found %d", need, c.offsets.count)
	}
	c.lay = lay
	return nil
}

func (c *COG) readGeoreference(ctx context.Context, dir ifd, override string) error {
	t := c.t
	var keys *geoKeys
	if e, ok := dir[tagGeoKeyDirectory]; ok {
		kd, err := t.uints(ctx, e)
		if err != nil {
			return fmt.Errorf("geokey directory: %w", err)
		}
		var doubles []float64
		if e, ok := dir[tagGeoDoubleParams]; ok {
			if doubles, err = t.float64s(ctx, e); err != nil {
				return err
			}
		}
		var ascii string
		if e, ok := dir[tagGeoASCIIParams]; ok {
			if ascii, err = t.ascii(ctx, e); err != nil {
				return err
			}
		}
		if keys, err = parseGeoKeys(kd, doubles, ascii); err != nil {
			return err
		}
	}

	var gt GeoTransform
	if e, ok := dir[tagModelTransformation]; ok {
		m, err := t.float64s(ctx, e)
		if err != nil {
			return err
		}
		if len(m) < 16 {
			return fmt.Errorf("model transformation has %d values", len(m))
		}
		if m[1] != 0 || m[4] != 0 {
			return fmt.Errorf("rotated rasters are not supported")
		}
		gt = GeoTransform{OriginX: m[3], PixelWidth: m[0], OriginY: m[7], PixelHeight: m[5]}
	} else {
		se, ok1 := dir[tagModelPixelScale]
		te, ok2 := dir[tagModelTiepoint]
		if !ok1 || !ok2 {
			return fmt.Errorf("raster is not georeferenced")
		}
		scale, err := t.float64s(ctx, se)
		if err != nil {
			return err
		}
		tie, err := t.float64s(ctx, te)
		if err != nil {
			return err
		}
		if len(scale) < 2 || len(tie) < 6 {
			return fmt.Errorf("short pixel scale or tiepoint")
		}
		gt = GeoTransform{
			OriginX:     tie[3] - tie[0]*scale[0],
			OriginY:     tie[4] + tie[1]*scale[1],
			PixelWidth:  scale[0],
			PixelHeight: -scale[1],
		}
	}
	if gt.PixelWidth == 0 || gt.PixelHeight == 0 {
		return fmt.Errorf("zero pixel size")
	}
	if keys != nil && keys.pixelIsPoint() {
		gt.OriginX -= gt.PixelWidth / 2
		gt.OriginY -= gt.PixelHeight / 2
	}
	c.grid.Transform = gt

	crs := strings.TrimSpace(override)
	if crs == "" {
		if keys == nil {
			return fmt.Errorf("no GeoKeys and no CRS override")
		}
		def, err := keys.proj4()
		if err != nil {
			return err
		}
		crs = def
	}
	sr, err := proj.Parse(crs)
	if err != nil {
		return fmt.Errorf("parse CRS %q: %w", crs, err)
	}
	c.crs, c.sr = crs, sr
	return nil
}

// readNoData reads GDAL_NODATA. Rasters without it use 0.
func (c *COG) readNoData(ctx context.Context, dir ifd) error {
	e, ok := dir[tagGDALNoData]
	if !ok {
		return nil
	}
	s, err := c.t.ascii(ctx, e)
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("nodata %q is not an integer class code", s)
	}
	c.nodata = int32(v)
	return nil
}

// readColormap builds one entry per representable code, scaling the 16-bit
// TIFF channels to 8 bits and setting alpha to 255.
func (c *COG) readColormap(ctx context.Context, dir ifd) error {
	e, ok := dir[tagColorMap]
	if !ok {
		return fmt.Errorf("no color table for band 1")
	}
	vals, err := c.t.uints(ctx, e)
	if err != nil {
		return fmt.Errorf("color map: %w", err)
	}
	n := 1 << c.lay.bits
	if len(vals) != 3*n {
		return fmt.Errorf("color map has %d values, want %d", len(vals), 3*n)
	}
	cm := make(palette.Colormap, n)
	for i := 0; i < n; i++ {
		code := int32(i)
		if c.lay.signed {
			code = int32(i) - int32(n/2)
		}
		cm[code] = []uint8{
			uint8(vals[i] / 257),
			uint8(vals[n+i] / 257),
			uint8(vals[2*n+i] / 257),
			255,
		}
	}
	c.colormap = cm
	return nil
}

// CRS implements Source.
func (c *COG) CRS() string { return c.crs }

// SR implements Source.
func (c *COG) SR() *proj.SR { return c.sr }

// NoData implements Source.
func (c *COG) NoData() int32 { return c.nodata }

// Colormap implements Source.
func (c *COG) Colormap() palette.Colormap { return c.colormap }

// Grid implements Source.
func (c *COG) Grid() Grid { return c.grid }

// Close implements Source.
func (c *COG) Close() error {
	c.closed = true
	c.t = nil
	return nil
}

type tileRef struct {
	tx, ty int
	rng    byteRange
}

// ReadWindow implements Source. Errors wrap ErrSourceUnavailable.
func (c *COG) ReadWindow(ctx context.Context, w Window) ([]int32, error) {
	if c.closed {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, errClosed)
	}
	full := Window{Width: c.grid.Width, Height: c.grid.Height}
	if w.Empty() || w.Intersect(full) != w {
		return nil, fmt.Errorf("raster: window %+v outside %dx%d grid", w, c.grid.Width, c.grid.Height)
	}
	out, err := c.readWindow(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, c.name, err)
	}
	return out, nil
}

func (c *COG) readWindow(ctx context.Context, w Window) ([]int32, error) {
	lay := c.lay
	tx0, tx1 := w.ColOff/lay.tileWidth, (w.ColOff+w.Width-1)/lay.tileWidth
	ty0, ty1 := w.RowOff/lay.tileHeight, (w.RowOff+w.Height-1)/lay.tileHeight

	out := make([]int32, w.Width*w.Height)
	for i := range out {
		out[i] = c.nodata
	}

	var refs []tileRef
	for ty := ty0; ty <= ty1; ty++ {
		start := uint64(ty*c.tilesAcross + tx0)
		n := uint64(tx1 - tx0 + 1)
		offs, err := c.t.uintsAt(ctx, c.offsets, start, n)
		if err != nil {
			return nil, fmt.Errorf("tile offsets: %w", err)
		}
		cnts, err := c.t.uintsAt(ctx, c.counts, start, n)
		if err != nil {
			return nil, fmt.Errorf("tile byte counts: %w", err)
		}
		for i := range offs {
			if cnts[i] == 0 {
				continue // sparse tile, left as nodata
			}
			refs = append(refs, tileRef{
				tx:  tx0 + i,
				ty:  ty,
				rng: byteRange{Off: int64(offs[i]), Len: int64(cnts[i])},
			})
		}
	}

	ranges := make([]byteRange, len(refs))
	for i, r := range refs {
		ranges[i] = r.rng
	}
	for _, span := range coalesce(ranges, coalesceGap) {
		data, err := c.t.rr.ReadRange(ctx, span.Off, span.Len)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) < span.Len {
			return nil, fmt.Errorf("short read at %d: got %d of %d bytes", span.Off, len(data), span.Len)
		}
		for _, r := range refs {
			if r.rng.Off < span.Off || r.rng.end() > span.end() {
				continue
			}
			raw := data[r.rng.Off-span.Off : r.rng.end()-span.Off]
			if err := c.paste(out, w, r, raw); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// paste decodes one tile and copies its overlap with w into out.
func (c *COG) paste(out []int32, w Window, r tileRef, raw []byte) error {
	lay := c.lay
	tile, err := lay.decompress(raw)
	if err != nil {
		return fmt.Errorf("tile (%d,%d): %w", r.tx, r.ty, err)
	}
	tw := Window{
		ColOff: r.tx * lay.tileWidth,
		RowOff: r.ty * lay.tileHeight,
		Width:  lay.tileWidth,
		Height: lay.tileHeight,
	}
	ov := tw.Intersect(w)
	for row := ov.RowOff; row < ov.RowOff+ov.Height; row++ {
		dst := (row - w.RowOff) * w.Width
		for col := ov.ColOff; col < ov.ColOff+ov.Width; col++ {
			out[dst+col-w.ColOff] = lay.sample(tile, col-tw.ColOff, row-tw.RowOff)
		}
	}
	return nil
}

// COGOpener opens one year of a raster series addressed by a URL template.
type COGOpener struct {
	URLTemplate string
	Client      *http.Client
	CRS         string
}

// URL returns the raster URL for year.
func (o *COGOpener) URL(year int) string {
	tpl := o.URLTemplate
	if tpl == "" {
		tpl = DefaultURLTemplate
	}
	return strings.ReplaceAll(tpl, YearPlaceholder, strconv.Itoa(year))
}

// Open implements Opener.
func (o *COGOpener) Open(ctx context.Context, year int) (Source, error) {
	url := o.URL(year)
	return Open(ctx, NewHTTPRangeReader(o.Client, url), Options{Name: url, CRS: o.CRS})
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, year int) (Source, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, year int) (Source, error) { return f(ctx, year) }
