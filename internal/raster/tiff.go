package raster

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeLong8     = 16
	typeSLong8    = 17
	typeIFD8      = 18
)

// Baseline, tiling and GeoTIFF tags read by the decoder.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagPredictor                 = 317
	tagColorMap                  = 320
	tagTileWidth                 = 322
	tagTileLength                = 323
	tagTileOffsets               = 324
	tagTileByteCounts            = 325
	tagSampleFormat              = 339

	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
	tagGDALNoData          = 42113
)

// headerFetch is the size of the first read; a COG keeps its first IFD and
// most tag values inside it.
const headerFetch = 16 << 10

func typeSize(typ uint16) int {
	switch typ {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeRational, typeSRational, typeDouble, typeLong8, typeSLong8, typeIFD8:
		return 8
	}
	return 0
}

type ifdEntry struct {
	tag    uint16
	typ    uint16
	count  uint64
	inline []byte // set when the value fits in the entry
	offset uint64 // otherwise, where the value lives
}

type ifd map[uint16]ifdEntry

// tiffReader fetches parts of a TIFF, serving reads from the header buffer
// when it can.
type tiffReader struct {
	rr    RangeReader
	head  []byte
	order binary.ByteOrder
	big   bool
}

func openTIFF(ctx context.Context, rr RangeReader) (*tiffReader, ifd, error) {
	head, err := rr.ReadRange(ctx, 0, headerFetch)
	if err != nil {
		return nil, nil, err
	}
	if len(head) < 8 {
		return nil, nil, fmt.Errorf("tiff: file too short (%d bytes)", len(head))
	}

	t := &tiffReader{rr: rr, head: head}
	switch string(head[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("tiff: bad byte order mark %q", head[:2])
	}

	var first uint64
	switch v := t.order.Uint16(head[2:4]); v {
	case 42:
		first = uint64(t.order.Uint32(head[4:8]))
	case 43:
		if len(head) < 16 {
			return nil, nil, fmt.Errorf("tiff: short BigTIFF header")
		}
		if t.order.Uint16(head[4:6]) != 8 {
			return nil, nil, fmt.Errorf("tiff: unsupported BigTIFF offset size %d", t.order.Uint16(head[4:6]))
		}
		t.big = true
		first = t.order.Uint64(head[8:16])
	default:
		return nil, nil, fmt.Errorf("tiff: bad version %d", v)
	}

	dir, err := t.readIFD(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	return t, dir, nil
}

func (t *tiffReader) read(ctx context.Context, off, n uint64) ([]byte, error) {
	if off+n <= uint64(len(t.head)) {
		return t.head[off : off+n], nil
	}
	b, err := t.rr.ReadRange(ctx, int64(off), int64(n))
	if err != nil {
		return nil, err
	}
	if uint64(len(b)) < n {
		return nil, fmt.Errorf("tiff: short read at %d: got %d of %d bytes", off, len(b), n)
	}
	return b, nil
}

func (t *tiffReader) readIFD(ctx context.Context, off uint64) (ifd, error) {
	countSize, entrySize, valueSize := uint64(2), uint64(12), 4
	if t.big {
		countSize, entrySize, valueSize = 8, 20, 8
	}

	cb, err := t.read(ctx, off, countSize)
	if err != nil {
		return nil, fmt.Errorf("tiff: read IFD count: %w", err)
	}
	var n uint64
	if t.big {
		n = t.order.Uint64(cb)
	} else {
		n = uint64(t.order.Uint16(cb))
	}
	if n == 0 || n > 4096 {
		return nil, fmt.Errorf("tiff: implausible IFD entry count %d", n)
	}

	eb, err := t.read(ctx, off+countSize, n*entrySize)
	if err != nil {
		return nil, fmt.Errorf("tiff: read IFD entries: %w", err)
	}

	dir := make(ifd, n)
	for i := uint64(0); i < n; i++ {
		b := eb[i*entrySize : (i+1)*entrySize]
		e := ifdEntry{tag: t.order.Uint16(b[0:2]), typ: t.order.Uint16(b[2:4])}
		var value []byte
		if t.big {
			e.count = t.order.Uint64(b[4:12])
			value = b[12:20]
		} else {
			e.count = uint64(t.order.Uint32(b[4:8]))
			value = b[8:12]
		}
		size := typeSize(e.typ)
		if size == 0 {
			continue // unknown types are skipped, as libtiff does
		}
		if e.count*uint64(size) <= uint64(valueSize) {
			e.inline = value[:e.count*uint64(size)]
		} else if t.big {
			e.offset = t.order.Uint64(value)
		} else {
			e.offset = uint64(t.order.Uint32(value))
		}
		dir[e.tag] = e
	}
	return dir, nil
}

// bytes returns count values of e starting at index start as raw bytes.
func (t *tiffReader) bytes(ctx context.Context, e ifdEntry, start, count uint64) ([]byte, error) {
	if start+count > e.count {
		return nil, fmt.Errorf("tiff: tag %d: index %d+%d out of range %d", e.tag, start, count, e.count)
	}
	size := uint64(typeSize(e.typ))
	if e.inline != nil {
		return e.inline[start*size : (start+count)*size], nil
	}
	return t.read(ctx, e.offset+start*size, count*size)
}

// uintsAt decodes count integer values of e starting at index start.
func (t *tiffReader) uintsAt(ctx context.Context, e ifdEntry, start, count uint64) ([]uint64, error) {
	b, err := t.bytes(ctx, e, start, count)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		switch e.typ {
		case typeByte, typeUndefined:
			out[i] = uint64(b[i])
		case typeShort:
			out[i] = uint64(t.order.Uint16(b[i*2:]))
		case typeLong:
			out[i] = uint64(t.order.Uint32(b[i*4:]))
		case typeLong8, typeIFD8:
			out[i] = t.order.Uint64(b[i*8:])
		default:
			return nil, fmt.Errorf("tiff: tag %d: type %d is not an unsigned integer", e.tag, e.typ)
		}
	}
	return out, nil
}

func (t *tiffReader) uints(ctx context.Context, e ifdEntry) ([]uint64, error) {
	return t.uintsAt(ctx, e, 0, e.count)
}

func (t *tiffReader) float64s(ctx context.Context, e ifdEntry) ([]float64, error) {
	b, err := t.bytes(ctx, e, 0, e.count)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		switch e.typ {
		case typeDouble:
			out[i] = math.Float64frombits(t.order.Uint64(b[i*8:]))
		case typeFloat:
			out[i] = float64(math.Float32frombits(t.order.Uint32(b[i*4:])))
		default:
			return nil, fmt.Errorf("tiff: tag %d: type %d is not floating point", e.tag, e.typ)
		}
	}
	return out, nil
}

func (t *tiffReader) ascii(ctx context.Context, e ifdEntry) (string, error) {
	if e.typ != typeASCII {
		return "", fmt.Errorf("tiff: tag %d: type %d is not ASCII", e.tag, e.typ)
	}
	b, err := t.bytes(ctx, e, 0, e.count)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// uint returns the first value of tag, or def when the tag is absent.
func (t *tiffReader) uint(ctx context.Context, dir ifd, tag uint16, def uint64) (uint64, error) {
	e, ok := dir[tag]
	if !ok || e.count == 0 {
		return def, nil
	}
	v, err := t.uintsAt(ctx, e, 0, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}
