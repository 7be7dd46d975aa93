package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// Compression schemes.
const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

const predictorHorizontal = 2

// Sample formats.
const (
	sampleUint = 1
	sampleInt  = 2
)

// layout describes how band 1 samples are stored in each tile.
type layout struct {
	order       binary.ByteOrder
	compression uint64
	predictor   uint64
	bits        int // bits per sample: 8 or 16
	signed      bool
	samples     int // samples per pixel, chunky
	tileWidth   int
	tileHeight  int
}

func (l layout) bytesPerSample() int { return l.bits / 8 }

func (l layout) rowBytes() int { return l.tileWidth * l.samples * l.bytesPerSample() }

// decompress returns the uncompressed bytes of one tile or strip.
func (l layout) decompress(raw []byte) ([]byte, error) {
	want := l.rowBytes() * l.tileHeight
	var out []byte
	switch l.compression {
	case compressionNone:
		out = raw
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer r.Close()
		b, err := io.ReadAll(io.LimitReader(r, int64(want)))
		if err != nil && len(b) < want {
			return nil, fmt.Errorf("lzw: %w", err)
		}
		out = b
	case compressionDeflate, compressionDeflateOld:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer r.Close()
		b, err := io.ReadAll(io.LimitReader(r, int64(want)))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		out = b
	default:
		return nil, fmt.Errorf("unsupported compression %d", l.compression)
	}

	// Last strips may be short; pad so rows index safely.
	if len(out) < want {
		padded := make([]byte, want)
		copy(padded, out)
		out = padded
	}
	if l.predictor == predictorHorizontal {
		l.undoPredictor(out)
	}
	return out, nil
}

// undoPredictor reverses horizontal differencing in place.
func (l layout) undoPredictor(b []byte) {
	rowBytes := l.rowBytes()
	stride := l.samples
	for y := 0; y < l.tileHeight; y++ {
		row := b[y*rowBytes : (y+1)*rowBytes]
		switch l.bits {
		case 8:
			for i := stride; i < len(row); i++ {
				row[i] += row[i-stride]
			}
		case 16:
			for i := stride * 2; i+1 < len(row); i += 2 {
				prev := l.order.Uint16(row[i-stride*2:])
				cur := l.order.Uint16(row[i:])
				l.order.PutUint16(row[i:], cur+prev)
			}
		}
	}
}

// sample returns band 1 at (x, y) inside a decompressed tile.
func (l layout) sample(tile []byte, x, y int) int32 {
	i := y*l.rowBytes() + x*l.samples*l.bytesPerSample()
	switch l.bits {
	case 8:
		if l.signed {
			return int32(int8(tile[i]))
		}
		return int32(tile[i])
	default:
		v := l.order.Uint16(tile[i:])
		if l.signed {
			return int32(int16(v))
		}
		return int32(v)
	}
}
