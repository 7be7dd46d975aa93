package palette

import (
	"fmt"
	"image"
	"sort"
)

// Colormap maps a class code to its display color. Each value holds 3 or 4
// channel bytes (red, green, blue, alpha); extra channels are ignored.
type Colormap map[int32][]uint8

// Codes returns the class codes of cm in ascending order.
func (cm Colormap) Codes() []int32 {
	codes := make([]int32, 0, len(cm))
	for c := range cm {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Without returns a copy of cm that has no entry for the given codes.
func (cm Colormap) Without(codes ...int32) Colormap {
	out := make(Colormap, len(cm))
	for c, v := range cm {
		out[c] = v
	}
	for _, c := range codes {
		delete(out, c)
	}
	return out
}

// maxDenseCode bounds the lookup table; colormaps of 8 and 16-bit rasters fit.
const maxDenseCode = 1 << 16

// Recolor turns a row-major grid of class codes into an RGBA image.
// Pixels whose code has no colormap entry stay zero (0,0,0,0). Only the
// channels a colormap entry actually supplies are written.
func Recolor(codes []int32, width, height int, cm Colormap) (*image.NRGBA, error) {
	if width < 0 || height < 0 || len(codes) != width*height {
		return nil, fmt.Errorf("palette: %d codes do not fill a %dx%d grid", len(codes), width, height)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if len(cm) == 0 {
		return img, nil
	}

	lookup := lookupFunc(cm)
	for i, code := range codes {
		rgba, ok := lookup(code)
		if !ok {
			continue
		}
		n := len(rgba)
		if n > 4 {
			n = 4
		}
		copy(img.Pix[i*4:i*4+n], rgba[:n])
	}
	return img, nil
}

// lookupFunc returns a dense table lookup when every code is small and
// non-negative, otherwise a map lookup.
func lookupFunc(cm Colormap) func(int32) ([]uint8, bool) {
	lo, hi := int32(0), int32(0)
	for c := range cm {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if lo < 0 || hi >= maxDenseCode {
		return func(c int32) ([]uint8, bool) {
			v, ok := cm[c]
			return v, ok
		}
	}

	table := make([][]uint8, hi+1)
	for c, v := range cm {
		// Empty entries still count as present; keep them non-nil.
		if v == nil {
			v = []uint8{}
		}
		table[c] = v
	}
	return func(c int32) ([]uint8, bool) {
		if c < 0 || c > hi {
			return nil, false
		}
		v := table[c]
		return v, v != nil
	}
}
