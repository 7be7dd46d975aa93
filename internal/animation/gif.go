package animation

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
)

// EncodeOptions controls how frames are rendered before encoding.
type EncodeOptions struct {
	// Labels draws each frame's year in its lower-left corner.
	Labels bool
	// JPEGQuality is used by the AVI encoder; 0 selects 90.
	JPEGQuality int
}

var transparent = color.NRGBA{}

// EncodeGIF writes the sequence as an animated GIF. When all frames together
// use at most 256 colours they share one exact palette, with fully
// transparent pixels mapped to the GIF transparent index. Otherwise each
// frame is dithered onto the Plan 9 palette.
func (o *Output) EncodeGIF(w io.Writer, opts EncodeOptions) error {
	if len(o.Frames) == 0 {
		return ErrNoFrames
	}
	imgs := o.rendered(opts)

	var paletted []*image.Paletted
	if pal, index, ok := exactPalette(imgs); ok {
		paletted = make([]*image.Paletted, len(imgs))
		for i, img := range imgs {
			paletted[i] = indexImage(img, pal, index)
		}
	} else {
		paletted = make([]*image.Paletted, len(imgs))
		for i, img := range imgs {
			b := img.Bounds()
			p := image.NewPaletted(b, palette.Plan9)
			draw.FloydSteinberg.Draw(p, b, img, b.Min)
			paletted[i] = p
		}
	}

	size := o.Size()
	g := &gif.GIF{
		Image:     paletted,
		Delay:     make([]int, len(paletted)),
		Disposal:  make([]byte, len(paletted)),
		LoopCount: o.LoopCount,
		Config:    image.Config{Width: size.X, Height: size.Y},
	}
	for i := range paletted {
		g.Delay[i] = o.delay()
		g.Disposal[i] = gif.DisposalBackground
	}
	if err := gif.EncodeAll(w, g); err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}

// gifColor folds a pixel into the colour it will have in the GIF: any alpha
// 0 pixel is transparent, anything else is opaque.
func gifColor(c color.NRGBA) color.NRGBA {
	if c.A == 0 {
		return transparent
	}
	c.A = 0xff
	return c
}

// exactPalette collects the distinct colours of imgs. ok is false when there
// are more than 256.
func exactPalette(imgs []*image.NRGBA) (color.Palette, map[color.NRGBA]uint8, bool) {
	index := make(map[color.NRGBA]uint8)
	var pal color.Palette
	for _, img := range imgs {
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := gifColor(img.NRGBAAt(x, y))
				if _, ok := index[c]; ok {
					continue
				}
				if len(pal) == 256 {
					return nil, nil, false
				}
				index[c] = uint8(len(pal))
				pal = append(pal, c)
			}
		}
	}
	return pal, index, true
}

func indexImage(img *image.NRGBA, pal color.Palette, index map[color.NRGBA]uint8) *image.Paletted {
	b := img.Bounds()
	p := image.NewPaletted(b, pal)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := p.Pix[(y-b.Min.Y)*p.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			row[x-b.Min.X] = index[gifColor(img.NRGBAAt(x, y))]
		}
	}
	return p
}

// rendered returns the frame images with any overlays applied. Frames are
// never modified in place.
func (o *Output) rendered(opts EncodeOptions) []*image.NRGBA {
	imgs := make([]*image.NRGBA, len(o.Frames))
	for i, f := range o.Frames {
		if opts.Labels {
			imgs[i] = labelYear(f.Image, f.Year)
		} else {
			imgs[i] = f.Image
		}
	}
	return imgs
}
