package animation

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const labelPadding = 4

var (
	labelColor  = color.NRGBA{0xff, 0xff, 0xff, 0xff}
	shadowColor = color.NRGBA{0, 0, 0, 0xff}
)

// labelYear returns a copy of src with year drawn in the lower-left corner
// over a one-pixel drop shadow. Frames too small to hold the text are
// returned unchanged.
func labelYear(src *image.NRGBA, year int) *image.NRGBA {
	text := strconv.Itoa(year)
	face := basicfont.Face7x13

	b := src.Bounds()
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Ascent.Ceil()
	if width+2*labelPadding > b.Dx() || height+2*labelPadding > b.Dy() {
		return src
	}

	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	x := b.Min.X + labelPadding
	y := b.Max.Y - labelPadding

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(shadowColor),
		Face: face,
		Dot:  fixed.P(x+1, y+1),
	}
	d.DrawString(text)

	d.Src = image.NewUniform(labelColor)
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
	return dst
}
