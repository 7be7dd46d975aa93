// Package animation collects per-year frames and encodes them as a looping
// animated image.
package animation

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrDimensionMismatch is returned when a frame's size differs from the
	// frames already in the sequence.
	ErrDimensionMismatch = errors.New("frame dimensions do not match")
	// ErrNoFrames is returned when encoding an empty sequence.
	ErrNoFrames = errors.New("animation has no frames")
	// ErrUnsupportedFormat is returned for an output format other than gif or avi.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

const (
	// DefaultFPS is the playback rate used when none is configured.
	DefaultFPS = 4
	// LoopForever is the loop count meaning "repeat indefinitely".
	LoopForever = 0
)

// Frame is one recolored image labelled with the year it shows.
type Frame struct {
	Year  int
	Image *image.NRGBA
}

// Assembler accumulates frames in the order they are appended.
type Assembler struct {
	FPS       int
	LoopCount int

	frames []Frame
	size   image.Point
}

// NewAssembler returns an Assembler for the given playback rate and loop
// count. fps <= 0 selects DefaultFPS.
func NewAssembler(fps, loopCount int) *Assembler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Assembler{FPS: fps, LoopCount: loopCount}
}

// Append adds f to the end of the sequence. Every frame must have the size of
// the first one.
func (a *Assembler) Append(f Frame) error {
	if f.Image == nil {
		return fmt.Errorf("frame %d: nil image", f.Year)
	}
	size := f.Image.Bounds().Size()
	if len(a.frames) > 0 && size != a.size {
		return fmt.Errorf("%w: frame %d is %dx%d, sequence is %dx%d",
			ErrDimensionMismatch, f.Year, size.X, size.Y, a.size.X, a.size.Y)
	}
	a.size = size
	a.frames = append(a.frames, f)
	return nil
}

// Len returns the number of frames appended so far.
func (a *Assembler) Len() int { return len(a.frames) }

// Assemble returns the accumulated sequence and resets the Assembler.
func (a *Assembler) Assemble() *Output {
	fps := a.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	out := &Output{Frames: a.frames, FPS: fps, LoopCount: a.LoopCount}
	a.frames = nil
	a.size = image.Point{}
	return out
}

// Output is an ordered frame sequence together with its playback settings.
type Output struct {
	Frames    []Frame
	FPS       int
	LoopCount int
}

// Years lists the year of every frame in order.
func (o *Output) Years() []int {
	years := make([]int, len(o.Frames))
	for i, f := range o.Frames {
		years[i] = f.Year
	}
	return years
}

// Size returns the frame size, or the zero point for an empty sequence.
func (o *Output) Size() image.Point {
	if len(o.Frames) == 0 {
		return image.Point{}
	}
	return o.Frames[0].Image.Bounds().Size()
}

// delay is the per-frame display time in hundredths of a second.
func (o *Output) delay() int {
	fps := o.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	if d := 100 / fps; d > 0 {
		return d
	}
	return 1
}
