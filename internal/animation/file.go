package animation

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/icza/mjpeg"
)

// Output formats.
const (
	FormatGIF = "gif"
	FormatAVI = "avi"
)

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	switch normalizeFormat(format) {
	case FormatAVI:
		return "video/x-msvideo"
	default:
		return "image/gif"
	}
}

// ValidFormat reports whether format names a supported encoding. The empty
// string selects GIF.
func ValidFormat(format string) bool {
	switch normalizeFormat(format) {
	case FormatGIF, FormatAVI:
		return true
	}
	return false
}

// FormatFromPath picks the format from a file extension, defaulting to GIF.
func FormatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".avi") {
		return FormatAVI
	}
	return FormatGIF
}

func normalizeFormat(format string) string {
	if format == "" {
		return FormatGIF
	}
	return strings.ToLower(format)
}

// Encode writes the sequence to w in the given format.
func (o *Output) Encode(w io.Writer, format string, opts EncodeOptions) error {
	switch normalizeFormat(format) {
	case FormatGIF:
		return o.EncodeGIF(w, opts)
	case FormatAVI:
		// The AVI writer needs a seekable file.
		tmp, err := os.CreateTemp("", "animation-*.avi")
		if err != nil {
			return err
		}
		name := tmp.Name()
		tmp.Close()
		defer os.Remove(name)

		if err := o.writeAVI(name, opts); err != nil {
			return err
		}
		rf, err := os.Open(name)
		if err != nil {
			return err
		}
		defer rf.Close()
		_, err = io.Copy(w, rf)
		return err
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}

// Bytes encodes the sequence in format and returns the result.
func (o *Output) Bytes(format string, opts EncodeOptions) ([]byte, error) {
	if !ValidFormat(format) {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
	var buf bytes.Buffer
	if err := o.Encode(&buf, format, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes the sequence into path. See Publish.
func (o *Output) WriteFile(path, format string, opts EncodeOptions) error {
	data, err := o.Bytes(format, opts)
	if err != nil {
		return err
	}
	return Publish(path, data)
}

// Publish writes data to path under a temporary name in the same directory
// and renames it into place, so readers never see a partial artifact.
func Publish(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}

// writeAVI writes the frames as Motion-JPEG into an AVI container at path.
// Transparent pixels become black.
func (o *Output) writeAVI(path string, opts EncodeOptions) error {
	if len(o.Frames) == 0 {
		return ErrNoFrames
	}
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 90
	}
	fps := o.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}

	size := o.Size()
	aw, err := mjpeg.New(path, int32(size.X), int32(size.Y), int32(fps))
	if err != nil {
		return fmt.Errorf("create avi: %w", err)
	}

	var buf bytes.Buffer
	bg := image.NewRGBA(image.Rectangle{Max: size})
	for i, img := range o.rendered(opts) {
		draw.Draw(bg, bg.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		draw.Draw(bg, bg.Bounds(), img, img.Bounds().Min, draw.Over)

		buf.Reset()
		if err := jpeg.Encode(&buf, bg, &jpeg.Options{Quality: quality}); err != nil {
			aw.Close()
			return fmt.Errorf("encode frame %d as jpeg: %w", o.Frames[i].Year, err)
		}
		if err := aw.AddFrame(buf.Bytes()); err != nil {
			aw.Close()
			return fmt.Errorf("add frame %d: %w", o.Frames[i].Year, err)
		}
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("close avi: %w", err)
	}
	return nil
}
