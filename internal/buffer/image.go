package buffer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
)

// FromImage converts a decoded image to an RGBA buffer with straight
// (non-premultiplied) alpha.
func FromImage(img image.Image) (*Buffer, error) {
	bounds := img.Bounds()
	size := Size{Width: bounds.Dx(), Height: bounds.Dy()}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("%w: image %s", ErrInvalidSize, size)
	}
	out := New(size, RGBA)
	set := func(x, y int, r, g, b, a float32) {
		i := (y*size.Width + x) * RGBA
		out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = r, g, b, a
	}

	// Non-premultiplied sources are read directly. Going through a color
	// model would round-trip via premultiplied RGBA and lose color under
	// low alpha.
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < size.Height; y++ {
			for x := 0; x < size.Width; x++ {
				c := src.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
				set(x, y, float32(c.R)/0xff, float32(c.G)/0xff, float32(c.B)/0xff, float32(c.A)/0xff)
			}
		}
	case *image.NRGBA64:
		for y := 0; y < size.Height; y++ {
			for x := 0; x < size.Width; x++ {
				c := src.NRGBA64At(bounds.Min.X+x, bounds.Min.Y+y)
				set(x, y, float32(c.R)/0xffff, float32(c.G)/0xffff, float32(c.B)/0xffff, float32(c.A)/0xffff)
			}
		}
	default:
		for y := 0; y < size.Height; y++ {
			for x := 0; x < size.Width; x++ {
				c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
				set(x, y, float32(c.R)/0xffff, float32(c.G)/0xffff, float32(c.B)/0xffff, float32(c.A)/0xffff)
			}
		}
	}
	return out, nil
}

// DecodePNG reads a PNG stream into an RGBA buffer.
func DecodePNG(r io.Reader) (*Buffer, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return FromImage(img)
}

// LoadPNG reads a PNG file into an RGBA buffer.
func LoadPNG(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := DecodePNG(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Image returns the buffer as 8-bit NRGBA. Gray buffers become opaque gray.
func (b *Buffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.size.Width, b.size.Height))
	copy(img.Pix, b.RGBA8())
	return img
}

// EncodePNG writes the buffer as an 8-bit PNG.
func (b *Buffer) EncodePNG(w io.Writer) error {
	return png.Encode(w, b.Image())
}
