package rimage

import (
	"image"
	"image/color"
)

// Image is a BGRA color image that shares its pixels with a FormatColorBGRA32 Buffer. It is
// only valid until that buffer is released.
type Image struct {
	buf *Buffer
}

// NewImageFromBuffer wraps a FormatColorBGRA32 buffer as an image.Image.
func NewImageFromBuffer(buf *Buffer) (*Image, error) {
	if err := buf.CheckFormat(FormatColorBGRA32); err != nil {
		return nil, err
	}
	return &Image{buf: buf}, nil
}

// ColorModel returns the non-premultiplied RGBA model.
func (i *Image) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds returns the rectangle dimensions of the image.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.buf.Width(), i.buf.Height())
}

// Width returns the width.
func (i *Image) Width() int {
	return i.buf.Width()
}

// Height returns the height.
func (i *Image) Height() int {
	return i.buf.Height()
}

// At returns the color at (x, y).
func (i *Image) At(x, y int) color.Color {
	return i.NRGBAAt(x, y)
}

// NRGBAAt returns the color at (x, y).
func (i *Image) NRGBAAt(x, y int) color.NRGBA {
	if !(image.Point{x, y}.In(i.Bounds())) {
		return color.NRGBA{}
	}
	b, g, r, a := i.buf.BGRAAt(x, y)
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// ToNRGBA copies the image into an image.NRGBA, the layout most encoders work on directly.
func (i *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(i.Bounds())
	for y := 0; y < i.buf.Height(); y++ {
		for x := 0; x < i.buf.Width(); x++ {
			b, g, r, a := i.buf.BGRAAt(x, y)
			o := out.PixOffset(x, y)
			out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = r, g, b, a
		}
	}
	return out
}

// CopyImageToBuffer draws any image into a FormatColorBGRA32 buffer of the same size.
func CopyImageToBuffer(img image.Image, dst *Buffer) error {
	if err := dst.CheckFormat(FormatColorBGRA32); err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != dst.Width() || b.Dy() != dst.Height() {
		return newSizeMismatchError(b.Dx(), b.Dy(), dst.Width(), dst.Height())
	}
	if ycc, ok := img.(*image.YCbCr); ok {
		for y := 0; y < dst.Height(); y++ {
			for x := 0; x < dst.Width(); x++ {
				c := ycc.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				dst.SetBGRA(x, y, bl, g, r, 0xff)
			}
		}
		return nil
	}
	for y := 0; y < dst.Height(); y++ {
		for x := 0; x < dst.Width(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.SetBGRA(x, y, c.B, c.G, c.R, c.A)
		}
	}
	return nil
}
