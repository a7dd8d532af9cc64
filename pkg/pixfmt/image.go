package pixfmt

import (
	"image"
	"image/color"
)

// PackImage writes img into dst as packed RGB24. dst must be exactly
// width*height*3 bytes for the image bounds. Alpha is dropped.
func PackImage(dst []byte, img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if err := CheckRGB24(dst, w, h); err != nil {
		return err
	}

	switch src := img.(type) {
	case *image.RGBA:
		packRows(dst, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
	case *image.NRGBA:
		packRows(dst, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				o := (y*w + x) * 3
				dst[o], dst[o+1], dst[o+2] = row[x], row[x], row[x]
			}
		}
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := src.COffset(b.Min.X+x, b.Min.Y+y)
				o := (y*w + x) * 3
				dst[o], dst[o+1], dst[o+2] = color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
				o := (y*w + x) * 3
				dst[o], dst[o+1], dst[o+2] = c.R, c.G, c.B
			}
		}
	}
	return nil
}

// packRows copies 4-byte RGBx rows into packed RGB
func packRows(dst, pix []byte, stride, offset, w, h int) {
	for y := 0; y < h; y++ {
		row := pix[offset+y*stride:]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			dst[o], dst[o+1], dst[o+2] = row[x*4], row[x*4+1], row[x*4+2]
		}
	}
}

// RGB is an image.Image backed by a packed RGB24 buffer
type RGB struct {
	Pix  []byte
	Rect image.Rectangle
}

// NewRGB wraps buf without copying
func NewRGB(buf []byte, w, h int) (*RGB, error) {
	if err := CheckRGB24(buf, w, h); err != nil {
		return nil, err
	}
	return &RGB{Pix: buf, Rect: image.Rect(0, 0, w, h)}, nil
}

func (p *RGB) ColorModel() color.Model { return color.RGBAModel }

func (p *RGB) Bounds() image.Rectangle { return p.Rect }

func (p *RGB) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	o := ((y-p.Rect.Min.Y)*p.Rect.Dx() + (x - p.Rect.Min.X)) * 3
	return color.RGBA{p.Pix[o], p.Pix[o+1], p.Pix[o+2], 0xff}
}

// NRGBA copies the pixels into an opaque NRGBA image, which the standard
// encoders handle without per-pixel interface calls
func (p *RGB) NRGBA() *image.NRGBA {
	w, h := p.Rect.Dx(), p.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, o := 0, 0; i < w*h; i, o = i+1, o+3 {
		out.Pix[i*4] = p.Pix[o]
		out.Pix[i*4+1] = p.Pix[o+1]
		out.Pix[i*4+2] = p.Pix[o+2]
		out.Pix[i*4+3] = 0xff
	}
	return out
}
