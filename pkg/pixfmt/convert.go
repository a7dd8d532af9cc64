package pixfmt

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Converter turns raw frames of a fixed format and geometry into packed
// RGB24 frames of a fixed target geometry. The output buffer is allocated on
// the first conversion and reused until Release. Not safe for concurrent use.
type Converter struct {
	src        Format
	srcW, srcH int
	dstW, dstH int
	srcSize    int

	scratch []byte      // packed RGB24 output
	staging *image.RGBA // decoded source, only when resampling
	scaled  *image.RGBA // resampled target, only when resampling

	allocs   int
	released bool
}

// NewConverter validates the format and both geometries
func NewConverter(src Format, srcW, srcH, dstW, dstH int) (*Converter, error) {
	if !Supported(src) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, src)
	}
	size, err := FrameSize(src, srcW, srcH)
	if err != nil {
		return nil, err
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrInvalidGeometry, dstW, dstH)
	}

	return &Converter{
		src:     src,
		srcW:    srcW,
		srcH:    srcH,
		dstW:    dstW,
		dstH:    dstH,
		srcSize: size,
	}, nil
}

// SourceSize returns the exact raw frame length Convert accepts
func (c *Converter) SourceSize() int {
	return c.srcSize
}

// TargetSize returns the target geometry
func (c *Converter) TargetSize() (int, int) {
	return c.dstW, c.dstH
}

// Allocations reports how many times the scratch buffer was allocated
func (c *Converter) Allocations() int {
	return c.allocs
}

// Convert decodes src into the scratch buffer and returns it. The returned
// slice is overwritten by the next call and invalid after Release.
func (c *Converter) Convert(src []byte) ([]byte, error) {
	if c.released {
		return nil, ErrReleased
	}
	if len(src) != c.srcSize {
		return nil, fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrInvalidLength, c.src, c.srcW, c.srcH, c.srcSize, len(src))
	}

	if c.scratch == nil {
		c.scratch = make([]byte, RGB24Size(c.dstW, c.dstH))
		c.allocs++
	}

	if c.srcW == c.dstW && c.srcH == c.dstH {
		out := c.scratch
		decode(c.src, src, c.srcW, c.srcH, func(i int, r, g, b uint8) {
			out[i*3], out[i*3+1], out[i*3+2] = r, g, b
		})
		return c.scratch, nil
	}

	if c.staging == nil {
		c.staging = image.NewRGBA(image.Rect(0, 0, c.srcW, c.srcH))
		c.scaled = image.NewRGBA(image.Rect(0, 0, c.dstW, c.dstH))
	}
	pix := c.staging.Pix
	decode(c.src, src, c.srcW, c.srcH, func(i int, r, g, b uint8) {
		pix[i*4], pix[i*4+1], pix[i*4+2], pix[i*4+3] = r, g, b, 0xff
	})
	draw.ApproxBiLinear.Scale(c.scaled, c.scaled.Bounds(), c.staging, c.staging.Bounds(), draw.Src, nil)

	if err := PackImage(c.scratch, c.scaled); err != nil {
		return nil, err
	}
	return c.scratch, nil
}

// Release drops the scratch buffers. Calling it again is a no-op.
func (c *Converter) Release() {
	if c.released {
		return
	}
	c.released = true
	c.scratch = nil
	c.staging = nil
	c.scaled = nil
}

// Released reports whether Release has run
func (c *Converter) Released() bool {
	return c.released
}

// ScaleImage resamples src into a new w x h RGBA image
func ScaleImage(src image.Image, w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrInvalidGeometry, w, h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}
