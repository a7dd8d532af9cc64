package pixfmt

import "image/color"

// putFunc stores pixel i (row-major) of the decoded frame
type putFunc func(i int, r, g, b uint8)

// decode walks a raw frame of the given format and emits RGB for every
// pixel. The caller has already validated len(src).
func decode(f Format, src []byte, w, h int, put putFunc) {
	if p, ok := packedFormats[f]; ok {
		for i, o := 0, 0; i < w*h; i, o = i+1, o+p.size {
			put(i, src[o+p.r], src[o+p.g], src[o+p.b])
		}
		return
	}

	switch f {
	case Gray:
		for i := 0; i < w*h; i++ {
			put(i, src[i], src[i], src[i])
		}

	case YUYV422, UYVY422:
		y0, u, y1, v := 0, 1, 2, 3
		if f == UYVY422 {
			u, y0, v, y1 = 0, 1, 2, 3
		}
		for i, o := 0, 0; i < w*h; i, o = i+2, o+4 {
			r, g, b := color.YCbCrToRGB(src[o+y0], src[o+u], src[o+v])
			put(i, r, g, b)
			r, g, b = color.YCbCrToRGB(src[o+y1], src[o+u], src[o+v])
			put(i+1, r, g, b)
		}

	case NV12, NV21:
		cw := (w + 1) / 2
		uv := src[w*h:]
		uOff, vOff := 0, 1
		if f == NV21 {
			uOff, vOff = 1, 0
		}
		for y := 0; y < h; y++ {
			row := (y / 2) * cw * 2
			for x := 0; x < w; x++ {
				c := row + (x/2)*2
				r, g, b := color.YCbCrToRGB(src[y*w+x], uv[c+uOff], uv[c+vOff])
				put(y*w+x, r, g, b)
			}
		}

	case YUV420P:
		cw, ch := (w+1)/2, (h+1)/2
		us := src[w*h : w*h+cw*ch]
		vs := src[w*h+cw*ch:]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := (y/2)*cw + x/2
				r, g, b := color.YCbCrToRGB(src[y*w+x], us[c], vs[c])
				put(y*w+x, r, g, b)
			}
		}
	}
}
