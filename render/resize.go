package render

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/splatgo/splatgo/internal/vecmath"
)

// ToRGBA converts an H*W*3 float32 image in [0,1] to an image.RGBA.
func ToRGBA(img []float32, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			o := (y*width + x) * 3
			d := dst.PixOffset(x, y)
			dst.Pix[d+0] = uint8(vecmath.Clamp(img[o+0], 0, 1)*255 + 0.5)
			dst.Pix[d+1] = uint8(vecmath.Clamp(img[o+1], 0, 1)*255 + 0.5)
			dst.Pix[d+2] = uint8(vecmath.Clamp(img[o+2], 0, 1)*255 + 0.5)
			dst.Pix[d+3] = 255
		}
	}
	return dst
}

// FromRGBA converts an image.RGBA back to an H*W*3 float32 buffer in [0,1].
func FromRGBA(src *image.RGBA) []float32 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, w*h*3)
	for y := range h {
		for x := range w {
			s := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			o := (y*w + x) * 3
			out[o+0] = float32(src.Pix[s+0]) / 255
			out[o+1] = float32(src.Pix[s+1]) / 255
			out[o+2] = float32(src.Pix[s+2]) / 255
		}
	}
	return out
}

// Downscale resizes an H*W*3 float32 image by an integer factor using
// bilinear filtering. Supervision targets rendered at a reduced resolution
// go through here so they match Camera.Downscaled geometry.
func Downscale(img []float32, width, height, factor int) ([]float32, int, int) {
	if factor <= 1 {
		return img, width, height
	}
	dw, dh := width/factor, height/factor
	src := ToRGBA(img, width, height)
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return FromRGBA(dst), dw, dh
}
