package vision

import (
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultIntensity is the downsample factor used when none is set.
	DefaultIntensity = 0.04
	// FaceIntensity gives coarser blocks for faces.
	FaceIntensity = 0.02
)

// PixelateOptions controls how a region is obscured. Intensity is the
// ratio between the downsampled and original region size; smaller means
// coarser blocks. BlurSigma, when positive, softens the blocks afterwards.
type PixelateOptions struct {
	Intensity float64
	BlurSigma float64
}

func (o PixelateOptions) intensity() float64 {
	switch {
	case o.Intensity <= 0 || math.IsNaN(o.Intensity):
		return DefaultIntensity
	case o.Intensity > 1:
		return 1
	}
	return o.Intensity
}

// Pixelate obscures every non-empty box of dst in place and returns the
// number of regions painted.
func Pixelate(dst draw.Image, boxes []BoundingBox, opts PixelateOptions) int {
	painted := 0
	for _, b := range boxes {
		r := b.Rect(dst.Bounds())
		if r.Empty() {
			continue
		}
		pixelateRect(dst, r, opts)
		painted++
	}
	return painted
}

func pixelateRect(dst draw.Image, r image.Rectangle, opts PixelateOptions) {
	k := opts.intensity()
	sw := max(1, int(math.Floor(float64(r.Dx())*k)))
	sh := max(1, int(math.Floor(float64(r.Dy())*k)))

	small := image.NewRGBA(image.Rect(0, 0, sw, sh))
	xdraw.NearestNeighbor.Scale(small, small.Bounds(), dst, r, xdraw.Src, nil)
	xdraw.NearestNeighbor.Scale(dst, r, small, small.Bounds(), xdraw.Src, nil)

	if opts.BlurSigma > 0 {
		blurred := imaging.Blur(imaging.Crop(dst, r), opts.BlurSigma)
		draw.Draw(dst, r, blurred, image.Point{}, draw.Src)
	}
}

// RedactRegions copies src and pixelates the boxes on the copy.
func RedactRegions(src image.Image, boxes []BoundingBox, opts PixelateOptions) (*image.RGBA, int) {
	b := src.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, src, b.Min, draw.Src)
	return out, Pixelate(out, boxes, opts)
}
