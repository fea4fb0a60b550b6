package image

import (
	stdimage "image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// View names in evaluation order.
const (
	ViewOriginal   = "original"
	ViewFlip       = "h-flip"
	ViewCenterCrop = "center-crop-1.3x"
	ViewBrightness = "brightness+15%"
	ViewContrast   = "contrast+20%"
)

const (
	cropRatio        = 0.75
	brightnessFactor = 1.15
	contrastFactor   = 1.2
)

// ViewCount is the number of test-time views GenerateAugmentations returns.
const ViewCount = 5

// GenerateAugmentations returns the five test-time views of img, in fixed
// order. The source buffer is never modified.
func GenerateAugmentations(img *RawImage) []Augmentation {
	src := img.Pixels
	return []Augmentation{
		{Name: ViewOriginal, Image: src},
		{Name: ViewFlip, Image: FlipHorizontal(src)},
		{Name: ViewCenterCrop, Image: CenterCrop(src, cropRatio)},
		{Name: ViewBrightness, Image: AdjustBrightness(src, brightnessFactor)},
		{Name: ViewContrast, Image: AdjustContrast(src, contrastFactor)},
	}
}

func FlipHorizontal(src *stdimage.RGBA) *stdimage.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := src.PixOffset(src.Rect.Min.X+x, src.Rect.Min.Y+y)
			d := dst.PixOffset(w-1-x, y)
			copy(dst.Pix[d:d+4], src.Pix[s:s+4])
		}
	}
	return dst
}

// CenterCrop keeps the centered int(ratio*w) x int(ratio*h) region, at
// least one pixel on each axis.
func CenterCrop(src *stdimage.RGBA, ratio float64) *stdimage.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	cw := max(int(float64(w)*ratio), 1)
	ch := max(int(float64(h)*ratio), 1)
	left := (w - cw) / 2
	top := (h - ch) / 2

	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, cw, ch))
	for y := 0; y < ch; y++ {
		s := src.PixOffset(src.Rect.Min.X+left, src.Rect.Min.Y+top+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+cw*4], src.Pix[s:s+cw*4])
	}
	return dst
}

// AdjustBrightness multiplies every channel by factor, clamping to 255.
func AdjustBrightness(src *stdimage.RGBA, factor float64) *stdimage.RGBA {
	return mapChannels(src, func(v float64) float64 { return v * factor })
}

// AdjustContrast scales each channel away from the image's mean gray level.
func AdjustContrast(src *stdimage.RGBA, factor float64) *stdimage.RGBA {
	mean := 0.0
	if gray := Grayscale(src); len(gray) > 0 {
		mean = math.Floor(stat.Mean(gray, nil) + 0.5)
	}
	return mapChannels(src, func(v float64) float64 { return mean + factor*(v-mean) })
}

func mapChannels(src *stdimage.RGBA, fn func(float64) float64) *stdimage.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))

	var lut [256]uint8
	for i := range lut {
		lut[i] = clamp8(fn(float64(i)))
	}

	for y := 0; y < h; y++ {
		s := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
		d := y * dst.Stride
		for x := 0; x < w*4; x += 4 {
			dst.Pix[d+x] = lut[src.Pix[s+x]]
			dst.Pix[d+x+1] = lut[src.Pix[s+x+1]]
			dst.Pix[d+x+2] = lut[src.Pix[s+x+2]]
			dst.Pix[d+x+3] = 255
		}
	}
	return dst
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}
