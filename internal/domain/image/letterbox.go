package image

import (
	stdimage "image"
	"image/color"

	"golang.org/x/image/draw"
)

var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// LetterboxImage resizes src into a size x size canvas, preserving aspect
// ratio and centering it on gray padding.
func LetterboxImage(src *stdimage.RGBA, size int) *stdimage.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	canvas := stdimage.NewRGBA(stdimage.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &stdimage.Uniform{C: letterboxFill}, stdimage.Point{}, draw.Src)
	if w == 0 || h == 0 {
		return canvas
	}

	scale := min(float64(size)/float64(w), float64(size)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	target := stdimage.Rect(padX, padY, padX+newW, padY+newH)
	draw.CatmullRom.Scale(canvas, target, src, src.Bounds(), draw.Src, nil)
	return canvas
}

// Letterbox letterboxes src and returns it as normalized NHWC float32 data
// of shape [1, size, size, 3].
func Letterbox(src *stdimage.RGBA, size int) []float32 {
	canvas := LetterboxImage(src, size)
	out := make([]float32, size*size*3)
	i := 0
	for p := 0; p < len(canvas.Pix); p += 4 {
		out[i] = float32(canvas.Pix[p]) / 255
		out[i+1] = float32(canvas.Pix[p+1]) / 255
		out[i+2] = float32(canvas.Pix[p+2]) / 255
		i += 3
	}
	return out
}
