package image

import (
	"fmt"
	stdimage "image"

	"gonum.org/v1/gonum/stat"
)

const (
	minResolutionIssue   = 32
	minResolutionWarning = 100
	darkIssue            = 10.0
	darkWarning          = 30.0
	brightIssue          = 250.0
	brightWarning        = 230.0
	blurIssue            = 15.0
	blurWarning          = 50.0
)

// luma8 is the ITU-R 601 grayscale value rounded to 8 bits.
func luma8(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// Grayscale returns the luma plane of img in row-major order.
func Grayscale(img *stdimage.RGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	gray := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for x := 0; x < w*4; x += 4 {
			gray = append(gray, float64(luma8(row[x], row[x+1], row[x+2])))
		}
	}
	return gray
}

// AssessQuality reports resolution, brightness and sharpness problems. It never
// fails; an unacceptable report is advisory only.
func AssessQuality(img *RawImage) QualityReport {
	w, h := img.Width, img.Height
	report := QualityReport{
		Issues:     []string{},
		Warnings:   []string{},
		Resolution: [2]int{w, h},
	}

	if w < minResolutionIssue || h < minResolutionIssue {
		report.Issues = append(report.Issues, fmt.Sprintf("Image too small (%dx%dpx, minimum 32x32px)", w, h))
	} else if w < minResolutionWarning || h < minResolutionWarning {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Low resolution (%dx%dpx) may reduce accuracy", w, h))
	}

	gray := Grayscale(img.Pixels)
	if len(gray) > 0 {
		report.Brightness = stat.Mean(gray, nil)
	}
	switch b := report.Brightness; {
	case b < darkIssue:
		report.Issues = append(report.Issues, fmt.Sprintf("Image too dark (brightness %.0f/255)", b))
	case b < darkWarning:
		report.Warnings = append(report.Warnings, fmt.Sprintf("Image is very dark (brightness %.0f/255)", b))
	case b > brightIssue:
		report.Issues = append(report.Issues, fmt.Sprintf("Image overexposed (brightness %.0f/255)", b))
	case b > brightWarning:
		report.Warnings = append(report.Warnings, fmt.Sprintf("Image is very bright (brightness %.0f/255)", b))
	}

	report.Sharpness = sharpness(gray, w, h)
	if report.Sharpness < blurIssue {
		report.Issues = append(report.Issues, fmt.Sprintf("Image extremely blurry (sharpness %.1f, minimum 15)", report.Sharpness))
	} else if report.Sharpness < blurWarning {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Image appears blurry (sharpness %.1f)", report.Sharpness))
	}

	report.Acceptable = len(report.Issues) == 0
	return report
}

// sharpness is the mean of the population variances of the horizontal and
// vertical first differences.
func sharpness(gray []float64, w, h int) float64 {
	if w < 2 || h < 2 {
		return 0
	}

	dx := make([]float64, 0, (w-1)*h)
	for y := 0; y < h; y++ {
		row := gray[y*w : (y+1)*w]
		for x := 1; x < w; x++ {
			dx = append(dx, row[x]-row[x-1])
		}
	}
	dy := make([]float64, 0, w*(h-1))
	for y := 1; y < h; y++ {
		for x := 0; x < w; x++ {
			dy = append(dy, gray[y*w+x]-gray[(y-1)*w+x])
		}
	}

	_, vx := stat.PopMeanVariance(dx, nil)
	_, vy := stat.PopMeanVariance(dy, nil)
	return (vx + vy) / 2
}
