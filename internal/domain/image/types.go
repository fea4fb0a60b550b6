package image

import stdimage "image"

// RawImage is a decoded RGB photograph. Pixels is never mutated after decode;
// every augmentation allocates its own buffer. Alpha is always 255.
type RawImage struct {
	Pixels *stdimage.RGBA
	Width  int
	Height int
	Format string
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}

// QualityReport is the advisory outcome of AssessQuality. Brightness is the
// mean luma on the 0-255 scale, Sharpness the gradient variance proxy.
type QualityReport struct {
	Acceptable bool     `json:"acceptable"`
	Issues     []string `json:"issues"`
	Warnings   []string `json:"warnings"`
	Brightness float64  `json:"brightness"`
	Sharpness  float64  `json:"sharpness"`
	Resolution [2]int   `json:"resolution"`
}

// Augmentation is one named test-time view of the input.
type Augmentation struct {
	Name  string
	Image *stdimage.RGBA
}
