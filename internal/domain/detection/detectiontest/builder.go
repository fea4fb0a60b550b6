// Package detectiontest builds synthetic model outputs for tests.
package detectiontest

import (
	"math"

	"pestscan-server/internal/domain/detection"
)

const (
	// MaskRows mirrors the mask coefficient rows of the segmentation head.
	MaskRows = 32
	// DefaultAnchors is enough anchors for a handful of detections plus
	// background; far fewer than the real head's 8400.
	DefaultAnchors = 96

	backgroundLogit = -8.0
)

// Anchor describes one foreground anchor. A Runner above zero gives
// RunnerClass that probability, which sets the anchor's margin.
type Anchor struct {
	Class       int
	Prob        float64
	Box         detection.Box
	RunnerClass int
	Runner      float64
}

// Builder lays out a [1, 4+C+MaskRows, N] tensor.
type Builder struct {
	numClasses int
	anchors    int
	background int
	fg         []Anchor
}

func NewBuilder() *Builder {
	return &Builder{numClasses: len(detection.DefaultLabels), anchors: DefaultAnchors, background: -1}
}

// Anchors sets the total anchor count.
func (b *Builder) Anchors(n int) *Builder {
	b.anchors = n
	return b
}

// Background makes classID the argmax of every background anchor. Without
// it all background classes tie and class 0 dominates.
func (b *Builder) Background(classID int) *Builder {
	b.background = classID
	return b
}

func (b *Builder) Add(a Anchor) *Builder {
	b.fg = append(b.fg, a)
	return b
}

// Spread adds n anchors of classID at prob on a grid of non-overlapping boxes.
func (b *Builder) Spread(classID, n int, prob float64) *Builder {
	for i := 0; i < n; i++ {
		b.Add(Anchor{Class: classID, Prob: prob, Box: GridBox(len(b.fg))})
	}
	return b
}

// GridBox returns the i-th cell of an 8x8 grid of small disjoint boxes.
// The coordinates survive the float32 round trip exactly.
func GridBox(i int) detection.Box {
	return detection.Box{
		CX: 0.0625 + 0.125*float64(i%8),
		CY: 0.0625 + 0.125*float64((i/8)%8),
		W:  0.0625,
		H:  0.0625,
	}
}

// Tensor renders the output. Foreground anchors occupy the first columns.
func (b *Builder) Tensor() *detection.Tensor {
	features := 4 + b.numClasses + MaskRows
	n := b.anchors
	if n < len(b.fg) {
		n = len(b.fg)
	}
	data := make([]float32, features*n)
	set := func(row, col int, v float64) { data[row*n+col] = float32(v) }

	for col := 0; col < n; col++ {
		set(0, col, 0.5)
		set(1, col, 0.5)
		set(2, col, 0.1)
		set(3, col, 0.1)
		for c := 0; c < b.numClasses; c++ {
			set(4+c, col, backgroundLogit)
		}
		if b.background >= 0 {
			set(4+b.background, col, backgroundLogit+2)
		}
	}

	for col, a := range b.fg {
		set(0, col, a.Box.CX)
		set(1, col, a.Box.CY)
		set(2, col, a.Box.W)
		set(3, col, a.Box.H)
		for c := 0; c < b.numClasses; c++ {
			set(4+c, col, backgroundLogit)
		}
		if a.Runner > 0 {
			set(4+a.RunnerClass, col, Logit(a.Runner))
		}
		set(4+a.Class, col, Logit(a.Prob))
	}

	return &detection.Tensor{Shape: []int{1, features, n}, Data: data}
}

// Logit is the inverse sigmoid.
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
