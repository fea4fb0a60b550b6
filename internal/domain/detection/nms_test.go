package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBox_IoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{0.5, 0.5, 0.2, 0.2}, Box{0.5, 0.5, 0.2, 0.2}, 1},
		{"disjoint", Box{0.1, 0.1, 0.1, 0.1}, Box{0.9, 0.9, 0.1, 0.1}, 0},
		{"half overlap", Box{0.5, 0.5, 0.2, 0.2}, Box{0.6, 0.5, 0.2, 0.2}, 1.0 / 3.0},
		{"contained", Box{0.5, 0.5, 0.4, 0.4}, Box{0.5, 0.5, 0.2, 0.2}, 0.25},
		{"zero area", Box{0.5, 0.5, 0, 0}, Box{0.5, 0.5, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.a.IoU(tt.b), 1e-9)
			assert.InDelta(t, tt.want, tt.b.IoU(tt.a), 1e-9)
		})
	}
}

func TestBox_Degenerate(t *testing.T) {
	assert.False(t, Box{W: 0.01, H: 2}.Degenerate(0.01, 2))
	assert.True(t, Box{W: 0.009, H: 0.5}.Degenerate(0.01, 2))
	assert.True(t, Box{W: 0.5, H: 2.01}.Degenerate(0.01, 2))
	assert.True(t, Box{W: math.NaN(), H: 0.5}.Degenerate(0.01, 2))
	assert.True(t, Box{CX: math.Inf(1), W: 0.5, H: 0.5}.Degenerate(0.01, 2))
	assert.True(t, Box{CY: math.NaN(), W: 0.5, H: 0.5}.Degenerate(0.01, 2))
}

func TestNMS(t *testing.T) {
	dets := []AnchorDetection{
		{Confidence: 0.7, Box: Box{0.5, 0.5, 0.2, 0.2}},
		{Confidence: 0.9, Box: Box{0.51, 0.5, 0.2, 0.2}},
		{Confidence: 0.8, Box: Box{0.1, 0.1, 0.1, 0.1}},
		{Confidence: 0.6, Box: Box{0.6, 0.5, 0.2, 0.2}},
	}

	kept := NMS(dets, 0.5)

	assert.Equal(t, []float64{0.9, 0.8, 0.6}, confidences(kept))
	assert.Equal(t, 0.7, dets[0].Confidence, "input must not be reordered")
}

func TestNMS_StableTies(t *testing.T) {
	dets := []AnchorDetection{
		{Confidence: 0.8, Box: Box{0.5, 0.5, 0.2, 0.2}, ClassID: 1},
		{Confidence: 0.8, Box: Box{0.5, 0.5, 0.2, 0.2}, ClassID: 2},
	}

	kept := NMS(dets, 0.5)

	assert.Len(t, kept, 1)
	assert.Equal(t, 1, kept[0].ClassID)
}

func TestNMS_Empty(t *testing.T) {
	assert.Nil(t, NMS(nil, 0.5))
}

func confidences(dets []AnchorDetection) []float64 {
	out := make([]float64, len(dets))
	for i, d := range dets {
		out[i] = d.Confidence
	}
	return out
}
