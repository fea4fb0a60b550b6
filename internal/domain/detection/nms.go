package detection

import (
	"math"
	"sort"
)

// IoU of two center/size boxes.
func (b Box) IoU(o Box) float64 {
	ax1, ay1, ax2, ay2 := b.CX-b.W/2, b.CY-b.H/2, b.CX+b.W/2, b.CY+b.H/2
	bx1, by1, bx2, by2 := o.CX-o.W/2, o.CY-o.H/2, o.CX+o.W/2, o.CY+o.H/2

	iw := math.Max(0, math.Min(ax2, bx2)-math.Max(ax1, bx1))
	ih := math.Max(0, math.Min(ay2, by2)-math.Max(ay1, by1))
	inter := iw * ih

	union := b.W*b.H + o.W*o.H - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Degenerate reports boxes too small or too large to be a real object, and
// boxes with a non-finite coordinate.
func (b Box) Degenerate(minSize, maxSize float64) bool {
	for _, v := range [...]float64{b.CX, b.CY, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return !(b.W >= minSize && b.H >= minSize && b.W <= maxSize && b.H <= maxSize)
}

// NMS keeps the highest-confidence detection of every overlapping cluster.
// The input slice is not modified; ties keep their input order.
func NMS(dets []AnchorDetection, iouThreshold float64) []AnchorDetection {
	if len(dets) == 0 {
		return nil
	}
	sorted := append([]AnchorDetection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]AnchorDetection, 0, len(sorted))
	suppressed := make([]bool, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !suppressed[j] && sorted[i].Box.IoU(sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
