package detection

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"pestscan-server/internal/platform/logging"
)

// boxRows is the number of leading box rows (cx, cy, w, h) in the output.
const boxRows = 4

// Decoder turns raw model output into per-class candidates for one view.
type Decoder struct {
	params Params
	logger *logging.Logger
}

func NewDecoder(params Params, logger *logging.Logger) *Decoder {
	return &Decoder{params: params, logger: logger}
}

// Params returns the decoder configuration.
func (d *Decoder) Params() Params {
	return d.params
}

// Evaluate decodes one view, resolves the confusion pair within it and
// applies the spread guard.
func (d *Decoder) Evaluate(name string, t *Tensor, threshold float64) ViewResult {
	view := d.Decode(name, t, threshold)
	if view.Rejection != nil || len(view.Candidates) == 0 {
		return view
	}

	view = ResolveView(view, d.params)
	if view.Resolution.Kind != ResolutionNone {
		d.logger.InfoTag("DISAMBIG", "%s: %s", name, view.Resolution)
	}

	if rej := SpreadGuard(view.Candidates, d.params.MaxClassSpreadRatio); rej != nil {
		d.logger.InfoTag("GUARD", "%s rejected, %s", name, rej)
		view.Rejection = rej
		view.Candidates = nil
	}
	return view
}

// Decode extracts candidates from a [F, N] tensor (size-1 dims are
// squeezed first). Rows 0-3 hold the box, the next NumClasses rows the
// class logits; any further rows are ignored.
func (d *Decoder) Decode(name string, t *Tensor, threshold float64) ViewResult {
	p := d.params
	numClasses := p.NumClasses()
	view := ViewResult{Name: name, Margins: newMarginRecord(), NoiseClass: NoClass}

	if t == nil {
		view.Rejection = viewRejection(StageShape, "no output tensor")
		d.logger.WarnTag("GUARD", "%s: %s", name, view.Rejection.Reason)
		return view
	}
	sq := t.Squeeze()
	if len(sq.Shape) != 2 || sq.Elements() != len(sq.Data) || sq.Shape[0] < boxRows+numClasses || sq.Shape[1] == 0 {
		view.Rejection = viewRejection(StageShape, "unexpected output shape %v, want [F>=%d, N]",
			t.Shape, boxRows+numClasses)
		d.logger.WarnTag("GUARD", "%s: %s", name, view.Rejection.Reason)
		return view
	}

	features, anchors := sq.Shape[0], sq.Shape[1]
	raw := make([]float64, len(sq.Data))
	for i, v := range sq.Data {
		raw[i] = float64(v)
	}
	out := mat.NewDense(features, anchors, raw)

	var probs mat.Dense
	probs.Apply(func(_, _ int, v float64) float64 { return sigmoid(v) },
		out.Slice(boxRows, boxRows+numClasses, 0, anchors))

	histogram := make([]int, numClasses)
	buckets := make(map[int][]AnchorDetection, numClasses)
	column := make([]float64, numClasses)

	for n := 0; n < anchors; n++ {
		mat.Col(column, n, &probs)
		if floats.HasNaN(column) {
			// NaN logits carry no evidence for any class
			continue
		}
		classID := floats.MaxIdx(column)
		histogram[classID]++

		conf := column[classID]
		if !(conf >= threshold) {
			continue
		}
		view.Retained++

		view.Margins.Class[classID] = append(view.Margins.Class[classID], conf-secondBest(column, classID))
		if p.Pair.Contains(classID) {
			partner := p.Pair.Partner(classID)
			view.Margins.Pair[classID] = append(view.Margins.Pair[classID], conf-column[partner])
		}

		box := Box{CX: out.At(0, n), CY: out.At(1, n), W: out.At(2, n), H: out.At(3, n)}
		if box.Degenerate(p.MinBoxSize, p.MaxBoxSize) {
			continue
		}
		buckets[classID] = append(buckets[classID], AnchorDetection{Confidence: conf, Box: box, ClassID: classID})
	}

	view.NoiseClass = floats.MaxIdx(intsToFloats(histogram))

	stats := make([]ClassCandidate, 0, len(buckets))
	for classID := 0; classID < numClasses; classID++ {
		dets := buckets[classID]
		if len(dets) == 0 {
			continue
		}
		kept := NMS(dets, p.NMSIoUThreshold)
		d.logger.DebugTag("NMS", "%s: %s %d -> %d anchors", name, p.Label(classID), len(dets), len(kept))

		if margins := view.Margins.Class[classID]; len(margins) > 0 {
			if avg := mean(margins); avg < p.MinAvgMargin {
				rej := classRejection(StageMargin, classID, "%s avg margin %.3f < %.2f", p.Label(classID), avg, p.MinAvgMargin)
				d.logger.DebugTag("GUARD", "%s: %s", name, rej)
				view.ClassRejections = append(view.ClassRejections, rej)
				continue
			}
		}

		stats = append(stats, ClassCandidate{
			ClassID:       classID,
			Label:         p.Label(classID),
			AvgConfidence: topKMean(kept, p.TopK),
			AnchorCount:   len(kept),
			BestBox:       kept[0].Box,
		})
	}

	meaningful := 0
	for _, c := range stats {
		if c.AvgConfidence >= p.MeaningfulConfidence && c.AnchorCount >= p.MinAnchorCount {
			meaningful++
		}
	}
	if meaningful > p.MaxSimultaneousClasses {
		view.Rejection = viewRejection(StageMultiClass, "%d classes above %.2f (max %d)",
			meaningful, p.MeaningfulConfidence, p.MaxSimultaneousClasses)
		d.logger.InfoTag("GUARD", "%s rejected, %s", name, view.Rejection)
		return view
	}

	for _, c := range stats {
		if c.AnchorCount < p.MinAnchorCount {
			view.ClassRejections = append(view.ClassRejections,
				classRejection(StageAnchorCount, c.ClassID, "%s has %d anchors (min %d)", c.Label, c.AnchorCount, p.MinAnchorCount))
			continue
		}
		if c.ClassID == view.NoiseClass && c.AvgConfidence < p.NoiseClassMinConfidence {
			view.ClassRejections = append(view.ClassRejections,
				classRejection(StageNoiseClass, c.ClassID, "%s is the dominant class with %.2f%% (min %.0f%%)",
					c.Label, c.Percent(), p.NoiseClassMinConfidence*100))
			continue
		}
		view.Candidates = append(view.Candidates, c)
	}
	for _, rej := range view.ClassRejections {
		d.logger.DebugTag("GUARD", "%s: %s", name, rej)
	}

	sortCandidates(view.Candidates)
	return view
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func secondBest(probs []float64, best int) float64 {
	second := 0.0
	found := false
	for i, v := range probs {
		if i == best {
			continue
		}
		if !found || v > second {
			second, found = v, true
		}
	}
	return second
}

// topKMean averages the k highest confidences. dets is NMS output and
// therefore already sorted.
func topKMean(dets []AnchorDetection, k int) float64 {
	if k <= 0 || k > len(dets) {
		k = len(dets)
	}
	sum := 0.0
	for _, d := range dets[:k] {
		sum += d.Confidence
	}
	return sum / float64(k)
}

func intsToFloats(xs []int) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

func sortCandidates(cs []ClassCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Percent() > cs[j].Percent()
	})
}
