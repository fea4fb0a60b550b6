package detection

import "math"

// Box is a normalized center/size box.
type Box struct {
	CX float64 `json:"x"`
	CY float64 `json:"y"`
	W  float64 `json:"width"`
	H  float64 `json:"height"`
}

// AnchorDetection is one anchor that survived the confidence threshold.
type AnchorDetection struct {
	Confidence float64
	Box        Box
	ClassID    int
}

// ClassCandidate is one class reported by a single view. AvgConfidence is
// the mean of the top-K anchors on the 0-1 scale.
type ClassCandidate struct {
	ClassID       int
	Label         string
	AvgConfidence float64
	AnchorCount   int
	BestBox       Box
}

// Percent is AvgConfidence on the 0-100 scale, rounded to 2 decimals.
func (c ClassCandidate) Percent() float64 {
	return round2(c.AvgConfidence * 100)
}

// MarginRecord keeps per-anchor margins of retained anchors, keyed by the
// anchor's class. Class margins are best minus second best; pair margins
// are the winner minus its confusion partner.
type MarginRecord struct {
	Class map[int][]float64
	Pair  map[int][]float64
}

func newMarginRecord() MarginRecord {
	return MarginRecord{Class: map[int][]float64{}, Pair: map[int][]float64{}}
}

// AvgPair is the mean pair margin of classID, 0 without records.
func (m MarginRecord) AvgPair(classID int) float64 {
	return mean(m.Pair[classID])
}

// ViewResult is the outcome of one augmented view.
type ViewResult struct {
	Name            string
	Candidates      []ClassCandidate
	Rejection       *Rejection
	ClassRejections []Rejection
	Margins         MarginRecord
	NoiseClass      int
	Retained        int
	Resolution      Resolution
	Err             error
}

// Failed reports whether the view could not be evaluated at all.
func (v ViewResult) Failed() bool {
	return v.Err != nil
}

// ClassAggregate is one label agreed across views. WeightedConfidence is on
// the 0-100 scale, rounded to 2 decimals.
type ClassAggregate struct {
	PestType           string  `json:"pest_type"`
	ClassID            int     `json:"class_id"`
	WeightedConfidence float64 `json:"confidence"`
	AnchorCount        int     `json:"anchor_count"`
	BBox               Box     `json:"bbox"`
	TTAAgreement       int     `json:"tta_agreement"`
	TTATotal           int     `json:"tta_total"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
