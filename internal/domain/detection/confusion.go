package detection

import (
	"fmt"
	"math"
)

// ResolutionKind tells how a confusion pair conflict was settled.
type ResolutionKind string

const (
	ResolutionNone       ResolutionKind = ""
	ResolutionPrecaution ResolutionKind = "precaution"
	ResolutionComposite  ResolutionKind = "composite"
	ResolutionAgreement  ResolutionKind = "agreement"
)

// Resolution describes one confusion pair decision.
type Resolution struct {
	Kind         ResolutionKind
	Kept         int
	Dropped      int
	KeptScore    float64
	DroppedScore float64
}

func (r Resolution) String() string {
	switch r.Kind {
	case ResolutionPrecaution:
		return fmt.Sprintf("relabelled class %d as %d", r.Dropped, r.Kept)
	case ResolutionComposite:
		return fmt.Sprintf("kept class %d (score %.3f) over %d (score %.3f)", r.Kept, r.KeptScore, r.Dropped, r.DroppedScore)
	case ResolutionAgreement:
		return fmt.Sprintf("kept class %d (%v views) over %d (%v views)", r.Kept, r.KeptScore, r.Dropped, r.DroppedScore)
	}
	return "none"
}

// ResolveView settles the confusion pair within one view. A lone Other
// candidate below the precaution ceiling that still saw Preferred margins
// is relabelled to Preferred. When both are present the composite scores
// decide and near ties go to Preferred.
func ResolveView(view ViewResult, p Params) ViewResult {
	pair := p.Pair
	pi, oi := candidateIndex(view.Candidates, pair.Preferred), candidateIndex(view.Candidates, pair.Other)
	if oi < 0 {
		return view
	}

	candidates := append([]ClassCandidate(nil), view.Candidates...)
	view.Candidates = candidates

	if pi < 0 {
		other := candidates[oi]
		if len(view.Margins.Pair[pair.Preferred]) == 0 || other.Percent() >= pair.PrecautionMaxPercent {
			return view
		}
		candidates[oi].ClassID = pair.Preferred
		candidates[oi].Label = p.Label(pair.Preferred)
		view.Resolution = Resolution{Kind: ResolutionPrecaution, Kept: pair.Preferred, Dropped: pair.Other}
		return view
	}

	preferred, other := candidates[pi], candidates[oi]
	total := float64(preferred.AnchorCount + other.AnchorCount)
	preferredScore := compositeScore(preferred, total, view.Margins.AvgPair(pair.Preferred))
	otherScore := compositeScore(other, total, view.Margins.AvgPair(pair.Other))

	keepPreferred := true
	if hi := math.Max(preferredScore, otherScore); hi > 0 && math.Min(preferredScore, otherScore)/hi <= pair.ScoreSimilarityRatio {
		keepPreferred = preferredScore >= otherScore
	}

	res := Resolution{Kind: ResolutionComposite, Kept: pair.Preferred, Dropped: pair.Other, KeptScore: preferredScore, DroppedScore: otherScore}
	drop := oi
	if !keepPreferred {
		res = Resolution{Kind: ResolutionComposite, Kept: pair.Other, Dropped: pair.Preferred, KeptScore: otherScore, DroppedScore: preferredScore}
		drop = pi
	}
	view.Candidates = append(candidates[:drop:drop], candidates[drop+1:]...)
	sortCandidates(view.Candidates)
	view.Resolution = res
	return view
}

// ResolveAggregate keeps only one member of the confusion pair across
// views: the one more views agreed on, Preferred on ties.
func ResolveAggregate(aggs []ClassAggregate, p Params) ([]ClassAggregate, Resolution) {
	preferred, other := p.Label(p.Pair.Preferred), p.Label(p.Pair.Other)
	pi, oi := aggregateIndex(aggs, preferred), aggregateIndex(aggs, other)
	if pi < 0 || oi < 0 {
		return aggs, Resolution{}
	}

	pa, oa := aggs[pi].TTAAgreement, aggs[oi].TTAAgreement
	res := Resolution{Kind: ResolutionAgreement, Kept: p.Pair.Preferred, Dropped: p.Pair.Other,
		KeptScore: float64(pa), DroppedScore: float64(oa)}
	drop := oi
	if oa > pa {
		res = Resolution{Kind: ResolutionAgreement, Kept: p.Pair.Other, Dropped: p.Pair.Preferred,
			KeptScore: float64(oa), DroppedScore: float64(pa)}
		drop = pi
	}

	out := make([]ClassAggregate, 0, len(aggs)-1)
	out = append(out, aggs[:drop]...)
	out = append(out, aggs[drop+1:]...)
	return out, res
}

func compositeScore(c ClassCandidate, totalAnchors, avgPairMargin float64) float64 {
	if totalAnchors <= 0 {
		return 0
	}
	return c.Percent() * (float64(c.AnchorCount) / totalAnchors) * (1 + avgPairMargin)
}

func candidateIndex(cs []ClassCandidate, classID int) int {
	for i, c := range cs {
		if c.ClassID == classID {
			return i
		}
	}
	return -1
}

func aggregateIndex(aggs []ClassAggregate, label string) int {
	for i, a := range aggs {
		if a.PestType == label {
			return i
		}
	}
	return -1
}
