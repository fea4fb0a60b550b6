package detection

import "sort"

type occurrence struct {
	percent     float64
	classID     int
	anchorCount int
	box         Box
}

// Aggregate merges per-view candidates into one entry per label. A label
// needs MinAgreement views to survive; its confidence is the
// self-weighted mean Σc²/Σc of the per-view percents. total is the number
// of views attempted, failed ones included. The result is sorted by
// confidence, highest first.
func Aggregate(views []ViewResult, total int, p Params) ([]ClassAggregate, Resolution) {
	var order []string
	byLabel := map[string][]occurrence{}

	for _, v := range views {
		seen := map[string]bool{}
		for _, c := range v.Candidates {
			if seen[c.Label] {
				continue
			}
			seen[c.Label] = true
			if _, ok := byLabel[c.Label]; !ok {
				order = append(order, c.Label)
			}
			byLabel[c.Label] = append(byLabel[c.Label], occurrence{
				percent:     c.Percent(),
				classID:     c.ClassID,
				anchorCount: c.AnchorCount,
				box:         c.BestBox,
			})
		}
	}

	aggs := make([]ClassAggregate, 0, len(order))
	for _, label := range order {
		occs := byLabel[label]
		if len(occs) < p.MinAgreement {
			continue
		}
		weighted := weightedConfidence(occs)
		if !(weighted >= p.MinAggregatePercent) {
			continue
		}

		best := occs[0]
		anchors := occs[0].anchorCount
		for _, o := range occs[1:] {
			if o.percent > best.percent {
				best = o
			}
			if o.anchorCount > anchors {
				anchors = o.anchorCount
			}
		}

		aggs = append(aggs, ClassAggregate{
			PestType:           label,
			ClassID:            best.classID,
			WeightedConfidence: round2(weighted),
			AnchorCount:        anchors,
			BBox:               best.box,
			TTAAgreement:       len(occs),
			TTATotal:           total,
		})
	}

	sort.SliceStable(aggs, func(i, j int) bool {
		if aggs[i].TTAAgreement != aggs[j].TTAAgreement {
			return aggs[i].TTAAgreement > aggs[j].TTAAgreement
		}
		return aggs[i].WeightedConfidence > aggs[j].WeightedConfidence
	})

	aggs, res := ResolveAggregate(aggs, p)

	sort.SliceStable(aggs, func(i, j int) bool {
		return aggs[i].WeightedConfidence > aggs[j].WeightedConfidence
	})
	return aggs, res
}

func weightedConfidence(occs []occurrence) float64 {
	var sum, sumSq float64
	for _, o := range occs {
		sum += o.percent
		sumSq += o.percent * o.percent
	}
	if sum == 0 {
		return 0
	}
	return sumSq / sum
}
