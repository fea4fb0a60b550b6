package detection

import (
	"fmt"
	"strconv"
)

// Status is the three-way verdict of a classification.
type Status string

const (
	StatusDetected   Status = "DETECTED"
	StatusUncertain  Status = "UNCERTAIN"
	StatusOutOfScope Status = "OUT_OF_SCOPE"
)

// RetakeGuidance is shown with every UNCERTAIN verdict.
var RetakeGuidance = []string{
	"Lumapit sa peste para sa mas malinaw na larawan.",
	"I-center ang peste sa gitna ng frame.",
	"Tiyaking sapat ang liwanag.",
	"Iwasan ang pagkilos upang maiwasan ang blur.",
}

// Decision is the verdict over the aggregated predictions.
type Decision struct {
	Status         Status
	BestMatch      *ClassAggregate
	StatusMessage  string
	RetakeGuidance []string
	Notes          string
}

// Classify picks the best match (first prediction at or above the detected
// threshold, otherwise the first one) and grades it.
func Classify(preds []ClassAggregate, p Params) Decision {
	if len(preds) == 0 {
		return outOfScope(nil, "No detections")
	}

	best := preds[0]
	for _, pr := range preds {
		if pr.WeightedConfidence >= p.DetectedPercent {
			best = pr
			break
		}
	}

	conf := best.WeightedConfidence
	valid := p.IsValidLabel(best.PestType)
	agreed := best.TTATotal == 0 || best.TTAAgreement >= 1

	switch {
	case valid && conf >= p.DetectedPercent && agreed:
		return Decision{
			Status:        StatusDetected,
			BestMatch:     &best,
			StatusMessage: "Coconut pest detected: " + best.PestType,
			Notes:         fmt.Sprintf("Detected: %s (%s%%, TTA %d/%d)", best.PestType, fmtPercent(conf), best.TTAAgreement, best.TTATotal),
		}
	case valid && conf >= p.UncertainPercent:
		return Decision{
			Status:         StatusUncertain,
			BestMatch:      &best,
			StatusMessage:  fmt.Sprintf("Possible pest: %s (%.1f%%) - retake recommended", best.PestType, conf),
			RetakeGuidance: append([]string(nil), RetakeGuidance...),
			Notes:          fmt.Sprintf("Uncertain: %s (%s%%)", best.PestType, fmtPercent(conf)),
		}
	}

	if !valid {
		return outOfScope(&best, fmt.Sprintf("Unknown label: %s", best.PestType))
	}
	return outOfScope(&best, fmt.Sprintf("Low confidence: %s (%s%%)", best.PestType, fmtPercent(conf)))
}

func outOfScope(best *ClassAggregate, notes string) Decision {
	d := Decision{Status: StatusOutOfScope, StatusMessage: OutOfScopeLabel, Notes: notes}
	if best != nil {
		d.BestMatch = &ClassAggregate{
			PestType:           OutOfScopeLabel,
			ClassID:            NoClass,
			WeightedConfidence: best.WeightedConfidence,
			BBox:               best.BBox,
			TTAAgreement:       best.TTAAgreement,
			TTATotal:           best.TTATotal,
		}
	}
	return d
}

func fmtPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
