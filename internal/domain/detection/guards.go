package detection

import "fmt"

// GuardStage names the check that produced a Rejection.
type GuardStage string

const (
	StageShape       GuardStage = "shape"
	StageMargin      GuardStage = "margin"
	StageAnchorCount GuardStage = "anchor_count"
	StageNoiseClass  GuardStage = "noise_class"
	StageMultiClass  GuardStage = "multi_class"
	StageSpread      GuardStage = "spread"
)

// NoClass marks a Rejection that applies to the whole view.
const NoClass = -1

// Rejection records why a class or a whole view produced nothing.
type Rejection struct {
	Stage   GuardStage `json:"stage"`
	Reason  string     `json:"reason"`
	ClassID int        `json:"class_id"`
}

func (r Rejection) String() string {
	if r.ClassID == NoClass {
		return fmt.Sprintf("%s: %s", r.Stage, r.Reason)
	}
	return fmt.Sprintf("%s[class %d]: %s", r.Stage, r.ClassID, r.Reason)
}

func viewRejection(stage GuardStage, format string, args ...any) *Rejection {
	return &Rejection{Stage: stage, Reason: fmt.Sprintf(format, args...), ClassID: NoClass}
}

func classRejection(stage GuardStage, classID int, format string, args ...any) Rejection {
	return Rejection{Stage: stage, Reason: fmt.Sprintf(format, args...), ClassID: classID}
}

// SpreadGuard rejects a view whose two strongest candidates are too close
// to call. Candidates must already be sorted by confidence.
func SpreadGuard(candidates []ClassCandidate, maxRatio float64) *Rejection {
	if len(candidates) < 2 {
		return nil
	}
	top, second := candidates[0].Percent(), candidates[1].Percent()
	if top <= 0 {
		return nil
	}
	if ratio := second / top; ratio > maxRatio {
		return viewRejection(StageSpread, "%s %.2f%% vs %s %.2f%% (ratio %.3f > %.2f)",
			candidates[0].Label, top, candidates[1].Label, second, ratio, maxRatio)
	}
	return nil
}
