package inference

import (
	"time"

	"github.com/bytedance/sonic"

	"pestscan-server/internal/domain/detection"
	"pestscan-server/internal/domain/image"
	"pestscan-server/internal/platform/errors"
)

// StatusFailed labels calls that produced no verdict.
const StatusFailed = "FAILED"

// ClassificationResult is the outcome of one classification call. Error is
// empty on success and encoded as null.
type ClassificationResult struct {
	Success          bool                       `json:"success"`
	RequestID        string                     `json:"request_id"`
	Predictions      []detection.ClassAggregate `json:"predictions"`
	TotalDetections  int                        `json:"total_detections"`
	Quality          *image.QualityReport       `json:"quality"`
	TTAAugmentations int                        `json:"tta_augmentations"`
	Error            string                     `json:"-"`
	Status           detection.Status           `json:"status,omitempty"`
	StatusMessage    string                     `json:"status_message,omitempty"`
	BestMatch        *detection.ClassAggregate  `json:"best_match"`
	RetakeGuidance   []string                   `json:"retake_guidance,omitempty"`
	Notes            string                     `json:"notes,omitempty"`
	Views            []ViewSummary              `json:"views,omitempty"`
	Duration         time.Duration              `json:"-"`
	ErrorKind        errors.Kind                `json:"-"`
}

// ViewSummary reports what one augmented view contributed.
type ViewSummary struct {
	Name       string   `json:"name"`
	Candidates []string `json:"candidates"`
	Rejection  string   `json:"rejection,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (r ClassificationResult) MarshalJSON() ([]byte, error) {
	type plain ClassificationResult
	var errField *string
	if r.Error != "" {
		errField = &r.Error
	}
	return sonic.Marshal(struct {
		plain
		Error *string `json:"error"`
	}{plain(r), errField})
}

// StatusLabel is Status, or FAILED for unsuccessful calls.
func (r *ClassificationResult) StatusLabel() string {
	if !r.Success || r.Status == "" {
		return StatusFailed
	}
	return string(r.Status)
}

func failure(requestID string, kind errors.Kind, message string) *ClassificationResult {
	return &ClassificationResult{
		RequestID:   requestID,
		Predictions: []detection.ClassAggregate{},
		Error:       message,
		ErrorKind:   kind,
	}
}

func summarize(v detection.ViewResult) ViewSummary {
	s := ViewSummary{Name: v.Name, Candidates: make([]string, 0, len(v.Candidates))}
	for _, c := range v.Candidates {
		s.Candidates = append(s.Candidates, c.Label)
	}
	if v.Rejection != nil {
		s.Rejection = v.Rejection.String()
	}
	if v.Err != nil {
		s.Error = v.Err.Error()
	}
	return s
}
