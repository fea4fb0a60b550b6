package eventbus

import "time"

// 事件类型定义
const (
	EventClassificationCompleted = "classification:completed"
	EventModelLoaded             = "model:loaded"
)

// ClassificationEvent is published after every classification call, whether
// or not it succeeded.
type ClassificationEvent struct {
	RequestID         string        `json:"request_id"`
	Source            string        `json:"source"`
	Status            string        `json:"status"`
	PestType          string        `json:"pest_type,omitempty"`
	Confidence        float64       `json:"confidence"`
	Duration          time.Duration `json:"duration"`
	TotalDetections   int           `json:"total_detections"`
	QualityAcceptable bool          `json:"quality_acceptable"`
	Quality           interface{}   `json:"quality,omitempty"`
	Predictions       interface{}   `json:"predictions,omitempty"`
	Error             string        `json:"error,omitempty"`
}

type ModelEvent struct {
	Runtime string `json:"runtime"`
	Path    string `json:"path"`
	Loaded  bool   `json:"loaded"`
	Error   string `json:"error,omitempty"`
}
