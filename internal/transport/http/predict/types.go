package predict

import (
	"context"

	"pestscan-server/internal/domain/inference"
	"pestscan-server/internal/platform/storage"
)

// Classifier runs one classification request.
type Classifier interface {
	Run(ctx context.Context, req inference.Request) *inference.ClassificationResult
}

// ModelInfoProvider exposes the model handle.
type ModelInfoProvider interface {
	Info() inference.ModelInfo
	Labels() []string
}

// HistoryStore reads the audit log.
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]storage.ClassificationRecord, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// LabelsResponse 标签列表
type LabelsResponse struct {
	Labels []string `json:"labels"`
	Count  int      `json:"count"`
}

// BatchItem is the outcome for one file of a batch upload.
type BatchItem struct {
	Filename string                          `json:"filename"`
	Result   *inference.ClassificationResult `json:"result,omitempty"`
	Error    string                          `json:"error,omitempty"`
}

// BatchResponse summarizes a batch upload.
type BatchResponse struct {
	Results []BatchItem    `json:"results"`
	Total   int            `json:"total"`
	Counts  map[string]int `json:"counts"`
}

// HistoryResponse 审计记录
type HistoryResponse struct {
	Records []storage.ClassificationRecord `json:"records"`
	Counts  map[string]int64               `json:"counts"`
}
