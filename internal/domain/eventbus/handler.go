package eventbus

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"

	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
	"pestscan-server/internal/platform/storage"
)

const recordTimeout = 5 * time.Second

// RecordStore persists audit records.
type RecordStore interface {
	Save(ctx context.Context, record *storage.ClassificationRecord) error
}

// AuditRecorder writes every completed classification to the audit log.
type AuditRecorder struct {
	store  RecordStore
	logger *logging.Logger
}

func NewAuditRecorder(store RecordStore, logger *logging.Logger) *AuditRecorder {
	return &AuditRecorder{store: store, logger: logger}
}

// Subscribe registers the recorder on the completion topic.
func (r *AuditRecorder) Subscribe(bus *AsyncEventBus) error {
	if err := bus.Subscribe(EventClassificationCompleted, r.Handle); err != nil {
		return errors.Wrap(errors.KindPlatform, "eventbus.subscribe", "subscribe audit recorder", err)
	}
	return nil
}

// Handle 处理分类完成事件
func (r *AuditRecorder) Handle(event ClassificationEvent) {
	record, err := NewRecord(event)
	if err != nil {
		r.logger.WarnTag("STORAGE", "audit record for %s not built: %v", event.RequestID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.Save(ctx, record); err != nil {
		r.logger.WarnTag("STORAGE", "audit record for %s not saved: %v", event.RequestID, err)
		return
	}
	r.logger.DebugTag("STORAGE", "audit record %s saved (%s)", record.ID, record.Status)
}

// NewRecord converts an event into its stored form.
func NewRecord(event ClassificationEvent) (*storage.ClassificationRecord, error) {
	quality, err := marshalJSON(event.Quality)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "audit.marshal", "marshal quality", err)
	}
	predictions, err := marshalJSON(event.Predictions)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "audit.marshal", "marshal predictions", err)
	}

	return &storage.ClassificationRecord{
		ID:                event.RequestID,
		Source:            event.Source,
		Status:            event.Status,
		PestType:          event.PestType,
		Confidence:        event.Confidence,
		TotalDetections:   event.TotalDetections,
		QualityAcceptable: event.QualityAcceptable,
		Quality:           quality,
		Predictions:       predictions,
		DurationMS:        event.Duration.Milliseconds(),
	}, nil
}

func marshalJSON(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
