package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pestscan-server/internal/platform/errors"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// ClassificationRecord is one audited classification call. The stored
// quality and prediction payloads let the tuned thresholds be recalibrated
// offline.
type ClassificationRecord struct {
	ID                string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Source            string         `gorm:"type:varchar(255)" json:"source"`
	Status            string         `gorm:"type:varchar(32);not null;index" json:"status"`
	PestType          string         `gorm:"type:varchar(64)" json:"pest_type"`
	Confidence        float64        `gorm:"not null;default:0" json:"confidence"`
	TotalDetections   int            `gorm:"not null;default:0" json:"total_detections"`
	QualityAcceptable bool           `gorm:"not null;default:true" json:"quality_acceptable"`
	Quality           datatypes.JSON `json:"quality"`
	Predictions       datatypes.JSON `json:"predictions"`
	DurationMS        int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (ClassificationRecord) TableName() string {
	return "classification_records"
}

// BeforeCreate 自动生成 UUID 主键
func (r *ClassificationRecord) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// AuditRepository persists classification records.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(database *Database) *AuditRepository {
	return &AuditRepository{db: database.Gorm()}
}

func (r *AuditRepository) Save(ctx context.Context, record *ClassificationRecord) error {
	if record == nil {
		return errors.New(errors.KindStorage, "audit.save", "nil record")
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "audit.save", "failed to save classification record", err)
	}
	return nil
}

// Recent returns the newest records first. A non-positive limit selects the
// default page size.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]ClassificationRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	var records []ClassificationRecord
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "audit.recent", "failed to query classification records", err)
	}
	return records, nil
}

func (r *AuditRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&ClassificationRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "audit.count", "failed to count classification records", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
