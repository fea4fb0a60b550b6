package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial 创建推理审计表
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create classification audit table"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS classification_records (
			id VARCHAR(36) PRIMARY KEY,
			source VARCHAR(255),
			status VARCHAR(32) NOT NULL,
			pest_type VARCHAR(64),
			confidence REAL NOT NULL DEFAULT 0,
			total_detections INTEGER NOT NULL DEFAULT 0,
			quality_acceptable BOOLEAN NOT NULL DEFAULT 1,
			quality JSON,
			predictions JSON,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_classification_records_status ON classification_records(status)`).Error; err != nil {
		return err
	}
	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS classification_records`).Error
}
