package migrations

import "gorm.io/gorm"

// Migration002CreatedAtIndex 为历史查询按时间倒序建立索引
type Migration002CreatedAtIndex struct{}

func (m *Migration002CreatedAtIndex) Version() string {
	return "002_created_at_index"
}

func (m *Migration002CreatedAtIndex) Description() string {
	return "Index classification records by creation time"
}

func (m *Migration002CreatedAtIndex) Up(db *gorm.DB) error {
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_classification_records_created_at ON classification_records(created_at)`).Error
}

func (m *Migration002CreatedAtIndex) Down(db *gorm.DB) error {
	return db.Exec(`DROP INDEX IF EXISTS idx_classification_records_created_at`).Error
}
