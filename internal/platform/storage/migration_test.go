package storage

import "gorm.io/gorm"

type testMigration struct{}

func (m *testMigration) Version() string     { return "999_scratch" }
func (m *testMigration) Description() string { return "scratch table" }

func (m *testMigration) Up(db *gorm.DB) error {
	return db.Exec(`CREATE TABLE scratch (id INTEGER PRIMARY KEY)`).Error
}

func (m *testMigration) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE scratch`).Error
}
