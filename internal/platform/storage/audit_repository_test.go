package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RunsMigrations(t *testing.T) {
	db := openTestDatabase(t)

	manager := NewMigrationManager(db.Gorm())
	applied, err := manager.Applied()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial", "002_created_at_index"}, applied)
	assert.True(t, db.Gorm().Migrator().HasTable("classification_records"))
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	applied, err := NewMigrationManager(second.Gorm()).Applied()
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}

func TestOpen_MemoryDSN(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	repo := NewAuditRepository(db)
	require.NoError(t, repo.Save(context.Background(), &ClassificationRecord{Status: "DETECTED"}))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestAuditRepository_SaveAndRecent(t *testing.T) {
	repo := NewAuditRepository(openTestDatabase(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	records := []*ClassificationRecord{
		{Source: "a.jpg", Status: "DETECTED", PestType: "Brontispa", Confidence: 71.2, TotalDetections: 1, CreatedAt: base},
		{Source: "b.jpg", Status: "UNCERTAIN", PestType: "APW Larvae", Confidence: 52, TotalDetections: 1, CreatedAt: base.Add(time.Minute)},
		{Source: "c.jpg", Status: "OUT_OF_SCOPE", CreatedAt: base.Add(2 * time.Minute),
			Quality: datatypes.JSON(`{"acceptable":false}`), Predictions: datatypes.JSON(`[]`)},
	}
	for _, r := range records {
		require.NoError(t, repo.Save(ctx, r))
		assert.Len(t, r.ID, 36)
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c.jpg", recent[0].Source)
	assert.Equal(t, "b.jpg", recent[1].Source)
	assert.JSONEq(t, `{"acceptable":false}`, string(recent[0].Quality))

	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAuditRepository_SaveNil(t *testing.T) {
	repo := NewAuditRepository(openTestDatabase(t))
	assert.Error(t, repo.Save(context.Background(), nil))
}

func TestAuditRepository_CountByStatus(t *testing.T) {
	repo := NewAuditRepository(openTestDatabase(t))
	ctx := context.Background()

	for _, status := range []string{"DETECTED", "DETECTED", "UNCERTAIN", "OUT_OF_SCOPE", "DETECTED"} {
		require.NoError(t, repo.Save(ctx, &ClassificationRecord{Status: status}))
	}

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"DETECTED": 3, "UNCERTAIN": 1, "OUT_OF_SCOPE": 1}, counts)
}

func TestMigrationManager_Rollback(t *testing.T) {
	db := openTestDatabase(t)
	manager := NewMigrationManager(db.Gorm())
	manager.AddMigration(&testMigration{})

	require.NoError(t, manager.RunMigrations())
	assert.True(t, db.Gorm().Migrator().HasTable("scratch"))

	require.NoError(t, manager.RollbackMigration("999_scratch"))
	assert.False(t, db.Gorm().Migrator().HasTable("scratch"))

	assert.Error(t, manager.RollbackMigration("999_scratch"))
}
