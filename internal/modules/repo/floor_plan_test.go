package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/draftroom-io/floorplan/internal/modules/model"
)

// setupFloorPlanTestDB creates a test database connection for repo tests
func setupFloorPlanTestDB(t *testing.T) *gorm.DB {
	// Skip if no test database is configured
	dsn := "host=localhost user=floorplan password=floorplan dbname=floorplan port=5432 sslmode=disable"
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err == nil {
		if sqlDB, e := db.DB(); e == nil {
			err = sqlDB.Ping()
		} else {
			err = e
		}
	}
	if err != nil {
		t.Skip("Test database not available, skipping integration tests")
		return nil
	}

	require.NoError(t, db.AutoMigrate(&model.FloorPlan{}, &model.ProjectDxfLink{}))
	return db
}

// cleanupFloorPlanTestDB cleans up test data
func cleanupFloorPlanTestDB(t *testing.T, db *gorm.DB, planIDs ...string) {
	// Clean up in reverse order of foreign key dependencies
	db.Exec("DELETE FROM project_dxf_links WHERE floor_plan_id IN ?", planIDs)
	db.Exec("DELETE FROM floor_plans WHERE id IN ?", planIDs)
}

func testPlanID() string {
	id := uuid.New().String()
	return "test" + id[:8]
}

func TestFloorPlanRepo_LinkIdempotent(t *testing.T) {
	db := setupFloorPlanTestDB(t)
	if db == nil {
		return // Test was skipped
	}

	repo := NewFloorPlanRepo(db)
	ctx := context.Background()

	planID := testPlanID()
	kw := "DOOR"
	require.NoError(t, repo.Create(ctx, &model.FloorPlan{ID: planID, Keyword: &kw}))
	defer cleanupFloorPlanTestDB(t, db, planID)

	link := &model.ProjectDxfLink{ProjectID: "proj-idem", FloorPlanID: planID}
	require.NoError(t, repo.Link(ctx, link))

	// Linking the same pair again is a no-op, not an error
	require.NoError(t, repo.Link(ctx, &model.ProjectDxfLink{ProjectID: "proj-idem", FloorPlanID: planID}))

	var count int64
	require.NoError(t, db.Model(&model.ProjectDxfLink{}).
		Where("project_id = ? AND floor_plan_id = ?", "proj-idem", planID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	plans, err := repo.ListByProject(ctx, "proj-idem")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, planID, plans[0].ID)
}

func TestFloorPlanRepo_DeleteCascadesLinks(t *testing.T) {
	db := setupFloorPlanTestDB(t)
	if db == nil {
		return // Test was skipped
	}

	repo := NewFloorPlanRepo(db)
	ctx := context.Background()

	planID := testPlanID()
	kw := "FLOOR"
	require.NoError(t, repo.Create(ctx, &model.FloorPlan{ID: planID, Keyword: &kw}))
	defer cleanupFloorPlanTestDB(t, db, planID)

	require.NoError(t, repo.Link(ctx, &model.ProjectDxfLink{ProjectID: "proj-cascade", FloorPlanID: planID}))

	require.NoError(t, repo.Delete(ctx, planID))

	// The FK cascade removes the link rows with the plan
	var count int64
	require.NoError(t, db.Model(&model.ProjectDxfLink{}).
		Where("floor_plan_id = ?", planID).
		Count(&count).Error)
	assert.Equal(t, int64(0), count)

	plans, err := repo.ListByProject(ctx, "proj-cascade")
	require.NoError(t, err)
	assert.Empty(t, plans)

	// Deleting again reports the missing row
	assert.ErrorIs(t, repo.Delete(ctx, planID), gorm.ErrRecordNotFound)
}

func TestFloorPlanRepo_CreateDuplicateID(t *testing.T) {
	db := setupFloorPlanTestDB(t)
	if db == nil {
		return // Test was skipped
	}

	repo := NewFloorPlanRepo(db)
	ctx := context.Background()

	planID := testPlanID()
	require.NoError(t, repo.Create(ctx, &model.FloorPlan{ID: planID}))
	defer cleanupFloorPlanTestDB(t, db, planID)

	err := repo.Create(ctx, &model.FloorPlan{ID: planID})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
