package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/draftroom-io/floorplan/internal/modules/model"
)

func seedPlan(t *testing.T, repo *MockFloorPlanRepo, storeFiles func(rel string, data []byte)) *model.FloorPlan {
	t.Helper()
	fp := &model.FloorPlan{
		ID:      "plan1",
		Keyword: strPtr("DOOR"),
		Metadata: datatypes.NewJSONType(model.ViewIndex{
			"DOOR": {
				"floor_pngs_plan1/DOOR/DOOR-A.block-plan1.png",
				"floor_pngs_plan1/DOOR/DOOR-B.block-plan1.png",
			},
		}),
	}
	storeFiles("floor_pngs_plan1/DOOR/DOOR-A.block-plan1.png", []byte("png-a"))
	storeFiles("floor_pngs_plan1/DOOR/DOOR-B.block-plan1.png", []byte("png-b"))
	repo.On("Get", context.Background(), "plan1").Return(fp, nil)
	return fp
}

func TestExportService_Export(t *testing.T) {
	ctx := context.Background()
	store, _, cfg := testDeps(t)
	repo := &MockFloorPlanRepo{}
	seedPlan(t, repo, func(rel string, data []byte) {
		require.NoError(t, store.WriteFile(rel, data))
	})
	svc := NewExportService(repo, store, nil, cfg, zap.NewNop())

	out, err := svc.Export(ctx, ExportInput{FloorID: "plan1", Floor: "DOOR", ViewIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, "jobs/plan1/selected_output/DOOR-B.block-plan1.png", out.ExportedPath)

	data, err := store.ReadFile(out.ExportedPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-b"), data)

	// re-export overwrites, same path
	again, err := svc.Export(ctx, ExportInput{FloorID: "plan1", Floor: "door", ViewIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, out.ExportedPath, again.ExportedPath)
}

func TestExportService_ExportIndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	store, _, cfg := testDeps(t)
	repo := &MockFloorPlanRepo{}
	seedPlan(t, repo, func(rel string, data []byte) {
		require.NoError(t, store.WriteFile(rel, data))
	})
	svc := NewExportService(repo, store, nil, cfg, zap.NewNop())

	_, err := svc.Export(ctx, ExportInput{FloorID: "plan1", Floor: "DOOR", ViewIndex: 2})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = svc.Export(ctx, ExportInput{FloorID: "plan1", Floor: "DOOR", ViewIndex: -1})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestExportService_ExportUnknownKeyword(t *testing.T) {
	ctx := context.Background()
	store, _, cfg := testDeps(t)
	repo := &MockFloorPlanRepo{}
	seedPlan(t, repo, func(rel string, data []byte) {
		require.NoError(t, store.WriteFile(rel, data))
	})
	svc := NewExportService(repo, store, nil, cfg, zap.NewNop())

	_, err := svc.Export(ctx, ExportInput{FloorID: "plan1", Floor: "ROOF", ViewIndex: 0})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportService_ExportMissingPlan(t *testing.T) {
	ctx := context.Background()
	store, _, cfg := testDeps(t)
	repo := &MockFloorPlanRepo{}
	repo.On("Get", ctx, "ghost").Return(nil, gorm.ErrRecordNotFound)
	svc := NewExportService(repo, store, nil, cfg, zap.NewNop())

	_, err := svc.Export(ctx, ExportInput{FloorID: "ghost", Floor: "DOOR", ViewIndex: 0})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportService_ListExports(t *testing.T) {
	ctx := context.Background()
	store, _, cfg := testDeps(t)
	repo := &MockFloorPlanRepo{}
	seedPlan(t, repo, func(rel string, data []byte) {
		require.NoError(t, store.WriteFile(rel, data))
	})
	svc := NewExportService(repo, store, nil, cfg, zap.NewNop())

	names, err := svc.ListExports(ctx, "plan1")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = svc.Export(ctx, ExportInput{FloorID: "plan1", Floor: "DOOR", ViewIndex: 0})
	require.NoError(t, err)

	names, err = svc.ListExports(ctx, "plan1")
	require.NoError(t, err)
	assert.Equal(t, []string{"DOOR-A.block-plan1.png"}, names)
}

func TestExportService_GetExportedImage(t *testing.T) {
	ctx := context.Background()
	store, _, cfg := testDeps(t)
	repo := &MockFloorPlanRepo{}
	seedPlan(t, repo, func(rel string, data []byte) {
		require.NoError(t, store.WriteFile(rel, data))
	})
	svc := NewExportService(repo, store, nil, cfg, zap.NewNop())

	_, err := svc.Export(ctx, ExportInput{FloorID: "plan1", Floor: "DOOR", ViewIndex: 0})
	require.NoError(t, err)

	img, err := svc.GetExportedImage(ctx, "DOOR-A.block-plan1")
	require.NoError(t, err)
	assert.Equal(t, "DOOR-A.block-plan1.png", img.Name)
	assert.Equal(t, []byte("png-a"), img.Data)

	_, err = svc.GetExportedImage(ctx, "never-exported")
	assert.ErrorIs(t, err, ErrNotFound)
}
