package repo

import (
	"context"

	"github.com/draftroom-io/floorplan/internal/modules/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FloorPlanRepo interface {
	Create(ctx context.Context, fp *model.FloorPlan) error
	Get(ctx context.Context, id string) (*model.FloorPlan, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]model.FloorPlan, error)
	Link(ctx context.Context, link *model.ProjectDxfLink) error
	Unlink(ctx context.Context, projectID, floorPlanID string) error
	ListByProject(ctx context.Context, projectID string) ([]model.FloorPlan, error)
}

type floorPlanRepo struct{ db *gorm.DB }

func NewFloorPlanRepo(db *gorm.DB) FloorPlanRepo {
	return &floorPlanRepo{db: db}
}

// Create surfaces gorm.ErrDuplicatedKey untouched so the service can retry
// with a fresh generated id.
func (r *floorPlanRepo) Create(ctx context.Context, fp *model.FloorPlan) error {
	return r.db.WithContext(ctx).Create(fp).Error
}

func (r *floorPlanRepo) Get(ctx context.Context, id string) (*model.FloorPlan, error) {
	var fp model.FloorPlan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&fp).Error
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

func (r *floorPlanRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FloorPlan{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *floorPlanRepo) ListAll(ctx context.Context) ([]model.FloorPlan, error) {
	var plans []model.FloorPlan
	return plans, r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&plans).Error
}

// Link is idempotent on the (project_id, floor_plan_id) pair.
func (r *floorPlanRepo) Link(ctx context.Context, link *model.ProjectDxfLink) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).Error
}

func (r *floorPlanRepo) Unlink(ctx context.Context, projectID, floorPlanID string) error {
	res := r.db.WithContext(ctx).
		Where("project_id = ? AND floor_plan_id = ?", projectID, floorPlanID).
		Delete(&model.ProjectDxfLink{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *floorPlanRepo) ListByProject(ctx context.Context, projectID string) ([]model.FloorPlan, error) {
	var plans []model.FloorPlan
	err := r.db.WithContext(ctx).
		Joins("JOIN project_dxf_links ON project_dxf_links.floor_plan_id = floor_plans.id").
		Where("project_dxf_links.project_id = ?", projectID).
		Order("floor_plans.created_at ASC, floor_plans.id ASC").
		Find(&plans).Error
	return plans, err
}
