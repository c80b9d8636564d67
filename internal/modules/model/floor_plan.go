package model

import (
	"time"

	"gorm.io/datatypes"
)

// ViewIndex maps a keyword to the ordered relative paths of its rendered
// views. It is the committed shape of a preview selection.
type ViewIndex map[string][]string

type FloorPlan struct {
	ID           string  `gorm:"type:varchar(64);primaryKey" json:"id"`
	Keyword      *string `gorm:"type:varchar(100)" json:"keyword"`
	RelativePath *string `gorm:"type:varchar(255)" json:"relative_path"`

	Metadata datatypes.JSONType[ViewIndex] `gorm:"type:jsonb" swaggertype:"object" json:"metadata"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (FloorPlan) TableName() string { return "floor_plans" }

// ProjectDxfLink associates a floor plan with an external project. The pair
// is the key, so relinking the same pair is a no-op.
type ProjectDxfLink struct {
	ProjectID   string `gorm:"type:varchar(100);primaryKey" json:"project_id"`
	FloorPlanID string `gorm:"type:varchar(64);primaryKey" json:"floor_plan_id"`

	FloorPlan FloorPlan `gorm:"foreignKey:FloorPlanID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ProjectDxfLink) TableName() string { return "project_dxf_links" }
