package types

import "time"

const (
	ConditionGood    = "good"
	ConditionDamaged = "damaged"
	ConditionMissing = "missing"
	ConditionRepair  = "needs_repair"
)

type ImageType string

const (
	ImageTypeInitial ImageType = "initial"
	ImageTypeFinal   ImageType = "final"
)

type Tool struct {
	ID               int64     `db:"id" json:"id"`
	EventID          int64     `db:"event_id" json:"eventId"`
	Name             string    `db:"name" json:"name"`
	Category         string    `db:"category" json:"category"`
	Total            int       `db:"total" json:"total"`
	InitialCondition string    `db:"initial_condition" json:"initialCondition"`
	FinalCondition   *string   `db:"final_condition" json:"finalCondition,omitempty"`
	Notes            *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`

	Images []*ToolImage `db:"-" json:"images,omitempty"`
}

type ToolImage struct {
	ID        int64     `db:"id" json:"id"`
	ToolID    int64     `db:"tool_id" json:"toolId"`
	FileName  string    `db:"file_name" json:"fileName"`
	FilePath  string    `db:"file_path" json:"filePath"`
	PublicURL string    `db:"public_url" json:"publicUrl"`
	FileSize  int64     `db:"file_size" json:"fileSize"`
	FileType  string    `db:"file_type" json:"fileType"`
	ImageType ImageType `db:"image_type" json:"imageType"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type ToolCategory struct {
	Slug         string    `db:"slug" json:"slug"`
	Label        string    `db:"label" json:"label"`
	DisplayOrder int       `db:"display_order" json:"displayOrder"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type AddToolInput struct {
	Name             string         `form:"name" validate:"notblank,max=255"`
	Category         string         `form:"category" validate:"notblank"`
	Total            int            `form:"total" validate:"min=1"`
	InitialCondition string         `form:"initialCondition" validate:"notblank"`
	Images           ImageSetUpload `form:"-"`
}

// ToolPatch carries the fields of a partial tool update. Nil fields are
// left untouched. An empty Notes clears the column.
type ToolPatch struct {
	Name             *string `form:"name" json:"name" validate:"omitnil,notblank,max=255"`
	Category         *string `form:"category" json:"category" validate:"omitnil,notblank"`
	Total            *int    `form:"total" json:"total" validate:"omitnil,min=1"`
	InitialCondition *string `form:"initialCondition" json:"initialCondition" validate:"omitnil,notblank"`
	FinalCondition   *string `form:"finalCondition" json:"finalCondition" validate:"omitnil,notblank"`
	Notes            *string `form:"notes" json:"notes"`
}

func (p *ToolPatch) Empty() bool {
	return p.Name == nil && p.Category == nil && p.Total == nil &&
		p.InitialCondition == nil && p.FinalCondition == nil && p.Notes == nil
}

// FinalConditionUpdate is a single row written while closing an event.
type FinalConditionUpdate struct {
	ToolID         int64   `json:"toolId" validate:"gt=0"`
	FinalCondition string  `json:"finalCondition" validate:"notblank"`
	Notes          *string `json:"notes"`
}
