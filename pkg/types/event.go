package types

import "time"

type EventStatus string

const (
	EventStatusNotStarted EventStatus = "not_started"
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusCompleted  EventStatus = "completed"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusNotStarted, EventStatusInProgress, EventStatusCompleted:
		return true
	}
	return false
}

type Event struct {
	ID               int64       `db:"id" json:"id"`
	PublicID         int64       `db:"public_id" json:"publicId"`
	Name             string      `db:"name" json:"name"`
	AssignmentLetter string      `db:"assignment_letter" json:"assignmentLetter"`
	Status           EventStatus `db:"status" json:"status"`
	StartDate        *time.Time  `db:"start_date" json:"startDate,omitempty"`
	EndDate          *time.Time  `db:"end_date" json:"endDate,omitempty"`
	UserID           string      `db:"user_id" json:"userId"`
	CreatedAt        time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updatedAt"`

	Tools    []*Tool        `db:"-" json:"tools,omitempty"`
	Document *EventDocument `db:"-" json:"document,omitempty"`
}

// EventDocument is the uploaded assignment letter of an event.
type EventDocument struct {
	ID           int64     `db:"id" json:"id"`
	EventID      int64     `db:"event_id" json:"eventId"`
	FileName     string    `db:"file_name" json:"fileName"`
	FilePath     string    `db:"file_path" json:"filePath"`
	PublicURL    string    `db:"public_url" json:"publicUrl"`
	FileSize     int64     `db:"file_size" json:"fileSize"`
	FileType     string    `db:"file_type" json:"fileType"`
	DocumentType string    `db:"document_type" json:"documentType"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

const DocTypeAssignmentLetter = "assignment_letter"

type CreateEventInput struct {
	Name     string         `form:"name"`
	Document DocumentUpload `form:"-"`
}

type UpdateEventInput struct {
	Name     *string         `form:"name"`
	Document *DocumentUpload `form:"-"`
}

// ToolConditionInput is one tool's entry of an End request.
type ToolConditionInput struct {
	ToolID         int64          `form:"toolId"`
	SameAsInitial  bool           `form:"sameAsInitial"`
	FinalCondition string         `form:"finalCondition"`
	Notes          string         `form:"notes"`
	FinalImages    ImageSetUpload `form:"-"`
}

type EndEventInput struct {
	ToolConditions []ToolConditionInput `form:"toolConditions"`
}
