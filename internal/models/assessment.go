package models

import "time"

// Assessment carries only what the controller needs from the assignment catalog.
type Assessment struct {
	ID               string    `gorm:"size:64;primaryKey" json:"assignment_id"`
	ClassroomID      string    `gorm:"size:64;index" json:"classroom_id"`
	TimeLimitSeconds int64     `json:"time_limit_seconds"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
