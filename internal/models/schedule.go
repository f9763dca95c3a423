package models

import "time"

// ScheduleWindow bounds when sessions may start. A nil bound is open on that side.
// AssignmentID empty means the window applies to the whole classroom.
type ScheduleWindow struct {
	ID           uint       `gorm:"primaryKey" json:"-"`
	ClassroomID  string     `gorm:"size:64;not null;uniqueIndex:uniq_schedule_scope,priority:1" json:"classroom_id"`
	AssignmentID string     `gorm:"size:64;not null;default:'';uniqueIndex:uniq_schedule_scope,priority:2" json:"assignment_id,omitempty"`
	StartAt      *time.Time `json:"start_at"`
	EndAt        *time.Time `json:"end_at"`
	UpdatedBy    string     `gorm:"size:64" json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (w *ScheduleWindow) Contains(t time.Time) bool {
	if w.StartAt != nil && t.Before(*w.StartAt) {
		return false
	}
	if w.EndAt != nil && t.After(*w.EndAt) {
		return false
	}
	return true
}

// NextAvailable returns the window start when t is before it, nil otherwise.
func (w *ScheduleWindow) NextAvailable(t time.Time) *time.Time {
	if w.StartAt != nil && t.Before(*w.StartAt) {
		next := *w.StartAt
		return &next
	}
	return nil
}
