package models

import (
	"time"

	"gorm.io/datatypes"
)

type SaveStatus string

const (
	SaveSaved   SaveStatus = "saved"
	SaveSaving  SaveStatus = "saving"
	SaveUnsaved SaveStatus = "unsaved"
	SaveError   SaveStatus = "error"
)

// AutosaveSnapshot holds the latest answers for a session, overwritten in place.
type AutosaveSnapshot struct {
	SessionID string         `gorm:"type:uuid;primaryKey" json:"session_id"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	SavedAt   time.Time      `json:"saved_at"`
}
