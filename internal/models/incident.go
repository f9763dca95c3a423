package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type IncidentKind string

const (
	IncidentTabSwitch         IncidentKind = "tab_switch"
	IncidentWindowBlur        IncidentKind = "window_blur"
	IncidentNavigationAttempt IncidentKind = "navigation_attempt"
	IncidentAppSwitch         IncidentKind = "app_switch"
	IncidentOrientationCheat  IncidentKind = "orientation_cheat"
)

var incidentKinds = map[IncidentKind]struct{}{
	IncidentTabSwitch:         {},
	IncidentWindowBlur:        {},
	IncidentNavigationAttempt: {},
	IncidentAppSwitch:         {},
	IncidentOrientationCheat:  {},
}

func (k IncidentKind) Valid() bool {
	_, ok := incidentKinds[k]
	return ok
}

// SecurityIncident is append-only; rows are never updated.
// ClientIncidentID is the sensor-side id used to drop retried deliveries.
type SecurityIncident struct {
	ID               string         `gorm:"type:uuid;primaryKey" json:"incident_id"`
	SessionID        string         `gorm:"type:uuid;not null;index:idx_incident_session_kind,priority:1;uniqueIndex:uniq_incident_client,priority:1" json:"session_id"`
	ClientIncidentID *string        `gorm:"size:64;uniqueIndex:uniq_incident_client,priority:2" json:"client_incident_id,omitempty"`
	Kind             IncidentKind   `gorm:"size:32;not null;index:idx_incident_session_kind,priority:2" json:"kind"`
	ObservedAt       time.Time      `gorm:"not null" json:"observed_at"`
	Context          datatypes.JSON `gorm:"type:jsonb" json:"context,omitempty"`
	Sequence         int            `gorm:"not null" json:"sequence"`
	CreatedAt        time.Time      `json:"recorded_at"`
}

func (i *SecurityIncident) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
