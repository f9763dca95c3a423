package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CodeScope string

const (
	ScopeSession  CodeScope = "session"
	ScopeSchedule CodeScope = "schedule"
)

func (s CodeScope) Valid() bool {
	return s == ScopeSession || s == ScopeSchedule
}

// BypassCode is a teacher-issued single-use secret.
// ClassroomID, when set, restricts where the code can be applied.
type BypassCode struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string     `gorm:"size:32;uniqueIndex" json:"code"`
	IssuerID    string     `gorm:"size:64;index" json:"issuer_id"`
	Scope       CodeScope  `gorm:"size:16;not null;index" json:"scope"`
	ClassroomID *string    `gorm:"size:64;index" json:"classroom_id,omitempty"`
	ConsumedAt  *time.Time `gorm:"index" json:"consumed_at,omitempty"`
	ConsumedBy  *string    `gorm:"size:64" json:"consumed_by,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (b *BypassCode) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Spent is true once the code was consumed or revoked.
func (b *BypassCode) Spent() bool {
	return b.ConsumedAt != nil || b.RevokedAt != nil
}
