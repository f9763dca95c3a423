package services

import (
	"time"

	"github.com/pkg/errors"

	"github.com/zaqqye/seb_proctor/internal/models"
)

var (
	ErrScheduleDenied     = errors.New("not available: outside the schedule window")
	ErrInvalidCode        = errors.New("invalid or expired bypass code")
	ErrCodeConsumed       = errors.New("bypass code has already been used")
	ErrNotLocked          = errors.New("session is not locked")
	ErrSessionEnded       = errors.New("session has already ended")
	ErrSessionLocked      = errors.New("session is locked, ask your teacher for a bypass code")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrCodeNotFound       = errors.New("bypass code not found")
	ErrForbidden          = errors.New("not allowed")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ScheduleDeniedError reports when the blocked start becomes possible.
type ScheduleDeniedError struct {
	Window        *models.ScheduleWindow
	NextAvailable *time.Time
}

func (e *ScheduleDeniedError) Error() string {
	if e.NextAvailable != nil {
		return "not available until " + e.NextAvailable.Format(time.RFC1123)
	}
	return ErrScheduleDenied.Error()
}

func (e *ScheduleDeniedError) Is(target error) bool {
	return target == ErrScheduleDenied
}
