// Package gormstore implements store.Store on postgres through gorm.
// Row locks are taken with SELECT ... FOR UPDATE inside the transaction.
package gormstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Wrap(store.ErrDuplicate, op)
	}
	return errors.Wrap(err, op)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&tx{db: db})
	})
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.TestSession, error) {
	var rec models.TestSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translate(err, "get session")
	}
	return &rec, nil
}

func (s *Store) ListSessions(ctx context.Context, f store.SessionFilter) ([]models.TestSession, error) {
	q := s.db.WithContext(ctx).Model(&models.TestSession{}).Order("created_at DESC")
	if f.ClassroomID != "" {
		q = q.Where("classroom_id = ?", f.ClassroomID)
	}
	if f.StudentID != "" {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.TestSession
	if err := q.Find(&out).Error; err != nil {
		return nil, translate(err, "list sessions")
	}
	return out, nil
}

func (s *Store) ListIncidents(ctx context.Context, sessionID string) ([]models.SecurityIncident, error) {
	var out []models.SecurityIncident
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("sequence ASC").Find(&out).Error
	if err != nil {
		return nil, translate(err, "list incidents")
	}
	return out, nil
}

func (s *Store) GetSnapshot(ctx context.Context, sessionID string) (*models.AutosaveSnapshot, error) {
	return getSnapshot(s.db.WithContext(ctx), sessionID)
}

func (s *Store) FindWindow(ctx context.Context, classroomID, assignmentID string) (*models.ScheduleWindow, error) {
	var w models.ScheduleWindow
	err := s.db.WithContext(ctx).
		Where("classroom_id = ? AND assignment_id IN ?", classroomID, []string{assignmentID, ""}).
		Order("assignment_id DESC").
		First(&w).Error
	if err != nil {
		return nil, translate(err, "find window")
	}
	return &w, nil
}

func (s *Store) PutWindow(ctx context.Context, w *models.ScheduleWindow) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "classroom_id"}, {Name: "assignment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_at", "end_at", "updated_by", "updated_at"}),
	}).Create(w).Error
	return translate(err, "put window")
}

func (s *Store) DeleteWindow(ctx context.Context, classroomID, assignmentID string) error {
	res := s.db.WithContext(ctx).
		Where("classroom_id = ? AND assignment_id = ?", classroomID, assignmentID).
		Delete(&models.ScheduleWindow{})
	if res.Error != nil {
		return translate(res.Error, "delete window")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	var a models.Assessment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err, "get assessment")
	}
	return &a, nil
}

func (s *Store) PutAssessment(ctx context.Context, a *models.Assessment) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"classroom_id", "time_limit_seconds", "updated_at"}),
	}).Create(a).Error
	return translate(err, "put assessment")
}

func (s *Store) CreateCode(ctx context.Context, c *models.BypassCode) error {
	return translate(s.db.WithContext(ctx).Create(c).Error, "create code")
}

func (s *Store) ListCodes(ctx context.Context, f store.CodeFilter) ([]models.BypassCode, error) {
	q := s.db.WithContext(ctx).Model(&models.BypassCode{}).Order("created_at DESC")
	if f.IssuerID != "" {
		q = q.Where("issuer_id = ?", f.IssuerID)
	}
	if f.ClassroomID != "" {
		q = q.Where("classroom_id = ?", f.ClassroomID)
	}
	if f.Scope != "" {
		q = q.Where("scope = ?", f.Scope)
	}
	if f.Used != nil {
		if *f.Used {
			q = q.Where("consumed_at IS NOT NULL OR revoked_at IS NOT NULL")
		} else {
			q = q.Where("consumed_at IS NULL AND revoked_at IS NULL")
		}
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.BypassCode
	if err := q.Find(&out).Error; err != nil {
		return nil, translate(err, "list codes")
	}
	return out, nil
}

type tx struct {
	db *gorm.DB
}

func (t *tx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *tx) LockSession(id string) (*models.TestSession, error) {
	var rec models.TestSession
	if err := t.forUpdate().Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translate(err, "lock session")
	}
	return &rec, nil
}

func (t *tx) CreateSession(s *models.TestSession) error {
	return translate(t.db.Create(s).Error, "create session")
}

func (t *tx) SaveSession(s *models.TestSession) error {
	return translate(t.db.Save(s).Error, "save session")
}

func (t *tx) LockAttempt(studentID, assessmentID string) error {
	err := t.db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", studentID+"/"+assessmentID).Error
	return translate(err, "lock attempt")
}

func (t *tx) FindOpenSession(studentID, assessmentID string) (*models.TestSession, error) {
	var rec models.TestSession
	err := t.forUpdate().
		Where("student_id = ? AND assessment_id = ? AND status IN ?", studentID, assessmentID,
			[]models.SessionStatus{models.SessionActive, models.SessionLocked}).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, translate(err, "find open session")
	}
	return &rec, nil
}

func (t *tx) LockCode(code string) (*models.BypassCode, error) {
	var rec models.BypassCode
	if err := t.forUpdate().Where("code = ?", code).First(&rec).Error; err != nil {
		return nil, translate(err, "lock code")
	}
	return &rec, nil
}

func (t *tx) LockCodeByID(id string) (*models.BypassCode, error) {
	var rec models.BypassCode
	if err := t.forUpdate().Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translate(err, "lock code")
	}
	return &rec, nil
}

func (t *tx) SaveCode(c *models.BypassCode) error {
	return translate(t.db.Save(c).Error, "save code")
}

func (t *tx) FindIncidentByClientID(sessionID, clientID string) (*models.SecurityIncident, error) {
	var rec models.SecurityIncident
	err := t.db.Where("session_id = ? AND client_incident_id = ?", sessionID, clientID).First(&rec).Error
	if err != nil {
		return nil, translate(err, "find incident")
	}
	return &rec, nil
}

func (t *tx) FindIncidentNear(sessionID string, kind models.IncidentKind, from, to time.Time) (*models.SecurityIncident, error) {
	var rec models.SecurityIncident
	err := t.db.
		Where("session_id = ? AND kind = ? AND observed_at BETWEEN ? AND ?", sessionID, kind, from, to).
		Order("observed_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, translate(err, "find incident")
	}
	return &rec, nil
}

func (t *tx) InsertIncident(i *models.SecurityIncident) error {
	return translate(t.db.Create(i).Error, "insert incident")
}

func (t *tx) GetSnapshot(sessionID string) (*models.AutosaveSnapshot, error) {
	return getSnapshot(t.db, sessionID)
}

func (t *tx) PutSnapshot(s *models.AutosaveSnapshot) error {
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "saved_at"}),
	}).Create(s).Error
	return translate(err, "put snapshot")
}

func getSnapshot(db *gorm.DB, sessionID string) (*models.AutosaveSnapshot, error) {
	var rec models.AutosaveSnapshot
	if err := db.Where("session_id = ?", sessionID).First(&rec).Error; err != nil {
		return nil, translate(err, "get snapshot")
	}
	return &rec, nil
}
