// Package memstore is an in-memory store.Store used by tests and the
// STORE_DRIVER=memory dev mode.
//
// Row locks are per-key mutexes held until the transaction callback returns.
// Writes are staged inside the transaction and applied only when the callback
// succeeds, so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/store"
)

type windowKey struct {
	classroomID  string
	assignmentID string
}

type Store struct {
	mu          sync.RWMutex
	sessions    map[string]models.TestSession
	incidents   map[string][]models.SecurityIncident
	codes       map[string]models.BypassCode
	codeIDs     map[string]string
	snapshots   map[string]models.AutosaveSnapshot
	windows     map[windowKey]models.ScheduleWindow
	assessments map[string]models.Assessment
	windowSeq   uint

	locks keyedMutex
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sessions:    make(map[string]models.TestSession),
		incidents:   make(map[string][]models.SecurityIncident),
		codes:       make(map[string]models.BypassCode),
		codeIDs:     make(map[string]string),
		snapshots:   make(map[string]models.AutosaveSnapshot),
		windows:     make(map[windowKey]models.ScheduleWindow),
		assessments: make(map[string]models.Assessment),
		locks:       keyedMutex{m: make(map[string]*keyedEntry)},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the timestamp source for CreatedAt/UpdatedAt columns.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		s:         s,
		held:      make(map[string]func()),
		sessions:  make(map[string]models.TestSession),
		codes:     make(map[string]models.BypassCode),
		snapshots: make(map[string]models.AutosaveSnapshot),
	}
	defer t.release()
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*models.TestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) ListSessions(_ context.Context, f store.SessionFilter) ([]models.TestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TestSession, 0, len(s.sessions))
	for _, rec := range s.sessions {
		if f.ClassroomID != "" && rec.ClassroomID != f.ClassroomID {
			continue
		}
		if f.StudentID != "" && rec.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListIncidents(_ context.Context, sessionID string) ([]models.SecurityIncident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.incidents[sessionID]
	out := make([]models.SecurityIncident, len(src))
	copy(out, src)
	return out, nil
}

func (s *Store) GetSnapshot(_ context.Context, sessionID string) (*models.AutosaveSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.snapshots[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) FindWindow(_ context.Context, classroomID, assignmentID string) (*models.ScheduleWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if assignmentID != "" {
		if w, ok := s.windows[windowKey{classroomID, assignmentID}]; ok {
			return &w, nil
		}
	}
	if w, ok := s.windows[windowKey{classroomID, ""}]; ok {
		return &w, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) PutWindow(_ context.Context, w *models.ScheduleWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := windowKey{w.ClassroomID, w.AssignmentID}
	now := s.now()
	if existing, ok := s.windows[key]; ok {
		w.ID = existing.ID
		w.CreatedAt = existing.CreatedAt
	} else {
		s.windowSeq++
		w.ID = s.windowSeq
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	s.windows[key] = *w
	return nil
}

func (s *Store) DeleteWindow(_ context.Context, classroomID, assignmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := windowKey{classroomID, assignmentID}
	if _, ok := s.windows[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.windows, key)
	return nil
}

func (s *Store) GetAssessment(_ context.Context, id string) (*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) PutAssessment(_ context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.assessments[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.assessments[a.ID] = *a
	return nil
}

func (s *Store) CreateCode(_ context.Context, c *models.BypassCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codeIDs[c.Code]; ok {
		return store.ErrDuplicate
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.now()
	s.codes[c.ID] = *c
	s.codeIDs[c.Code] = c.ID
	return nil
}

func (s *Store) ListCodes(_ context.Context, f store.CodeFilter) ([]models.BypassCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BypassCode, 0, len(s.codes))
	for _, c := range s.codes {
		if f.IssuerID != "" && c.IssuerID != f.IssuerID {
			continue
		}
		if f.ClassroomID != "" && (c.ClassroomID == nil || *c.ClassroomID != f.ClassroomID) {
			continue
		}
		if f.Scope != "" && c.Scope != f.Scope {
			continue
		}
		if f.Used != nil && c.Spent() != *f.Used {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type tx struct {
	s         *Store
	held      map[string]func()
	sessions  map[string]models.TestSession
	codes     map[string]models.BypassCode
	incidents []models.SecurityIncident
	snapshots map[string]models.AutosaveSnapshot
}

func (t *tx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	t.held[key] = t.s.locks.Lock(key)
}

func (t *tx) release() {
	for _, unlock := range t.held {
		unlock()
	}
	t.held = nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, rec := range t.sessions {
		t.s.sessions[id] = rec
	}
	for id, rec := range t.codes {
		t.s.codes[id] = rec
		t.s.codeIDs[rec.Code] = id
	}
	for _, rec := range t.incidents {
		t.s.incidents[rec.SessionID] = append(t.s.incidents[rec.SessionID], rec)
	}
	for id, rec := range t.snapshots {
		t.s.snapshots[id] = rec
	}
}

func (t *tx) session(id string) (models.TestSession, bool) {
	if rec, ok := t.sessions[id]; ok {
		return rec, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.sessions[id]
	return rec, ok
}

func (t *tx) LockSession(id string) (*models.TestSession, error) {
	t.lock("session:" + id)
	rec, ok := t.session(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (t *tx) CreateSession(s *models.TestSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, exists := t.session(s.ID); exists {
		return store.ErrDuplicate
	}
	t.lock("session:" + s.ID)
	now := t.s.now()
	s.CreatedAt = now
	s.UpdatedAt = now
	t.sessions[s.ID] = *s
	return nil
}

func (t *tx) SaveSession(s *models.TestSession) error {
	if _, ok := t.session(s.ID); !ok {
		return store.ErrNotFound
	}
	s.UpdatedAt = t.s.now()
	t.sessions[s.ID] = *s
	return nil
}

func (t *tx) LockAttempt(studentID, assessmentID string) error {
	t.lock("attempt:" + studentID + "/" + assessmentID)
	return nil
}

func (t *tx) FindOpenSession(studentID, assessmentID string) (*models.TestSession, error) {
	t.s.mu.RLock()
	ids := make([]string, 0)
	for id, rec := range t.s.sessions {
		if rec.StudentID == studentID && rec.AssessmentID == assessmentID {
			ids = append(ids, id)
		}
	}
	t.s.mu.RUnlock()
	for id, rec := range t.sessions {
		if rec.StudentID == studentID && rec.AssessmentID == assessmentID {
			ids = append(ids, id)
		}
	}
	var found *models.TestSession
	for _, id := range ids {
		rec, _ := t.session(id)
		if rec.Status != models.SessionActive && rec.Status != models.SessionLocked {
			continue
		}
		if found == nil || rec.CreatedAt.After(found.CreatedAt) {
			r := rec
			found = &r
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return t.LockSession(found.ID)
}

func (t *tx) codeByID(id string) (models.BypassCode, bool) {
	if rec, ok := t.codes[id]; ok {
		return rec, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.codes[id]
	return rec, ok
}

func (t *tx) LockCode(code string) (*models.BypassCode, error) {
	t.s.mu.RLock()
	id, ok := t.s.codeIDs[code]
	t.s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.LockCodeByID(id)
}

func (t *tx) LockCodeByID(id string) (*models.BypassCode, error) {
	t.lock("code:" + id)
	rec, ok := t.codeByID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (t *tx) SaveCode(c *models.BypassCode) error {
	if _, ok := t.codeByID(c.ID); !ok {
		return store.ErrNotFound
	}
	t.codes[c.ID] = *c
	return nil
}

func (t *tx) allIncidents(sessionID string) []models.SecurityIncident {
	t.s.mu.RLock()
	out := append([]models.SecurityIncident(nil), t.s.incidents[sessionID]...)
	t.s.mu.RUnlock()
	for _, rec := range t.incidents {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}

func (t *tx) FindIncidentByClientID(sessionID, clientID string) (*models.SecurityIncident, error) {
	for _, rec := range t.allIncidents(sessionID) {
		if rec.ClientIncidentID != nil && *rec.ClientIncidentID == clientID {
			return &rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) FindIncidentNear(sessionID string, kind models.IncidentKind, from, to time.Time) (*models.SecurityIncident, error) {
	var found *models.SecurityIncident
	for _, rec := range t.allIncidents(sessionID) {
		if rec.Kind != kind || rec.ObservedAt.Before(from) || rec.ObservedAt.After(to) {
			continue
		}
		if found == nil || rec.ObservedAt.After(found.ObservedAt) {
			r := rec
			found = &r
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (t *tx) InsertIncident(i *models.SecurityIncident) error {
	if i.ClientIncidentID != nil {
		if _, err := t.FindIncidentByClientID(i.SessionID, *i.ClientIncidentID); err == nil {
			return store.ErrDuplicate
		}
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = t.s.now()
	t.incidents = append(t.incidents, *i)
	return nil
}

func (t *tx) GetSnapshot(sessionID string) (*models.AutosaveSnapshot, error) {
	if rec, ok := t.snapshots[sessionID]; ok {
		return &rec, nil
	}
	return t.s.GetSnapshot(context.Background(), sessionID)
}

func (t *tx) PutSnapshot(s *models.AutosaveSnapshot) error {
	t.snapshots[s.SessionID] = *s
	return nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.m[key]
	if !ok {
		e = &keyedEntry{}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
