package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/zaqqye/seb_proctor/internal/middleware"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/services"
)

type SessionController struct {
	Ctrl *services.Controller
}

// owned loads the session and checks that a student only touches their own.
func (sc *SessionController) owned(c *gin.Context) (*services.SessionView, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	view, err := sc.Ctrl.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	user, _ := middleware.CurrentUser(c)
	if user.Role == middleware.RoleStudent && view.StudentID != user.UserID {
		// do not reveal other students' sessions
		respondError(c, services.ErrSessionNotFound)
		return nil, false
	}
	return view, true
}

type startSessionRequest struct {
	OverrideCode string `json:"override_code" binding:"max=64"`
	ClassroomID  string `json:"classroom_id"`
}

// Start godoc
// @Summary  Start or resume a test session
// @Tags     sessions
// @Param    assignment_id path string true "assignment id"
// @Success  201 {object} sessionResponse
// @Failure  403 {object} scheduleLockedResponse
// @Router   /assessments/{assignment_id}/sessions [post]
func (sc *SessionController) Start(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var req startSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	res, err := sc.Ctrl.Schedule.StartWithOverride(c.Request.Context(), services.StartRequest{
		AssignmentID: c.Param("assignment_id"),
		StudentID:    user.UserID,
		ClassroomID:  req.ClassroomID,
		OverrideCode: req.OverrideCode,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	view, err := sc.Ctrl.Sessions.Get(c.Request.Context(), res.Session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, toSessionResponse(view))
}

func (sc *SessionController) Get(c *gin.Context) {
	view, ok := sc.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(view))
}

type submitRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// Submit is idempotent: a session that already ended is returned unchanged.
func (sc *SessionController) Submit(c *gin.Context) {
	view, ok := sc.owned(c)
	if !ok {
		return
	}
	var req submitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if _, err := sc.Ctrl.Sessions.Submit(c.Request.Context(), view.ID, req.Payload); err != nil {
		respondError(c, err)
		return
	}
	view, err := sc.Ctrl.Sessions.Get(c.Request.Context(), view.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(view))
}

type incidentRequest struct {
	IncidentID string          `json:"incident_id" binding:"omitempty,max=64"`
	Kind       string          `json:"kind" binding:"required,incidentkind"`
	ObservedAt FlexibleTime    `json:"observed_at"`
	Context    json.RawMessage `json:"context"`
}

// RecordIncident godoc
// @Summary  Report a security incident
// @Tags     sessions
// @Param    id path string true "session id"
// @Success  200 {object} services.LedgerResult
// @Router   /sessions/{id}/incidents [post]
func (sc *SessionController) RecordIncident(c *gin.Context) {
	view, ok := sc.owned(c)
	if !ok {
		return
	}
	var req incidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var ctxJSON datatypes.JSON
	if len(req.Context) > 0 && string(req.Context) != "null" {
		ctxJSON = datatypes.JSON(req.Context)
	}
	res, err := sc.Ctrl.Ledger.RecordIncident(c.Request.Context(), services.IncidentReport{
		SessionID:        view.ID,
		ClientIncidentID: req.IncidentID,
		Kind:             models.IncidentKind(req.Kind),
		ObservedAt:       req.ObservedAt.Time,
		Context:          ctxJSON,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (sc *SessionController) ListIncidents(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	items, err := sc.Ctrl.Sessions.Incidents(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "meta": gin.H{"total": len(items)}})
}

func (sc *SessionController) SecurityStatus(c *gin.Context) {
	view, ok := sc.owned(c)
	if !ok {
		return
	}
	st, err := sc.Ctrl.Ledger.Status(c.Request.Context(), view.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type unlockRequest struct {
	BypassCode string `json:"bypass_code" binding:"max=64"`
}

// Unlock godoc
// @Summary  Restart a locked session with a bypass code
// @Tags     sessions
// @Param    id path string true "session id"
// @Success  201 {object} sessionResponse
// @Failure  400 {object} errorResponse
// @Failure  409 {object} errorResponse
// @Router   /sessions/{id}/unlock [post]
func (sc *SessionController) Unlock(c *gin.Context) {
	view, ok := sc.owned(c)
	if !ok {
		return
	}
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := sc.Ctrl.Unlock.Unlock(c.Request.Context(), view.ID, req.BypassCode)
	if err != nil {
		respondError(c, err)
		return
	}
	next, err := sc.Ctrl.Sessions.Get(c.Request.Context(), res.Session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(next))
}

type autosaveRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

func (sc *SessionController) Autosave(c *gin.Context) {
	view, ok := sc.owned(c)
	if !ok {
		return
	}
	var req autosaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := sc.Ctrl.Autosave.Save(c.Request.Context(), view.ID, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (sc *SessionController) GetAutosave(c *gin.Context) {
	view, ok := sc.owned(c)
	if !ok {
		return
	}
	snap, err := sc.Ctrl.Autosave.Get(c.Request.Context(), view.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
