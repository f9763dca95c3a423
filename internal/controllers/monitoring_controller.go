package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/seb_proctor/internal/middleware"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/services"
	"github.com/zaqqye/seb_proctor/internal/store"
)

type MonitoringController struct {
	Ctrl *services.Controller
}

// ListSessions returns the security state of sessions in a classroom.
// classroom_id is required for teachers.
func (mc *MonitoringController) ListSessions(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	f := store.SessionFilter{
		ClassroomID: strings.TrimSpace(c.Query("classroom_id")),
		StudentID:   strings.TrimSpace(c.Query("student_id")),
		Status:      models.SessionStatus(strings.TrimSpace(c.Query("status"))),
		Limit:       200,
	}
	if f.ClassroomID == "" && !user.IsAdmin() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: "classroom_id is required"})
		return
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			f.Limit = n
		}
	}
	views, err := mc.Ctrl.Sessions.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]sessionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toSessionResponse(v))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": gin.H{"total": len(out)}})
}
