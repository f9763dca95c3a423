package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/seb_proctor/internal/middleware"
	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/services"
)

type ScheduleController struct {
	Ctrl *services.Controller
}

// Availability godoc
// @Summary  Check whether a session may start now
// @Tags     schedule
// @Param    classroom_id  path  string true  "classroom id"
// @Param    assignment_id query string false "assignment id"
// @Success  200 {object} availabilityResponse
// @Router   /schedule/{classroom_id}/availability [get]
func (sc *ScheduleController) Availability(c *gin.Context) {
	av := sc.Ctrl.Schedule.CheckAvailability(c.Request.Context(), c.Param("classroom_id"), strings.TrimSpace(c.Query("assignment_id")))
	c.JSON(http.StatusOK, toAvailabilityResponse(av))
}

type putWindowRequest struct {
	AssignmentID string       `json:"assignment_id" binding:"max=64"`
	StartAt      FlexibleTime `json:"start_at"`
	EndAt        FlexibleTime `json:"end_at"`
}

func (sc *ScheduleController) Put(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var req putWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w := &models.ScheduleWindow{
		ClassroomID:  c.Param("classroom_id"),
		AssignmentID: strings.TrimSpace(req.AssignmentID),
		StartAt:      req.StartAt.Ptr(),
		EndAt:        req.EndAt.Ptr(),
		UpdatedBy:    user.UserID,
	}
	if err := sc.Ctrl.Schedule.PutWindow(c.Request.Context(), w); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (sc *ScheduleController) Delete(c *gin.Context) {
	err := sc.Ctrl.Schedule.DeleteWindow(c.Request.Context(), c.Param("classroom_id"), strings.TrimSpace(c.Query("assignment_id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
