package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/seb_proctor/internal/models"
	"github.com/zaqqye/seb_proctor/internal/services"
)

type AssessmentController struct {
	Ctrl *services.Controller
}

type putAssessmentRequest struct {
	ClassroomID      string `json:"classroom_id" binding:"required,max=64"`
	TimeLimitSeconds int64  `json:"time_limit_seconds" binding:"required,min=60"`
}

func (ac *AssessmentController) Put(c *gin.Context) {
	var req putAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a := &models.Assessment{ID: c.Param("id"), ClassroomID: req.ClassroomID, TimeLimitSeconds: req.TimeLimitSeconds}
	if err := ac.Ctrl.Schedule.RegisterAssessment(c.Request.Context(), a); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
