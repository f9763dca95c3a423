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

type BypassCodeController struct {
	Ctrl *services.Controller
}

type issueCodeRequest struct {
	Scope       string `json:"scope" binding:"required,codescope"`
	ClassroomID string `json:"classroom_id" binding:"max=64"`
	Length      int    `json:"length" binding:"omitempty,min=4,max=12"` // optional; default 8
	Prefix      string `json:"prefix" binding:"max=12"`
}

// Issue godoc
// @Summary  Issue a single-use bypass code
// @Tags     bypass-codes
// @Success  201 {object} codeResponse
// @Router   /bypass-codes [post]
func (bc *BypassCodeController) Issue(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var req issueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := bc.Ctrl.Codes.Issue(c.Request.Context(), services.IssueRequest{
		IssuerID:    user.UserID,
		Scope:       models.CodeScope(req.Scope),
		ClassroomID: strings.TrimSpace(req.ClassroomID),
		Length:      req.Length,
		Prefix:      req.Prefix,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCodeResponses([]models.BypassCode{*rec})[0])
}

// List supports scope, classroom_id, used (true, false, all; default false)
// and limit. Teachers only see their own codes.
func (bc *BypassCodeController) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	f := store.CodeFilter{
		Scope:       models.CodeScope(strings.TrimSpace(c.Query("scope"))),
		ClassroomID: strings.TrimSpace(c.Query("classroom_id")),
		Limit:       100,
	}
	if f.Scope != "" && !f.Scope.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: "invalid scope"})
		return
	}
	if !user.IsAdmin() {
		f.IssuerID = user.UserID
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			f.Limit = n
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.DefaultQuery("used", "false"))) {
	case "true", "1":
		used := true
		f.Used = &used
	case "all":
		// no filter
	default:
		used := false
		f.Used = &used
	}

	items, err := bc.Ctrl.Codes.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toCodeResponses(items), "meta": gin.H{"total": len(items), "limit": f.Limit}})
}

func (bc *BypassCodeController) Revoke(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := bc.Ctrl.Codes.Revoke(c.Request.Context(), id, user.UserID, user.IsAdmin()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "revoked"})
}
