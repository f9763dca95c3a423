package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// uuidParam reads a path parameter that must be a UUID. It writes the 400
// response itself and reports false when the value is malformed.
func uuidParam(c *gin.Context, name string) (string, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "invalid " + name})
		return "", false
	}
	return id.String(), true
}
