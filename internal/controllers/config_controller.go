package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/seb_proctor/internal/config"
	"github.com/zaqqye/seb_proctor/internal/models"
)

type ConfigController struct {
	Cfg *config.Config
}

// PublicConfig is what the sensor and autosave channel read at attach time.
type PublicConfig struct {
	BlurDebounceMs     int64                 `json:"blur_debounce_ms"`
	AutosaveIntervalMs int64                 `json:"autosave_interval_ms"`
	ReportTimeoutMs    int64                 `json:"report_timeout_ms"`
	ReportRetries      int                   `json:"report_retries"`
	BypassCodePattern  string                `json:"bypass_code_pattern"`
	IncidentKinds      []models.IncidentKind `json:"incident_kinds"`
	SchemaVersion      int                   `json:"schema_version"`
}

func (cc *ConfigController) Get(c *gin.Context) {
	c.JSON(http.StatusOK, PublicConfig{
		BlurDebounceMs:     cc.Cfg.BlurDebounce.Milliseconds(),
		AutosaveIntervalMs: cc.Cfg.AutosaveInterval.Milliseconds(),
		ReportTimeoutMs:    cc.Cfg.ReportTimeout.Milliseconds(),
		ReportRetries:      cc.Cfg.ReportRetries,
		BypassCodePattern:  BypassCodePattern,
		IncidentKinds: []models.IncidentKind{
			models.IncidentTabSwitch,
			models.IncidentWindowBlur,
			models.IncidentNavigationAttempt,
			models.IncidentAppSwitch,
			models.IncidentOrientationCheat,
		},
		SchemaVersion: 1,
	})
}
