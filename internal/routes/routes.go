package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/zaqqye/seb_proctor/internal/config"
	"github.com/zaqqye/seb_proctor/internal/controllers"
	"github.com/zaqqye/seb_proctor/internal/middleware"
	"github.com/zaqqye/seb_proctor/internal/services"
	"github.com/zaqqye/seb_proctor/internal/ws"
)

const (
	admin   = middleware.RoleAdmin
	teacher = middleware.RoleTeacher
	student = middleware.RoleStudent
)

func Register(r *gin.Engine, ctrl *services.Controller, hubs *ws.Hubs, cfg *config.Config) {
	controllers.RegisterValidators()

	corsCfg := cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Controllers
	sessionCtrl := &controllers.SessionController{Ctrl: ctrl}
	scheduleCtrl := &controllers.ScheduleController{Ctrl: ctrl}
	codeCtrl := &controllers.BypassCodeController{Ctrl: ctrl}
	monitorCtrl := &controllers.MonitoringController{Ctrl: ctrl}
	assessmentCtrl := &controllers.AssessmentController{Ctrl: ctrl}
	cfgCtrl := &controllers.ConfigController{Cfg: cfg}

	// Public
	r.GET("/api/v1/config/public", cfgCtrl.Get)

	// Protected
	authMW := middleware.AuthMiddleware(middleware.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		JWTExpiresIn: cfg.JWTExpiresIn,
	})
	api := r.Group("/api/v1", authMW)
	{
		api.GET("/schedule/:classroom_id/availability", scheduleCtrl.Availability)
		api.POST("/assessments/:assignment_id/sessions", middleware.RequireRoles(student), sessionCtrl.Start)

		// Student facing; teachers may read and unlock too
		sessions := api.Group("/sessions")
		{
			sessions.GET("/:id", sessionCtrl.Get)
			sessions.GET("/:id/security-status", sessionCtrl.SecurityStatus)
			sessions.POST("/:id/incidents", middleware.RequireRoles(student), sessionCtrl.RecordIncident)
			sessions.GET("/:id/incidents", middleware.RequireRoles(teacher), sessionCtrl.ListIncidents)
			sessions.POST("/:id/unlock", sessionCtrl.Unlock)
			sessions.PUT("/:id/autosave", middleware.RequireRoles(student), sessionCtrl.Autosave)
			sessions.GET("/:id/autosave", sessionCtrl.GetAutosave)
			sessions.POST("/:id/submit", middleware.RequireRoles(student), sessionCtrl.Submit)
		}

		// Teacher area (and admin)
		schedule := api.Group("/schedule", middleware.RequireRoles(teacher))
		{
			schedule.PUT("/:classroom_id", scheduleCtrl.Put)
			schedule.DELETE("/:classroom_id", scheduleCtrl.Delete)
		}
		codes := api.Group("/bypass-codes", middleware.RequireRoles(teacher))
		{
			codes.POST("", codeCtrl.Issue)
			codes.GET("", codeCtrl.List)
			codes.POST("/:id/revoke", codeCtrl.Revoke)
		}
		api.GET("/monitoring/sessions", middleware.RequireRoles(teacher), monitorCtrl.ListSessions)

		// Admin-only
		adminGroup := api.Group("/admin", middleware.RequireRoles(admin))
		{
			adminGroup.PUT("/assessments/:id", assessmentCtrl.Put)
		}

		// Realtime push, replaces status polling
		api.GET("/ws/monitoring", middleware.RequireRoles(teacher), ws.MonitoringHandler(hubs.Monitoring))
		api.GET("/ws/sessions/:id", ws.SessionHandler(hubs, ctrl.Sessions))
	}
}
