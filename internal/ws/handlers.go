package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zaqqye/seb_proctor/internal/events"
	"github.com/zaqqye/seb_proctor/internal/middleware"
	"github.com/zaqqye/seb_proctor/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; rely on JWT auth.
		return true
	},
}

// SessionReader is the part of the session service the handlers need.
type SessionReader interface {
	Get(ctx context.Context, id string) (*services.SessionView, error)
}

// MonitoringHandler streams events for ?classroom_id=a,b. Admins may omit
// the filter to watch every classroom.
func MonitoringHandler(hub *MonitoringHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "unauthorized"})
			return
		}
		if user.Role != middleware.RoleAdmin && user.Role != middleware.RoleTeacher {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "forbidden"})
			return
		}

		classrooms := map[string]struct{}{}
		for _, id := range strings.Split(c.Query("classroom_id"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				classrooms[id] = struct{}{}
			}
		}
		allowAll := user.IsAdmin() && len(classrooms) == 0
		if !allowAll && len(classrooms) == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_argument", "message": "classroom_id is required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newMonitoringClient(hub, conn, classrooms, allowAll)
		hub.register <- client

		go client.writePump()
		client.readPump()
	}
}

// SessionHandler streams events for one session to its student.
func SessionHandler(hubs *Hubs, sessions SessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hubs == nil || hubs.Sessions == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable", "message": "realtime not available"})
			return
		}
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "unauthorized"})
			return
		}
		view, err := sessions.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "session not found"})
			return
		}
		if user.Role == middleware.RoleStudent && view.StudentID != user.UserID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "forbidden"})
			return
		}

		hello, _ := json.Marshal(events.FromSession(events.SessionState, view.TestSession, view.ServerTime))
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newSessionClient(hubs.Sessions, conn, view.ID, hello)
		hubs.Sessions.register <- client

		go client.writePump()
		client.readPump()
	}
}
