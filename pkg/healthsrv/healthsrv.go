// Package healthsrv is the governor's ambient HTTP surface: store
// reachability plus daemon and loop-detector introspection over a
// small gin router. It renders no UI and owns no task planning.
package healthsrv

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tarsy-labs/session-governor/pkg/daemon"
	"github.com/tarsy-labs/session-governor/pkg/governor"
	"github.com/tarsy-labs/session-governor/pkg/store"
)

// Server wires the daemon, governor, and store into a small gin router.
type Server struct {
	Daemon *daemon.Daemon
	Gov    *governor.Governor
	Store  *store.Store
}

// Router builds the gin engine with its default middleware stack.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()
	router.GET("/healthz", s.healthz)
	router.GET("/debug/sessions/:id/loop", s.debugSessionLoop)
	return router
}

func (s *Server) healthz(c *gin.Context) {
	dbHealth, err := s.Store.Health(c.Request.Context())
	daemonState := s.Daemon.State()

	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "unhealthy",
			"store":        dbHealth,
			"daemon_state": string(daemonState),
			"error":        err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"store":        dbHealth,
		"daemon_state": string(daemonState),
	})
}

func (s *Server) debugSessionLoop(c *gin.Context) {
	sessionID := c.Param("id")
	metrics, ok := s.Gov.Snapshot(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active loop detector for session " + sessionID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":      sessionID,
		"step_count":      metrics.StepCount,
		"tool_call_count": metrics.ToolCallCount,
		"total_cost":      metrics.TotalCost,
	})
}
