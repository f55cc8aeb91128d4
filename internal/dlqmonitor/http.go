package dlqmonitor

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SetupRouter exposes the monitor's observed envelopes and the explicit
// replay trigger over HTTP. Replay only ever happens through this
// surface; the monitor itself never republishes on its own.
func SetupRouter(m *Monitor, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "moderation-dlq-monitor",
		})
	})

	r.GET("/dlq/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"seen":      m.Seen(),
			"envelopes": m.History(),
		})
	})

	r.POST("/dlq/replay/:task_id", func(c *gin.Context) {
		taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
		if err != nil || taskID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "task_id must be a positive integer",
			})
			return
		}

		if err := m.ReplayTask(c.Request.Context(), taskID); err != nil {
			if errors.Is(err, ErrEnvelopeNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "no dead-letter envelope retained for task",
				})
				return
			}

			logger.Error("Replay failed",
				slog.Int64("task_id", taskID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "failed to republish task",
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id": taskID,
			"status":  "replayed",
		})
	})

	return r
}
