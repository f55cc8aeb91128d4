package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vagrigoreva/moderation-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.DB != nil {
			if err := deps.DB.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "moderation-api-service",
					"error":   "database unreachable",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "moderation-api-service",
		})
	})

	moderationHandler := handler.NewModerationHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		ads := v1.Group("/ads")
		{
			// POST /api/v1/ads/predict - Synchronous violation prediction
			ads.POST("/predict", moderationHandler.PredictAd)
		}

		moderation := v1.Group("/moderation")
		{
			// POST /api/v1/moderation - Submit an item for async moderation
			moderation.POST("", moderationHandler.SubmitModeration)

			// GET /api/v1/moderation/:task_id - Poll moderation status
			moderation.GET("/:task_id", moderationHandler.GetModerationResult)
		}
	}

	return r
}
