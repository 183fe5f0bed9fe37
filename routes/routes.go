package routes

import (
	"go_jobs_backend/controllers"
	"go_jobs_backend/health"
	"go_jobs_backend/middleware"
	"go_jobs_backend/queue"
	"go_jobs_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up the operator API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, store queue.Store, monitor *health.Monitor, stream *services.HealthStream, jwtSecret string) {
	healthController := controllers.NewHealthController(monitor, stream)
	queueController := controllers.NewQueueController(store)
	authController := controllers.NewAuthController(db, jwtSecret)

	api := router.Group("/api/v1")
	{
		api.POST("/auth/login", authController.Login)

		api.GET("/health", healthController.GetHealth)
		api.GET("/health/live", healthController.LiveHealth)

		queues := api.Group("/queues")
		{
			queues.GET("/:name/counts", queueController.GetCounts)
			queues.GET("/:name/jobs", queueController.GetJobs)

			// Mutating job actions require an operator token
			queues.POST("/:name/jobs/:id/retry",
				middleware.JWTAuthMiddleware(jwtSecret), queueController.RetryJob)
		}
	}
}
