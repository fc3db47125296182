package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/smartfix-dev/smartfix-api/config"
	"github.com/smartfix-dev/smartfix-api/controllers"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/models"
)

// NewRouter builds a gin engine with every SmartFix route mounted
func NewRouter(cfg *config.Config) *gin.Engine {
	router := gin.New()
	Setup(router, cfg)
	return router
}

// Setup mounts the middleware chain and the /api/v1 routes on router
func Setup(router *gin.Engine, cfg *config.Config) {
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(cors.New(corsConfig(cfg)))

	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)
		v1.GET("/database/status", DatabaseStatus)
		v1.GET("/uploads/:filename", controllers.GetUploadedImage)

		auth := v1.Group("/auth")
		{
			auth.POST("/register", controllers.Register)
			auth.POST("/login", controllers.Login)
		}

		protected := v1.Group("")
		protected.Use(middleware.EnsureValidToken(cfg))
		adminOnly := middleware.RequireRole(models.RoleAdmin)
		{
			protected.POST("/auth/logout", controllers.Logout)
			protected.GET("/auth/me", controllers.Me)

			requests := protected.Group("/repair-requests")
			{
				requests.GET("", controllers.ListRepairRequests)
				requests.GET("/export", controllers.ExportRepairRequests)
				requests.POST("/import", adminOnly, controllers.ImportRepairRequests)
				requests.GET("/technician/:id", controllers.ListTechnicianRequests)
				requests.GET("/:id", controllers.GetRepairRequest)
				requests.POST("", controllers.CreateRepairRequest)
				requests.PUT("/:id", controllers.UpdateRepairRequest)
				requests.DELETE("/:id", adminOnly, controllers.DeleteRepairRequest)
			}

			comments := protected.Group("/comments")
			{
				comments.GET("/:id", controllers.ListComments)
				comments.POST("", controllers.AddComment)
				comments.PUT("/:id", controllers.EditComment)
				comments.DELETE("/:id", adminOnly, controllers.DeleteComment)
			}

			catalog := protected.Group("/services")
			{
				catalog.GET("", controllers.ListServices)
				catalog.GET("/:id", controllers.GetService)
				catalog.POST("", adminOnly, controllers.CreateService)
				catalog.PUT("/:id", adminOnly, controllers.UpdateService)
				catalog.DELETE("/:id", adminOnly, controllers.DeleteService)
			}

			users := protected.Group("/users")
			{
				users.GET("", adminOnly, controllers.ListUsers)
				users.GET("/technicians", controllers.ListTechnicians)
				users.GET("/:id", controllers.GetUser)
				users.POST("", adminOnly, controllers.CreateUser)
				users.PUT("/:id", controllers.UpdateUser)
				users.DELETE("/:id", adminOnly, controllers.DeleteUser)
				users.POST("/:id/avatar", controllers.UploadAvatar)
			}

			reports := protected.Group("/reports", adminOnly)
			{
				reports.GET("/summary", controllers.Summary)
				reports.POST("/sheets", controllers.ExportToSheets)
			}
		}
	}
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if cfg == nil || len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	return corsCfg
}
