package server

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	// Load env
	_ "github.com/joho/godotenv/autoload"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"jobboard-backend/internal/auth"
	"jobboard-backend/internal/controller/application"
	"jobboard-backend/internal/controller/category"
	"jobboard-backend/internal/controller/file"
	"jobboard-backend/internal/controller/job"
	"jobboard-backend/internal/controller/notification"
	"jobboard-backend/internal/middleware"
	"jobboard-backend/internal/model"
)

// RegisterRoutes registers every HTTP endpoint on a gin engine.
func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	allowOriginsStr := os.Getenv("ALLOW_ORIGIN")
	allowOrigins := strings.Split(allowOriginsStr, ",")

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(middleware.SafeHeader())

	lAuth := auth.NewLocalAuthHandler(s.DB)
	categoryCtrl := category.NewCategoryController(s.DB, s.Cache)
	jobCtrl := job.NewJobController(s.DB, s.Cache, s.Bus)
	applicationCtrl := application.NewApplicationController(s.DB, s.Bus)
	notificationCtrl := notification.NewNotificationController(s.DB)
	fileCtrl := file.NewFileController(s.DB)

	r.GET("/", s.HelloWorldHandler)
	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.EnvRateLimitMiddleware())
	{
		authRoute := v1.Group("/auth")
		{
			authRoute.POST("login", lAuth.LocalLoginHandler)
			authRoute.POST("register", lAuth.LocalRegisterHandler)
		}

		categoryRoute := v1.Group("/category")
		{
			categoryRoute.GET("", categoryCtrl.GetCategories)
			categoryRoute.GET(":id", categoryCtrl.GetCategoryByID)

			adminOnly := categoryRoute.Group("")
			adminOnly.Use(middleware.RequireAuth(s.DB), middleware.CheckRole(model.RoleAdmin))
			adminOnly.POST("", categoryCtrl.CreateCategory)
			adminOnly.PATCH(":id", categoryCtrl.UpdateCategory)
			adminOnly.DELETE(":id", categoryCtrl.DeleteCategory)
		}

		jobRoute := v1.Group("/job")
		{
			jobRoute.GET("", jobCtrl.GetJobs)
			jobRoute.GET("featured", jobCtrl.GetFeatured)
			jobRoute.GET(":id", middleware.OptionalAuth(s.DB), jobCtrl.GetJobByID)

			needAuth := jobRoute.Group("")
			needAuth.Use(middleware.RequireAuth(s.DB))
			needAuth.GET("mine", jobCtrl.GetMyJobs)
			needAuth.GET(":id/export", jobCtrl.ExportApplications)

			manage := needAuth.Group("")
			manage.Use(middleware.CheckRole(model.RoleEmployer, model.RoleAdmin))
			manage.POST("", jobCtrl.CreateJobHandler)
			manage.PATCH(":id", jobCtrl.EditJob)
			manage.PATCH(":id/status", jobCtrl.UpdateJobStatus)
			manage.DELETE(":id", jobCtrl.DeleteJob)

			needAuth.PATCH(":id/approval",
				middleware.CheckRole(model.RoleAdmin), jobCtrl.UpdateApproval)
		}

		applicationRoute := v1.Group("/application")
		applicationRoute.Use(middleware.RequireAuth(s.DB))
		{
			applicationRoute.POST("",
				middleware.CheckRole(model.RoleSeeker),
				middleware.SizeLimit(model.MaxResumeSize),
				applicationCtrl.CreateApplicationHandler)
			applicationRoute.GET("", applicationCtrl.GetApplications)
			applicationRoute.GET(":id", applicationCtrl.GetApplicationByID)
			applicationRoute.GET(":id/history", applicationCtrl.GetHistoryHandler)
			applicationRoute.PATCH(":id/status",
				middleware.CheckRole(model.RoleEmployer, model.RoleAdmin),
				applicationCtrl.UpdateStatusHandler)
			applicationRoute.POST(":id/withdraw",
				middleware.CheckRole(model.RoleSeeker),
				applicationCtrl.WithdrawHandler)
		}

		notificationRoute := v1.Group("/notification")
		notificationRoute.Use(middleware.RequireAuth(s.DB))
		{
			notificationRoute.GET("", notificationCtrl.GetNotifications)
			notificationRoute.PATCH(":id/read", notificationCtrl.MarkRead)
		}

		fileRoute := v1.Group("/file")
		fileRoute.Use(middleware.RequireAuth(s.DB))
		{
			fileRoute.GET(":id", fileCtrl.GetFile)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// HelloWorldHandler handles requests by returning the message "Hello World"
func (s *Server) HelloWorldHandler(c *gin.Context) {
	resp := make(map[string]string)
	resp["message"] = "Hello World"

	c.JSON(http.StatusOK, resp)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.DB.Health())
}
