package app

import (
	"exam_coach_backend/docs"
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/middleware"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/pkg/monitoring"
	"exam_coach_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, s *services, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	takerLimit := security.RateLimiter(a.ctx, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window(), middleware.TakerLimitKey)

	api := router.Group("/api")
	api.GET("/health", c.health.HealthCheck)

	// 1. 学生（登录）
	student := api.Group("")
	student.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.StudentTaker(), takerLimit)
	registerAttemptRoutes(student, c)

	// 2. 教师
	teacher := api.Group("/teacher")
	teacher.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.RoleMiddleware(model.Teacher))
	{
		teacher.GET("/exams/:examId/merit-list", c.merit.GetMeritList)
	}

	// 3. 公开考试：先登记，之后凭令牌作答
	api.POST("/public/exams/:examId/participants", c.participant.Register)
	public := api.Group("/public")
	public.Use(middleware.PublicTaker(s.participant), takerLimit)
	registerAttemptRoutes(public, c)

	// 4. 练习
	practice := api.Group("/practice")
	practice.Use(middleware.PracticeTaker(), takerLimit)
	registerAttemptRoutes(practice, c)
	practice.POST("/attempts/:id/abandon", c.attempt.Abandon)
}

func registerAttemptRoutes(group *gin.RouterGroup, c *controllers) {
	group.POST("/exams/:examId/attempts", c.attempt.StartAttempt)
	group.GET("/attempts/:id/questions", c.attempt.GetQuestions)
	group.POST("/attempts/:id/answers", c.attempt.SubmitAnswer)
	group.POST("/attempts/:id/tab-switch", c.attempt.RecordTabSwitch)
	group.POST("/attempts/:id/submit", c.attempt.Submit)
	group.GET("/attempts/:id/result", c.attempt.GetResult)
}
