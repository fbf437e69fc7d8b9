package app

import (
	"context"
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/controller"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/internal/service"
	"exam_coach_backend/pkg/configwatcher"
	"exam_coach_backend/pkg/database"
	"exam_coach_backend/pkg/logger"
	"exam_coach_backend/pkg/monitoring"
	"exam_coach_backend/pkg/security"
	"exam_coach_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigDir       string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)

	// 后台任务与限流清理的生命周期
	ctx  context.Context
	stop context.CancelFunc
}

type repositories struct {
	exam        *repository.ExamRepository
	attempt     *repository.AttemptRepository
	participant *repository.ParticipantRepository
}

type services struct {
	attempt     *service.AttemptService
	integrity   *service.IntegrityService
	result      *service.ResultService
	participant *service.ParticipantService
	sweeper     *service.DeadlineSweeper
	policies    *service.PolicySet
}

type controllers struct {
	attempt     *controller.AttemptController
	merit       *controller.MeritController
	participant *controller.ParticipantController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		exam:        repository.NewExamRepository(db, rdb, cfg.Exam.CatalogCacheTTL()),
		attempt:     repository.NewAttemptRepository(db),
		participant: repository.NewParticipantRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	var archiver service.ResultArchiver
	if cfg.Exam.ArchiveResults {
		archiver = service.NewArchiveService(service.NewArchiveStore(&cfg.Storage))
	}

	s.policies = service.NewPolicySet(cfg.Exam)
	s.attempt = service.NewAttemptService(repos.attempt, repos.exam, s.policies, archiver, cfg.Exam.TimeGrace())
	s.integrity = service.NewIntegrityService(s.attempt)
	s.result = service.NewResultService(s.attempt, service.NewGradeTable(cfg.Exam.GradeTable))
	s.participant = service.NewParticipantService(repos.participant, repos.exam)
	s.sweeper = service.NewDeadlineSweeper(s.attempt, cfg.Exam.SweepInterval(), cfg.Exam.AbandonAfter())

	// 阈值、分档表与日志级别热更新
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.Level.SetLevel(logger.ResolveLevel(newCfg))
		s.policies.Reload(newCfg.Exam)
		s.result.SetGradeTable(service.NewGradeTable(newCfg.Exam.GradeTable))
		logger.Log.Info("Exam policy reloaded",
			zap.Int("violation_threshold", newCfg.Exam.ViolationThreshold),
			zap.Int("practice_violation_threshold", newCfg.Exam.PracticeViolationThreshold))
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		attempt:     controller.NewAttemptController(s.attempt, s.integrity, s.result),
		merit:       controller.NewMeritController(s.result),
		participant: controller.NewParticipantController(s.participant),
		health:      controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(ctx context.Context, router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	// 按考生的限流在身份解析之后挂到各路由组上
	router.Use(security.RateLimiter(ctx, cfg.RateLimit.IPMaxRequests, cfg.RateLimit.Window(), security.ClientIPKey))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	go s.sweeper.Run(ctx)

	go func() {
		configFile := filepath.Join(a.ConfigDir, "config.yaml")
		err := configwatcher.WatchConfig(ctx, configFile, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Error("config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		DB:        db,
		ctx:       ctx,
		stop:      stop,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(ctx, router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, services, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	defer a.stop()
	a.startBackgroundTasks(a.ctx, a.services)

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// 先停后台任务，避免关闭期间继续交卷
	a.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
