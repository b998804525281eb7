package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/guru-portal-api/api/swagger"
	"github.com/noah-isme/guru-portal-api/internal/handler"
	"github.com/noah-isme/guru-portal-api/internal/middleware"
	"github.com/noah-isme/guru-portal-api/internal/models"
	"github.com/noah-isme/guru-portal-api/internal/repository"
	"github.com/noah-isme/guru-portal-api/internal/service"
	"github.com/noah-isme/guru-portal-api/pkg/cache"
	"github.com/noah-isme/guru-portal-api/pkg/config"
	"github.com/noah-isme/guru-portal-api/pkg/database"
	"github.com/noah-isme/guru-portal-api/pkg/jobs"
	"github.com/noah-isme/guru-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/guru-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/guru-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/guru-portal-api/pkg/storage"
)

// @title Guru Portal API
// @version 1.0.0
// @description Teaching slot booking, session verification and exam grading portal
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	examRepo := repository.NewExamRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr, metricsSvc)

	// File storage areas.
	photoStore, err := storage.NewLocalStorage(cfg.Sessions.PhotoStorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init photo storage", "error", err)
	}
	photoSigner := storage.NewSignedURLSigner(cfg.Sessions.SignedURLSecret, cfg.Sessions.SignedURLTTL)

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "guru-portal-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, validate, logr)
	slotSvc := service.NewSlotService(slotRepo, schoolRepo, bookingRepo, cacheRepo, cfg.Booking.BrowseCacheTTL, validate, logr)
	bookingSvc := service.NewBookingService(bookingRepo, slotRepo, schoolRepo, cacheRepo, userRepo, cfg.Booking.CancellationDeadline, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, schoolRepo, photoStore, photoSigner, cfg.Sessions.MaxPhotoSizeBytes, validate, logr)
	examSvc := service.NewExamService(examRepo, schoolRepo, validate, logr)
	gradingSvc := service.NewGradingService(submissionRepo, gradeRepo, examRepo, photoStore, userRepo, metricsSvc, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	schoolHandler := handler.NewSchoolHandler(schoolSvc)
	slotHandler := handler.NewSlotHandler(slotSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	examHandler := handler.NewExamHandler(examSvc)
	gradingHandler := handler.NewGradingHandler(gradingSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	photoDownloadHandler := handler.NewDownloadHandler(photoSigner, photoStore)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public auth endpoints.
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Authenticated auth endpoints.
	authed := api.Group("/auth")
	authed.Use(middleware.JWT(authSvc))
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/change-password", authHandler.ChangePassword)
	authed.GET("/me", userHandler.Me)

	// Admin: user management.
	users := api.Group("/users")
	users.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.POST("", userHandler.Create)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	// Schools: list/detail for any authenticated user, writes admin only.
	schools := api.Group("/schools")
	schools.Use(middleware.JWT(authSvc))
	schools.GET("", schoolHandler.List)
	schools.GET("/:id", schoolHandler.Get)
	schools.POST("", middleware.RequireRoles(models.RoleAdmin),
		middleware.Audit(userRepo, models.AuditActionSchoolCreate, "school"), schoolHandler.Create)
	schools.PUT("/:id", middleware.RequireRoles(models.RoleAdmin),
		middleware.Audit(userRepo, models.AuditActionSchoolUpdate, "school"), schoolHandler.Update)

	// Admin: slot management.
	slots := api.Group("/slots")
	slots.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	slots.GET("", slotHandler.List)
	slots.GET("/:id", slotHandler.Get)
	slots.POST("", middleware.Audit(userRepo, models.AuditActionSlotCreate, "teaching_slot"), slotHandler.Create)
	slots.PUT("/:id/status", middleware.Audit(userRepo, models.AuditActionSlotClose, "teaching_slot"), slotHandler.Close)

	// Teacher self-service: enrollment, browsing, booking, sessions.
	teacher := api.Group("/teacher")
	teacher.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleTeacher))
	teacher.GET("/schools", schoolHandler.MySchools)
	teacher.POST("/schools", schoolHandler.Enroll)
	teacher.PUT("/schools/:id/primary", schoolHandler.SetPrimary)
	teacher.GET("/slots", slotHandler.Browse)
	teacher.POST("/slots/:id/book", bookingHandler.Book)
	teacher.GET("/bookings", bookingHandler.MyBookings)
	teacher.DELETE("/bookings/:id", bookingHandler.Cancel)
	teacher.GET("/sessions", sessionHandler.MySessions)
	teacher.POST("/sessions/:id/proof", sessionHandler.SubmitProof)

	// Session review and photo access.
	sessions := api.Group("/sessions")
	sessions.Use(middleware.JWT(authSvc))
	sessions.GET("/pending", middleware.RequireRoles(models.RoleAdmin), sessionHandler.PendingReview)
	sessions.PUT("/:id/verify", middleware.RequireRoles(models.RoleAdmin), sessionHandler.Verify)
	sessions.GET("/:id/photos", sessionHandler.ProofURLs)

	// Exams and question banks.
	exams := api.Group("/exams")
	exams.Use(middleware.JWT(authSvc))
	exams.GET("", examHandler.List)
	exams.GET("/:id", examHandler.Get)
	exams.POST("", middleware.RequireRoles(models.RoleTeacher), examHandler.Create)
	exams.PUT("/:id", middleware.RequireRoles(models.RoleTeacher), examHandler.Update)
	exams.PUT("/:id/status", middleware.RequireRoles(models.RoleTeacher), examHandler.UpdateStatus)
	exams.GET("/:id/questions", examHandler.Questions)
	exams.POST("/:id/questions", middleware.RequireRoles(models.RoleTeacher), examHandler.AddQuestion)
	exams.POST("/:id/submissions", middleware.RequireRoles(models.RoleStudent), gradingHandler.Submit)
	exams.GET("/:id/submissions", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradingHandler.ListSubmissions)
	exams.GET("/:id/results", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradingHandler.Results)

	questions := api.Group("/questions")
	questions.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleTeacher))
	questions.PUT("/:id", examHandler.UpdateQuestion)
	questions.DELETE("/:id", examHandler.DeleteQuestion)

	// Submissions: grading pipeline callbacks and manual grading.
	submissions := api.Group("/submissions")
	submissions.Use(middleware.JWT(authSvc))
	submissions.POST("/:id/ocr", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradingHandler.StartOCR)
	submissions.POST("/:id/ocr-result", middleware.RequireRoles(models.RoleAdmin), gradingHandler.HandleOCRResult)
	submissions.POST("/:id/ai-grades", middleware.RequireRoles(models.RoleAdmin), gradingHandler.HandleAIGrades)
	submissions.GET("/:id/sheet", middleware.RequireRoles(models.RoleTeacher), gradingHandler.Sheet)
	submissions.PUT("/:id/grades", middleware.RequireRoles(models.RoleTeacher), gradingHandler.SaveGrades)

	// Signed file downloads. Tokens carry their own authorization.
	downloads := api.Group("/downloads")
	downloads.GET("/photos", photoDownloadHandler.Serve)

	// Admin metrics snapshot.
	admin := api.Group("/admin")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/metrics", metricsHandler.Snapshot)

	// Result exports, enabled by config.
	var exportCleanup *time.Ticker
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(gradingSvc, exportStore, exportSigner, cfg.Exports.SignedURLTTL, logr, nil)
		exportHandler := handler.NewExportHandler(exportSvc)
		exportDownloadHandler := handler.NewDownloadHandler(exportSigner, exportStore)

		exams.POST("/:id/export", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), exportHandler.ResultsCSV)
		downloads.GET("/exports", exportDownloadHandler.Serve)

		exportCleanup = time.NewTicker(cfg.Exports.CleanupInterval)
		go func() {
			for range exportCleanup.C {
				exportSvc.Cleanup()
			}
		}()
	}

	// Certificates, enabled by config.
	var certQueue *jobs.Queue
	if cfg.Certificates.Enabled {
		certStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
		}
		certSigner := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
		certSvc := service.NewCertificateService(submissionRepo, examRepo, userRepo, schoolRepo, certStore, nil, certSigner, logr)
		certQueue = jobs.NewQueue("certificates", func(ctx context.Context, job jobs.Job) error {
			start := time.Now()
			err := certSvc.HandleJob(ctx, job)
			metricsSvc.ObserveJob(job.Type, err, time.Since(start))
			return err
		}, jobs.QueueConfig{
			Workers:    cfg.Certificates.WorkerConcurrency,
			MaxRetries: cfg.Certificates.WorkerRetries,
			Logger:     logr,
		})
		certSvc.BindQueue(certQueue)
		certQueue.Start(context.Background())

		certHandler := handler.NewCertificateHandler(certSvc)
		certDownloadHandler := handler.NewDownloadHandler(certSigner, certStore)

		submissions.POST("/:id/certificate", certHandler.Request)
		submissions.GET("/:id/certificate", certHandler.Get)
		downloads.GET("/certificates", certDownloadHandler.Serve)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	err = r.Run(addr)

	if exportCleanup != nil {
		exportCleanup.Stop()
	}
	if certQueue != nil {
		certQueue.Stop()
	}
	if err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
