package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/univern/academics-api/api/swagger"
	"github.com/univern/academics-api/internal/handler"
	"github.com/univern/academics-api/internal/middleware"
	"github.com/univern/academics-api/internal/models"
	"github.com/univern/academics-api/internal/repository"
	"github.com/univern/academics-api/internal/service"
	"github.com/univern/academics-api/pkg/cache"
	"github.com/univern/academics-api/pkg/config"
	"github.com/univern/academics-api/pkg/database"
	"github.com/univern/academics-api/pkg/jobs"
	"github.com/univern/academics-api/pkg/logger"
	corsmiddleware "github.com/univern/academics-api/pkg/middleware/cors"
	reqidmiddleware "github.com/univern/academics-api/pkg/middleware/requestid"
	"github.com/univern/academics-api/pkg/storage"
)

// @title University Academics API
// @version 1.0.0
// @description Identity, catalog, enrollment, exam and records backend
// @BasePath /api
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

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
	}

	redisClient := cache.NewRedis(cfg.Redis)
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	professorRepo := repository.NewProfessorRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	enrollmentRepo := repository.NewCourseEnrollmentRepository(db)
	examRepo := repository.NewExamRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	libraryRepo := repository.NewLibraryRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, studentRepo, professorRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	professorSvc := service.NewProfessorService(professorRepo, catalogRepo, validate, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, catalogRepo, studentRepo, cacheRepo, validate, logr)
	examSvc := service.NewExamService(examRepo, cacheRepo, validate, logr)
	historySvc := service.NewHistoryService(enrollmentRepo, examRepo, studentRepo, cacheRepo, logr, service.HistoryConfig{
		CacheEnabled: cfg.History.CacheEnabled,
		CacheTTL:     cfg.History.CacheTTL,
	})
	evaluationSvc := service.NewEvaluationService(evaluationRepo, catalogRepo, studentRepo, nil, validate, logr)
	librarySvc := service.NewLibraryService(libraryRepo, studentRepo, service.LibraryConfig{
		LoanDays: cfg.Library.LoanDays,
		MaxLoans: cfg.Library.MaxLoans,
	}, validate, logr)
	metricsSvc := service.NewMetricsService()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	professorHandler := handler.NewProfessorHandler(professorSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	examHandler := handler.NewExamHandler(examSvc, studentSvc)
	historyHandler := handler.NewHistoryHandler(historySvc, studentSvc)
	evaluationHandler := handler.NewEvaluationHandler(evaluationSvc, studentSvc, cfg.Evaluations.ImportMaxBytes)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		session := auth.Group("", middleware.JWT(authSvc))
		session.POST("/logout", authHandler.Logout)
		session.PUT("/password", authHandler.ChangePassword)
		session.GET("/me", authHandler.Profile)
	}

	protected := api.Group("", middleware.JWT(authSvc))

	users := protected.Group("/users", middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", middleware.Audit(userRepo, "UPDATE", "users"), userHandler.Update)
		users.DELETE("/:id", middleware.Audit(userRepo, "DEACTIVATE", "users"), userHandler.Deactivate)
	}

	staff := []models.UserRole{models.RoleAdmin, models.RoleStudentService}

	students := protected.Group("/students")
	{
		students.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleStudentService, models.RoleProfessor), studentHandler.List)
		students.GET("/me/history", middleware.RequireRoles(models.RoleStudent), historyHandler.GetOwn)
		students.GET("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleStudentService, models.RoleProfessor, models.RoleStudent), studentHandler.Get)
		students.PUT("/:id", middleware.RequireRoles(staff...), studentHandler.Update)
		students.PUT("/:id/status", middleware.RequireRoles(staff...), studentHandler.UpdateStatus)
		students.GET("/:id/history", historyHandler.Get)
	}

	professors := protected.Group("/professors")
	{
		professors.GET("", professorHandler.List)
		professors.GET("/:id", professorHandler.Get)
		professors.PUT("/:id", middleware.RequireRoles(staff...), professorHandler.Update)
		professors.GET("/:id/assignments", professorHandler.ListAssignments)
		professors.POST("/:id/assignments", middleware.RequireRoles(models.RoleAdmin), professorHandler.CreateAssignment)
		professors.DELETE("/:id/assignments/:assignmentId", middleware.RequireRoles(models.RoleAdmin), professorHandler.DeleteAssignment)
	}

	faculties := protected.Group("/faculties")
	{
		faculties.GET("", catalogHandler.ListFaculties)
		faculties.GET("/:id", catalogHandler.GetFaculty)
		faculties.POST("", middleware.RequireRoles(models.RoleAdmin), catalogHandler.CreateFaculty)
		faculties.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), catalogHandler.UpdateFaculty)
	}

	programs := protected.Group("/study-programs")
	{
		programs.GET("", catalogHandler.ListStudyPrograms)
		programs.GET("/:id", catalogHandler.GetStudyProgram)
		programs.POST("", middleware.RequireRoles(models.RoleAdmin), catalogHandler.CreateStudyProgram)
		programs.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), catalogHandler.UpdateStudyProgram)
	}

	subjects := protected.Group("/subjects")
	{
		subjects.GET("", catalogHandler.ListSubjects)
		subjects.GET("/:id", catalogHandler.GetSubject)
		subjects.POST("", middleware.RequireRoles(staff...), catalogHandler.CreateSubject)
		subjects.PUT("/:id", middleware.RequireRoles(staff...), catalogHandler.UpdateSubject)
		subjects.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), catalogHandler.DeleteSubject)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleStudentService, models.RoleProfessor), enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", middleware.RequireRoles(staff...), enrollmentHandler.Create)
		enrollments.PUT("/:id/scores", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), enrollmentHandler.UpdateScores)
		enrollments.POST("/:id/complete", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), enrollmentHandler.Complete)
		enrollments.DELETE("/:id", middleware.RequireRoles(staff...), enrollmentHandler.Drop)
	}

	periods := protected.Group("/exam-periods")
	{
		periods.GET("", examHandler.ListPeriods)
		periods.POST("", middleware.RequireRoles(staff...), examHandler.CreatePeriod)
	}

	exams := protected.Group("/exams")
	{
		exams.GET("", examHandler.ListExams)
		exams.GET("/available", middleware.RequireRoles(models.RoleStudent), examHandler.ListAvailable)
		exams.GET("/registrations", middleware.RequireRoles(models.RoleStudent), examHandler.MyRegistrations)
		exams.GET("/:id", examHandler.GetExam)
		exams.POST("", middleware.RequireRoles(staff...), examHandler.CreateExam)
		exams.POST("/:id/register", middleware.RequireRoles(models.RoleStudent), examHandler.Register)
		exams.DELETE("/:id/register", middleware.RequireRoles(models.RoleStudent), examHandler.Cancel)
		exams.GET("/:id/registrations", middleware.RequireRoles(models.RoleAdmin, models.RoleStudentService, models.RoleProfessor), examHandler.ListRegistrations)
		exams.POST("/:id/grades", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), examHandler.Grade)
	}

	evaluations := protected.Group("/evaluations")
	{
		evaluations.GET("", evaluationHandler.List)
		evaluations.GET("/:id", evaluationHandler.Get)
		evaluations.POST("", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), evaluationHandler.Create)
		evaluations.PUT("/:id", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), evaluationHandler.Update)
		evaluations.DELETE("/:id", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), evaluationHandler.Deactivate)
		evaluations.POST("/:id/submissions", middleware.RequireRoles(models.RoleStudent), evaluationHandler.Submit)
		evaluations.GET("/:id/submissions", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), evaluationHandler.ListSubmissions)
		evaluations.PUT("/submissions/:submissionId/grade", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), evaluationHandler.GradeSubmission)
		evaluations.POST("/import", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin), evaluationHandler.ImportXML)
		evaluations.GET("/:id/export/xml", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin, models.RoleStudentService), evaluationHandler.ExportXML)
		evaluations.GET("/:id/export/pdf", middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin, models.RoleStudentService), evaluationHandler.ExportPDF)
	}

	if cfg.Library.Enabled {
		libraryHandler := handler.NewLibraryHandler(librarySvc, studentSvc)
		library := protected.Group("/library")
		{
			library.GET("/books", libraryHandler.ListBooks)
			library.GET("/books/:id", libraryHandler.GetBook)
			library.POST("/books", middleware.RequireRoles(staff...), libraryHandler.CreateBook)
			library.PUT("/books/:id", middleware.RequireRoles(staff...), libraryHandler.UpdateBook)
			library.POST("/books/:id/borrow", middleware.RequireRoles(models.RoleStudent), libraryHandler.Borrow)
			library.POST("/loans/:loanId/return", middleware.RequireRoles(staff...), libraryHandler.Return)
			library.GET("/loans", middleware.RequireRoles(models.RoleStudent), libraryHandler.MyLoans)
			library.GET("/students/:id/loans", middleware.RequireRoles(staff...), libraryHandler.StudentLoans)
		}
	}

	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		urlBase := cfg.APIPrefix + "/reports/download"

		worker := service.NewReportWorker(reportRepo, enrollmentRepo, store, signer, urlBase, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		reportSvc := service.NewReportService(reportRepo, queue, store, signer, urlBase, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		})
		reportSvc.StartCleanup(ctx)

		reportHandler := handler.NewReportHandler(reportSvc)
		api.GET("/reports/download/:token", reportHandler.Download)
		reports := protected.Group("/reports", middleware.RequireRoles(models.RoleAdmin, models.RoleStudentService, models.RoleProfessor))
		{
			reports.POST("", reportHandler.Create)
			reports.GET("", reportHandler.List)
			reports.GET("/:id", reportHandler.Status)
		}
	}

	admin := protected.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/metrics", metricsHandler.Snapshot)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
