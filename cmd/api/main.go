package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/trustteams/trustteams-api/api/swagger"
	"github.com/trustteams/trustteams-api/internal/handler"
	"github.com/trustteams/trustteams-api/internal/mailer"
	"github.com/trustteams/trustteams-api/internal/middleware"
	"github.com/trustteams/trustteams-api/internal/notify"
	"github.com/trustteams/trustteams-api/internal/repository"
	"github.com/trustteams/trustteams-api/internal/service"
	"github.com/trustteams/trustteams-api/pkg/config"
	"github.com/trustteams/trustteams-api/pkg/database"
	"github.com/trustteams/trustteams-api/pkg/logger"
	corsmiddleware "github.com/trustteams/trustteams-api/pkg/middleware/cors"
	reqidmiddleware "github.com/trustteams/trustteams-api/pkg/middleware/requestid"
)

// @title TrustTeams API
// @version 1.0.0
// @description Opportunities, applications, and account approval workflows
// @BasePath /api
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	mail, err := mailer.NewSMTPMailer(cfg.SMTP, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init mailer", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broadcaster := notify.NewBroadcaster(cfg.Notify, cfg.FrontendBaseURL, mail, logr)
	broadcaster.Start(ctx)
	defer broadcaster.Stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	universityRepo := repository.NewUniversityRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	opportunityRepo := repository.NewOpportunityRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	metricsSvc := service.NewMetricsService()
	accountSvc := service.NewAccountService(userRepo, registrationRepo, universityRepo, mail, validate, logr, cfg.FrontendBaseURL)
	opportunitySvc := service.NewOpportunityService(opportunityRepo, userRepo, broadcaster, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, opportunityRepo, userRepo, mail, validate, logr)
	universitySvc := service.NewUniversityService(universityRepo, userRepo, registrationRepo, validate, logr)
	academicSvc := service.NewAcademicService(userRepo, opportunityRepo, logr)
	studentSvc := service.NewStudentService(profileRepo, userRepo, logr)
	icmSvc := service.NewICMService(userRepo, opportunityRepo, applicationRepo, profileRepo, logr)

	handlers := handler.Handlers{
		Auth:          handler.NewAuthHandler(accountSvc),
		Opportunities: handler.NewOpportunityHandler(opportunitySvc),
		Applications:  handler.NewApplicationHandler(applicationSvc),
		Universities:  handler.NewUniversityHandler(universitySvc),
		Academic:      handler.NewAcademicHandler(academicSvc, opportunitySvc),
		Students:      handler.NewStudentHandler(studentSvc),
		ICM:           handler.NewICMHandler(icmSvc),
		Metrics:       handler.NewMetricsHandler(metricsSvc),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", handlers.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", handlers.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, userRepo)

	scheduler := startAutoClose(ctx, cfg.AutoClose, opportunitySvc, logr)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	if err := serve(ctx, cfg, r, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// startAutoClose schedules the opportunity expiry sweep when enabled.
func startAutoClose(ctx context.Context, cfg config.AutoCloseConfig, opportunities *service.OpportunityService, logr *zap.Logger) *cron.Cron {
	if !cfg.Enabled {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Schedule, func() {
		closed, err := opportunities.CloseExpired(ctx)
		if err != nil {
			logr.Sugar().Errorw("auto-close sweep failed", "error", err)
			return
		}
		if closed > 0 {
			logr.Sugar().Infow("auto-close sweep", "closed", closed)
		}
	})
	if err != nil {
		logr.Sugar().Errorw("invalid auto-close schedule", "schedule", cfg.Schedule, "error", err)
		return nil
	}

	c.Start()
	logr.Sugar().Infow("auto-close job scheduled", "schedule", cfg.Schedule)
	return c
}

// serve binds the listener, walking up from the configured port when it is
// taken, and shuts down gracefully on SIGINT/SIGTERM.
func serve(ctx context.Context, cfg *config.Config, r *gin.Engine, logr *zap.Logger) error {
	attempts := cfg.PortRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		ln   net.Listener
		port int
		err  error
	)
	for i := 0; i < attempts; i++ {
		port = cfg.Port + i
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			break
		}
		logr.Sugar().Warnw("port unavailable, trying next", "port", port, "error", err)
	}
	if ln == nil {
		return fmt.Errorf("no free port in range %d-%d: %w", cfg.Port, cfg.Port+attempts-1, err)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logr.Sugar().Infow("server started", "port", port, "env", cfg.Env)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
