package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "medicare/docs"
	"medicare/internal/config"
	"medicare/internal/handlers"
	"medicare/internal/logger"
	"medicare/internal/metrics"
	"medicare/internal/middleware"
	"medicare/internal/pdf"
	"medicare/internal/repositories"
	"medicare/internal/routes"
	"medicare/internal/services"
)

const rateLimitMessage = "Too many OTP requests, please try again later."

// Deps is everything the HTTP layer needs.
type Deps struct {
	Accounts repositories.AccountRepository
	Patients repositories.PatientRepository
	OTPStore repositories.OTPStore
	Limiter  middleware.Limiter
	Mailer   services.EmailService
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Server is the assembled application.
type Server struct {
	Router *gin.Engine
	OTP    *services.OTPService
}

// NewServer builds services, handlers and the gin engine from deps.
func NewServer(cfg *config.Config, d Deps) *Server {
	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	otpService := services.NewOTPService(d.OTPStore, d.Accounts, d.Mailer, tokens,
		services.OTPConfig{TTL: cfg.Auth.OTPTTL, MaxAttempts: cfg.Auth.MaxAttempts},
		d.Metrics, d.Log)
	patientService := services.NewPatientService(d.Patients, d.Metrics, d.Log)
	reportService := services.NewReportService(patientService,
		pdf.NewDocumentGenerator(cfg.Reports.ClinicName, cfg.Reports.FontPath), d.Log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Log, d.Metrics))
	router.Use(corsMiddleware(cfg.Server.AllowOrigins))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	var otpLimit gin.HandlerFunc
	if d.Limiter != nil {
		otpLimit = middleware.RateLimit(d.Limiter, rateLimitMessage, d.Log)
	}
	routes.SetupRoutes(router, routes.Handlers{
		Auth:     handlers.NewAuthHandler(otpService, d.Log),
		Patient:  handlers.NewPatientHandler(patientService, d.Log),
		Report:   handlers.NewReportHandler(reportService, d.Log),
		Tokens:   tokens,
		OTPLimit: otpLimit,
	})

	return &Server{Router: router, OTP: otpService}
}

func Run() {
	cfg := config.LoadConfig()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "medicare")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Auth.JWTSecret == "" || cfg.Auth.JWTSecret == "change-me" {
		log.Warn("[app] auth.jwt_secret is not set; use JWT_SECRET in production")
	}

	deps := Deps{
		Metrics: metrics.New(),
		Log:     log,
		Mailer: services.NewEmailService(services.EmailConfig{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUser:     cfg.Email.SMTPUser,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromEmail:    cfg.Email.FromEmail,
			FromName:     cfg.Email.FromName,
			DryRun:       cfg.Email.DryRun,
		}, log),
	}

	// === DB ===
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatal("[app] open database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("[app] close database", zap.Error(err))
			}
		}()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			log.Fatal("[app] ping database", zap.Error(err))
		}
		cancel()
		deps.Accounts = repositories.NewAccountRepository(db)
		deps.Patients = repositories.NewPatientRepository(db)
	} else {
		log.Warn("[app] database.url is empty; records are kept in memory and lost on restart")
		deps.Accounts = repositories.NewMemoryAccountRepository()
		deps.Patients = repositories.NewMemoryPatientRepository()
	}

	// === Redis (optional) ===
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Fatal("[app] ping redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
		deps.OTPStore = repositories.NewRedisOTPStore(rdb)
		deps.Limiter = middleware.NewRedisLimiter(rdb, "medicare:ratelimit:otp:", cfg.Auth.RateLimitCount, cfg.Auth.RateLimitWindow)
		log.Info("[app] using redis for otp codes and rate limits", zap.String("addr", cfg.Redis.Addr))
	} else {
		deps.OTPStore = repositories.NewMemoryOTPStore()
		deps.Limiter = middleware.NewMemoryLimiter(cfg.Auth.RateLimitCount, cfg.Auth.RateLimitWindow)
	}

	srv := NewServer(cfg, deps)

	scheduler, err := startSweepCron(srv.OTP, cfg.Auth.SweepInterval, log)
	if err != nil {
		log.Fatal("[app] start sweep cron", zap.Error(err))
	}
	defer scheduler.Stop()

	// === Run ===
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("[app] listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("[app] http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[app] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("[app] graceful shutdown", zap.Error(err))
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition", "Retry-After", middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
