package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-chat-server/internal/config"
	"go-chat-server/internal/database"
	"go-chat-server/internal/handler"
	"go-chat-server/internal/mail"
	"go-chat-server/internal/middleware"
	"go-chat-server/internal/observability"
	"go-chat-server/internal/repository"
	"go-chat-server/internal/router"
	"go-chat-server/internal/service"
	"go-chat-server/internal/websocket"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	slog.Info("database ready")

	tokenService, err := service.NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.RefreshTokenTTL, tokenRepo)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	captchaService := service.NewCaptchaService(cfg.CaptchaTTL)

	var mailer mail.Sender
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	} else {
		mailer = mail.NewLogSender(cfg.FrontendURL)
	}

	authService := service.NewAuthService(userRepo, tokenService, captchaService, mailer,
		cfg.LockoutMaxAttempts, cfg.LockoutDuration, cfg.ResetTokenTTL)
	chatService := service.NewChatService(messageRepo, cfg.ChatHistoryLimit)
	adminService := service.NewAdminService(userRepo, tokenRepo, messageRepo)

	authMiddleware := middleware.NewAuthMiddleware(tokenService, userRepo)
	authHandler := handler.NewAuthHandler(authService, captchaService,
		cfg.IsProduction(), !cfg.IsProduction(), cfg.JWTAccessTTL, cfg.RefreshTokenTTL)
	adminHandler := handler.NewAdminHandler(adminService)

	hub := websocket.NewHub()
	go hub.Run()
	chatGate := websocket.NewGate(hub, tokenService, userRepo, chatService,
		cfg.ChatRatePoints, cfg.ChatRateWindow, cfg.CORSOrigins)

	appRouter := router.New(cfg, db, authMiddleware, authHandler, adminHandler, chatGate)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go captchaService.StartSweepTicker(sweepCtx, time.Minute)
	go tokenService.StartSweepTicker(sweepCtx, time.Hour)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			sweepCancel,
			db.Close,
			observability.FlushSentry,
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
