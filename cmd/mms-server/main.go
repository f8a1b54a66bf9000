package main

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

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/config"
	"github.com/mikepea/mms/pkg/mms/database"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/mail"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/server"
	"github.com/mikepea/mms/pkg/mms/tracing"
)

// @title MMS API
// @version 1.0
// @description Machine management for companies: accounts, security tokens, companies and their machines.

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting MMS server", slog.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, logger, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "mms", cfg.Environment)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := database.Connect(cfg.DBDriver, cfg.DBDSN); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	db := database.GetDB()
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed", slog.String("driver", cfg.DBDriver))

	var sender mail.Sender
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(cfg.SMTP, logger)
	} else {
		logger.Warn("SMTP_HOST not set, mail is written to the log")
		sender = mail.NewLogSender(logger)
	}

	var sessions auth.RevocationStore
	if cfg.RedisURL != "" {
		rdb, err := auth.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		defer rdb.Close()
		sessions = auth.NewRedisRevocationStore(rdb)
	} else {
		store := auth.NewGormRevocationStore(db)
		go server.RunSessionPurge(ctx, store, time.Hour, logger)
		sessions = store
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := server.New(server.Deps{
		DB:                 db,
		Mail:               sender,
		Sessions:           sessions,
		Logger:             logger,
		JWTSecret:          cfg.JWTSecret,
		SessionTTL:         cfg.SessionTTL,
		BaseURL:            cfg.BaseURL,
		FallbackAdminEmail: cfg.AdminEmail,
	})

	if err := s.Accounts.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("ensure admin account: %w", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      tracing.WrapHandler(s.Router, "mms"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
