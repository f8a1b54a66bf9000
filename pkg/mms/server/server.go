// Package server assembles the HTTP router from the feature packages.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/mms/pkg/mms/access"
	"github.com/mikepea/mms/pkg/mms/accounts"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/companies"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/machines"
	"github.com/mikepea/mms/pkg/mms/mail"
	"github.com/mikepea/mms/pkg/mms/metrics"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/tokens"
	"github.com/mikepea/mms/pkg/mms/users"
	"gorm.io/gorm"
)

// Deps are the collaborators the router is built from
type Deps struct {
	DB       *gorm.DB
	Mail     mail.Sender
	Sessions auth.RevocationStore // defaults to the database store
	Logger   *slog.Logger

	JWTSecret  string
	SessionTTL time.Duration
	// BaseURL overrides the request-derived URL in mailed links
	BaseURL            string
	FallbackAdminEmail string

	TokenOptions []tokens.Option
}

// Server is the wired application
type Server struct {
	Router   *gin.Engine
	Accounts *accounts.Service
	Tokens   *auth.TokenManager
	Sessions auth.RevocationStore
}

// New wires every service and registers all routes
func New(d Deps) *Server {
	logger := logging.OrDefault(d.Logger)
	db := d.DB
	sessions := d.Sessions
	if sessions == nil {
		sessions = auth.NewGormRevocationStore(db)
	}
	if d.Mail == nil {
		d.Mail = mail.NewLogSender(logger)
	}

	userStore := users.NewStore(db)
	authTokens := auth.NewTokenManager(d.JWTSecret, d.SessionTTL)

	lcOpts := append([]tokens.Option{tokens.WithLogger(logger)}, d.TokenOptions...)
	verify := tokens.NewLifecycle(db, tokens.EmailVerificationPolicy(), tokens.NewEmailVerificationStore(db), userStore, d.Mail, lcOpts...)
	change := tokens.NewLifecycle(db, tokens.ChangePasswordPolicy(), tokens.NewChangePasswordStore(db), userStore, d.Mail, lcOpts...)
	forgot := tokens.NewLifecycle(db, tokens.ForgotPasswordPolicy(), tokens.NewForgotPasswordStore(db), userStore, d.Mail, lcOpts...)
	dispatcher := tokens.NewDispatcher(userStore, verify, change, forgot, d.Mail, logger)

	evaluator := access.NewEvaluator(db, userStore)
	companySvc := companies.NewService(db, userStore, evaluator, d.FallbackAdminEmail, logger)
	machineSvc := machines.NewService(db, evaluator, companySvc, logger)
	accountSvc := accounts.NewService(db, userStore, dispatcher, []*tokens.Lifecycle{verify, change, forgot}, logger)

	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(tokens.APIPrefix)
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "mms",
			})
		})

		// Auth routes (public login, protected logout and me)
		auth.NewHandler(userStore, authTokens, sessions, logger).RegisterRoutes(api.Group("/auth"))

		// Token flows register their own public and protected groups
		tokens.NewHandler(dispatcher, authTokens, sessions, d.BaseURL, logger).RegisterRoutes(api)

		accountsHandler := accounts.NewHandler(accountSvc, d.BaseURL, logger)
		accountsHandler.RegisterPublicRoutes(api)

		protected := api.Group("", auth.AuthMiddleware(authTokens, sessions))
		accountsHandler.RegisterRoutes(protected)
		companies.NewHandler(companySvc, evaluator, userStore, logger).RegisterRoutes(protected)
		machinesHandler := machines.NewHandler(machineSvc, userStore, logger)
		machinesHandler.RegisterRoutes(protected)

		// Admin routes (admin role required)
		adminGroup := protected.Group("/admin", auth.RequireRole(userStore, models.RoleAdmin))
		accountsHandler.RegisterAdminRoutes(adminGroup)
		machinesHandler.RegisterAdminRoutes(adminGroup)
	}

	return &Server{
		Router:   r,
		Accounts: accountSvc,
		Tokens:   authTokens,
		Sessions: sessions,
	}
}

// Purger drops revocation entries that no longer matter
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// RunSessionPurge purges expired revocations every interval until ctx ends
func RunSessionPurge(ctx context.Context, p Purger, interval time.Duration, logger *slog.Logger) {
	logger = logging.OrDefault(logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				logger.Warn("session purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Debug("purged revoked sessions", slog.Int64("count", n))
			}
		}
	}
}
