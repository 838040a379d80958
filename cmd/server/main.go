// Copyright 2026 The Hangar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/config"
	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/observability/logger"
	"github.com/hangar-aero/hangar/internal/observability/metrics"
	"github.com/hangar-aero/hangar/internal/observability/tracing"
	"github.com/hangar-aero/hangar/internal/onboarding"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/rbac"
	"github.com/hangar-aero/hangar/internal/session"
	"github.com/hangar-aero/hangar/internal/store/postgres"
	redisstore "github.com/hangar-aero/hangar/internal/store/redis"
	"github.com/hangar-aero/hangar/internal/token"
	transportHTTP "github.com/hangar-aero/hangar/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting hangar access service", logger.String("version", cfg.Observability.ServiceVersion))

	if err := run(cfg); err != nil {
		slog.Error("server failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Endpoint:       cfg.Observability.OTELEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(ctx)
	}

	// Initialize meter
	accessMetrics := metrics.NoopAccess()
	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	} else if accessMetrics, err = metrics.NewAccess(meter); err != nil {
		slog.Error("failed to create access instruments", logger.Error(err))
		accessMetrics = metrics.NoopAccess()
	}

	// Access policy
	pol, err := loadPolicy(cfg.Policy.File)
	if err != nil {
		return err
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to database")

	dependencies := []transportHTTP.Dependency{{Name: "database", Ping: db.Ping}}

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	authzRepo := postgres.NewAuthzRepository(db)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger(nil)
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	// Initialize services
	identityService := identity.NewService(
		userRepo,
		passwordHasher,
		auditLogger,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	)

	if notifier := resetNotifier(cfg); notifier == nil {
		slog.Warn("no password reset delivery configured, password reset disabled")
	} else if redisClient, err := redisstore.NewClient(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		slog.Warn("redis unavailable, password reset disabled", logger.Error(err))
	} else {
		defer redisClient.Close()
		identityService.EnablePasswordReset(redisstore.NewResetTokenStore(redisClient), notifier, cfg.Security.ResetTokenTTL)
		dependencies = append(dependencies, transportHTTP.Dependency{
			Name:     "redis",
			Optional: true,
			Ping:     func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	authzService := authz.NewService(authzRepo, authzRepo, auditLogger, accessMetrics)

	codec, err := token.NewCodec(cfg.Token.Secret, cfg.Token.Issuer, cfg.Token.Audience)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	sessionService := session.NewService(codec, authzService, auditLogger, cfg.Token.TTL, cfg.Token.ImpersonationTTL)
	resolver := session.NewResolver(codec, session.CookieConfig{
		SessionCookie:       cfg.Session.CookieName,
		ImpersonationCookie: cfg.Session.ImpersonationCookieName,
	}, accessMetrics)

	approved, err := rbac.ParseAll(cfg.Verification.ApprovedRoles)
	if err != nil {
		return fmt.Errorf("invalid approved roles: %w", err)
	}
	webhooks, err := onboarding.NewService(cfg.Verification.WebhookSecret, authzService, approved, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize verification webhook: %w", err)
	}
	if cfg.Verification.WebhookSecret == "" {
		slog.Warn("verification webhook secret not set, webhook disabled")
	}

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Close()

	// Configure SameSite mode
	sameSite := http.SameSiteLaxMode
	switch cfg.Session.CookieSameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		transportHTTP.Services{
			Identity: identityService,
			Sessions: sessionService,
			Resolver: resolver,
			Authz:    authzService,
			Webhooks: webhooks,
			Policy:   pol,
			Audit:    auditLogger,
			Metrics:  accessMetrics,
		},
		transportHTTP.SessionConfig{
			CookieName:              cfg.Session.CookieName,
			ImpersonationCookieName: cfg.Session.ImpersonationCookieName,
			CookieDomain:            cfg.Session.CookieDomain,
			CookiePath:              cfg.Session.CookiePath,
			CookieSecure:            cfg.Session.CookieSecure,
			CookieSameSite:          sameSite,
		},
		transportHTTP.BuildInfo{
			Service: cfg.Observability.ServiceName,
			Version: cfg.Observability.ServiceVersion,
		},
		dependencies...,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthPerMinute:  cfg.RateLimit.AuthPerMinute,
		StaticFS:       staticFS(cfg.Server.StaticDir),
		Development:    !cfg.Session.CookieSecure,
		TrustProxy:     cfg.Server.TrustProxy,
	})

	// Create HTTP server
	addr := cfg.Server.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
	return nil
}

func loadPolicy(file string) (*policy.Policy, error) {
	if file == "" {
		slog.Info("using built-in access policy")
		return policy.Default()
	}
	pol, err := policy.Load(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy %s: %w", file, err)
	}
	slog.Info("loaded access policy", logger.String("file", file))
	return pol, nil
}

// resetNotifier returns how password reset links reach members. Only the
// development log notifier exists; without it password reset stays off.
func resetNotifier(cfg *config.Config) identity.ResetNotifier {
	if !cfg.Security.LogResetLinks {
		return nil
	}
	slog.Warn("password reset links will be written to the log")
	return identity.LogNotifier{BaseURL: "http://" + cfg.Server.Addr()}
}

// staticFS returns the built web client, or nil when dir is missing so UI
// routes answer 404.
func staticFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		slog.Warn("static directory not found, serving API only", logger.String("dir", dir))
		return nil
	}
	return os.DirFS(dir)
}
