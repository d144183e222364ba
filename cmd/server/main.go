// Copyright 2026 The Shiplog Authors
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
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shiplog/shiplog/internal/audit"
	"github.com/shiplog/shiplog/internal/config"
	"github.com/shiplog/shiplog/internal/controlplane"
	"github.com/shiplog/shiplog/internal/domain"
	"github.com/shiplog/shiplog/internal/edge"
	"github.com/shiplog/shiplog/internal/observability/logger"
	"github.com/shiplog/shiplog/internal/observability/metrics"
	"github.com/shiplog/shiplog/internal/observability/tracing"
	"github.com/shiplog/shiplog/internal/store/postgres"
	"github.com/shiplog/shiplog/internal/tenant"
	transportHTTP "github.com/shiplog/shiplog/internal/transport/http"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting shiplog")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories and helpers
	tenantRepo := postgres.NewTenantRepository(db)
	auditLogger := audit.NewSlogLogger()

	// Initialize services
	tenantService := tenant.NewService(tenantRepo, auditLogger)

	registrar, err := controlplane.New(controlplane.Config{
		APIURL:    cfg.ControlPlane.APIURL,
		Token:     cfg.ControlPlane.Token,
		ProjectID: cfg.ControlPlane.ProjectID,
		TeamID:    cfg.ControlPlane.TeamID,
		Timeout:   cfg.ControlPlane.Timeout,
	})
	if err != nil {
		slog.Error("failed to initialize control plane client", logger.Error(err))
		os.Exit(1)
	}

	checker := domain.NewChecker(domain.CheckerConfig{
		EdgeCNAMETarget: cfg.Platform.EdgeCNAMETarget,
		EdgeIPs:         cfg.Platform.EdgeIPs,
		ProbeTimeout:    cfg.Verification.ProbeTimeout,
		CheckTimeout:    cfg.Verification.CheckTimeout,
	})

	domainManager, err := domain.NewManager(tenantRepo, registrar, checker, auditLogger, meter, domain.ManagerConfig{
		BaseDomain:      cfg.Platform.BaseDomain,
		TokenSecret:     cfg.Platform.TokenSecret,
		EdgeCNAMETarget: cfg.Platform.EdgeCNAMETarget,
		EdgeIPs:         cfg.Platform.EdgeIPs,
	})
	if err != nil {
		slog.Error("failed to initialize domain lifecycle manager", logger.Error(err))
		os.Exit(1)
	}

	// Re-check pending domains in the background until they verify.
	poller := domain.NewPoller(domainManager, tenantRepo, cfg.Verification.PollInterval)
	poller.Start(ctx)
	defer poller.Stop()

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		tenantService,
		domainManager,
		auditLogger,
		transportHTTP.AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			Issuer:    cfg.Auth.Issuer,
		},
	)

	// Create router and wrap it with the edge dispatcher so every request
	// is classified by Host before it reaches the app.
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		TenantPagePrefix: cfg.Platform.TenantPagePrefix,
	})

	resolver := tenant.NewResolver(cfg.Platform.BaseDomain)
	edgeRouter, err := edge.New(edge.Config{
		TenantPagePrefix: cfg.Platform.TenantPagePrefix,
		BackendOrigin:    cfg.Platform.APIBackendOrigin,
	}, resolver, router)
	if err != nil {
		slog.Error("failed to initialize edge router", logger.Error(err))
		os.Exit(1)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      edgeRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	poller.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("apply initial schema: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}
