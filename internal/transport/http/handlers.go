// @title Shiplog API
// @version 1.0.0
// @description Build-in-public project tracking platform
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shiplog/shiplog/internal/audit"
	"github.com/shiplog/shiplog/internal/domain"
	"github.com/shiplog/shiplog/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenantService *tenant.Service
	domainManager *domain.Manager
	auditLogger   audit.Logger
	authConfig    AuthConfig
}

// AuthConfig holds settings for validating externally issued bearer tokens.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenantService *tenant.Service,
	domainManager *domain.Manager,
	auditLogger audit.Logger,
	authConfig AuthConfig,
) *Handler {
	return &Handler{
		tenantService: tenantService,
		domainManager: domainManager,
		auditLogger:   auditLogger,
		authConfig:    authConfig,
	}
}

// RouterConfig holds routing settings the handler needs beyond its services.
type RouterConfig struct {
	// TenantPagePrefix is where the edge router rewrites tenant-page requests.
	TenantPagePrefix string
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Public tenant pages; the edge router rewrites host-classified
	// requests here with the slug or custom domain as the next segment.
	if cfg.TenantPagePrefix == "" {
		cfg.TenantPagePrefix = "/_sites"
	}
	r.Get(cfg.TenantPagePrefix+"/{ident}", h.TenantPage)
	r.Get(cfg.TenantPagePrefix+"/{ident}/*", h.TenantPage)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/tenants", func(r chi.Router) {
				r.Post("/", h.CreateTenant)
				r.Get("/", h.ListTenants)

				r.Route("/{tenantID}", func(r chi.Router) {
					r.Get("/", h.GetTenant)

					r.Route("/domain", func(r chi.Router) {
						r.Put("/", h.SetCustomDomain)
						r.Delete("/", h.RemoveCustomDomain)
						r.Post("/verify", h.VerifyCustomDomain)
						r.Get("/status", h.CustomDomainStatus)
					})
				})
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "shiplog",
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
