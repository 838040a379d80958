// @title Hangar API
// @version 0.1.0
// @description Access control for the flight school and club platform

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name hangar_session

package http

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/identity"
	"github.com/hangar-aero/hangar/internal/observability/metrics"
	"github.com/hangar-aero/hangar/internal/onboarding"
	"github.com/hangar-aero/hangar/internal/policy"
	"github.com/hangar-aero/hangar/internal/session"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	sessionService  *session.Service
	resolver        *session.Resolver
	authzService    *authz.Service
	webhooks        *onboarding.Service
	policy          *policy.Policy
	auditLogger     audit.Logger
	metrics         *metrics.Access
	sessionConfig   SessionConfig
	info            BuildInfo
	dependencies    []Dependency
}

// Services groups the domain services the handlers call.
type Services struct {
	Identity *identity.Service
	Sessions *session.Service
	Resolver *session.Resolver
	Authz    *authz.Service
	Webhooks *onboarding.Service
	Policy   *policy.Policy
	Audit    audit.Logger
	Metrics  *metrics.Access
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName              string
	ImpersonationCookieName string
	CookieDomain            string
	CookiePath              string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// BuildInfo is reported by /version.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// NewHandler creates a new HTTP handler. dependencies are probed by the
// readiness endpoint.
func NewHandler(svc Services, sessionConfig SessionConfig, info BuildInfo, dependencies ...Dependency) *Handler {
	if svc.Metrics == nil {
		svc.Metrics = metrics.NoopAccess()
	}
	return &Handler{
		identityService: svc.Identity,
		sessionService:  svc.Sessions,
		resolver:        svc.Resolver,
		authzService:    svc.Authz,
		webhooks:        svc.Webhooks,
		policy:          svc.Policy,
		auditLogger:     svc.Audit,
		metrics:         svc.Metrics,
		sessionConfig:   sessionConfig,
		info:            info,
		dependencies:    dependencies,
	}
}

// RouterConfig holds transport-level settings.
type RouterConfig struct {
	RequestTimeout time.Duration
	// AllowedOrigins may send cookie-authenticated state changes in
	// addition to the request's own host.
	AllowedOrigins []string
	// AuthPerMinute limits credential endpoints per client IP.
	AuthPerMinute int
	// StaticFS holds the built web client. UI routes 404 when nil.
	StaticFS fs.FS
	// Development relaxes the security headers for plain HTTP.
	Development bool
	// TrustProxy takes the client address from forwarding headers. Without
	// it every client is keyed by its socket address.
	TrustProxy bool
}

// NewRouter creates a new HTTP router. Every request passes the route gate
// before reaching a handler.
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.AuthPerMinute <= 0 {
		cfg.AuthPerMinute = 10
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(SecureHeaders(cfg.Development))
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(h.CSRFMiddleware(cfg.AllowedOrigins))
	r.Use(h.Gate)

	r.Get("/health", h.HealthCheck)
	r.Get("/health/ready", h.Readiness)
	r.Get("/version", h.Version)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.Limit(cfg.AuthPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					respondError(w, http.StatusTooManyRequests, "too many attempts, try again later")
				}),
			))
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/logout", h.Logout)
			r.Post("/password-reset", h.RequestPasswordReset)
			r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
		})

		r.Get("/me", h.GetCurrentUser)
		r.Get("/me/capabilities", h.GetMyCapabilities)
		r.Get("/me/menu", h.GetMyMenu)
		r.Delete("/session/impersonation", h.StopImpersonation)

		r.Post("/webhooks/verification", h.VerificationWebhook)

		// Administration re-reads roles from the store on every request.
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireFreshRoles)

			r.With(h.RequireCapability("admin.roles.view")).Get("/roles", h.ListRoles)
			r.With(h.RequireCapability("admin.roles.view")).Get("/roles/{role}/capabilities", h.GetRoleCapabilities)
			r.With(h.RequireCapability("admin.roles.edit")).Put("/roles/{role}/capabilities", h.SetRoleCapability)

			r.With(h.RequireCapability("admin.users.view")).Get("/users", h.ListUsers)
			r.With(h.RequireCapability("admin.users.view")).Get("/users/{userID}/roles", h.GetUserRoles)
			r.With(h.RequireCapability("admin.roles.edit")).Post("/users/{userID}/roles", h.GrantRole)
			r.With(h.RequireCapability("admin.roles.edit")).Delete("/users/{userID}/roles/{role}", h.RevokeRole)
			r.With(h.RequireCapability("admin.users.edit")).Patch("/users/{userID}/status", h.SetUserStatus)

			r.With(h.RequireCapability("admin.impersonation.start")).Post("/impersonation", h.StartImpersonation)
			r.With(h.RequireCapability("admin.policy.view")).Get("/policy", h.GetPolicy)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusNotFound, "not found")
		})
	})

	if cfg.StaticFS != nil {
		r.NotFound(SPAHandler{StaticFS: cfg.StaticFS}.ServeHTTP)
	}

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  StatusHealthy,
		Service: h.info.Service,
	})
}

// Version reports the build
// @Summary Version
// @Tags System
// @Produce json
// @Success 200 {object} BuildInfo
// @Router /version [get]
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.info)
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// requestError maps a decodeJSON failure to a client message.
func requestError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid field: " + verrs[0].Field()
	}
	return "invalid request body"
}

// Helper functions
func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: true,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: true,
		SameSite: h.sessionConfig.CookieSameSite,
		MaxAge:   -1,
	})
}

// errorCodes gives every error status a stable machine-readable code.
var errorCodes = map[int]string{
	http.StatusBadRequest:            "invalid_request",
	http.StatusUnauthorized:          "unauthenticated",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not_found",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "too_large",
	http.StatusLocked:                "locked",
	http.StatusTooManyRequests:       "rate_limited",
	http.StatusInternalServerError:   "internal",
	http.StatusServiceUnavailable:    "unavailable",
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		code = "error"
	}
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
