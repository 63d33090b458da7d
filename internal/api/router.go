package api

import (
	"context"
	"net/http"

	"pmt/internal/metrics"
	"pmt/internal/middleware/ratelimit"
	"pmt/internal/middleware/trace"
	"pmt/internal/services"
)

// RouterConfig carries the dependencies of the HTTP surface.
type RouterConfig struct {
	Store     services.Store
	Records   *services.RecordService
	Entities  *services.EntityService
	JWTSecret string
	Limiter   *ratelimit.Limiter
	// Ready reports backend readiness for /readyz. Nil means always
	// ready.
	Ready func(ctx context.Context) error
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Store: cfg.Store, JWTSecret: cfg.JWTSecret}
	locationsHandler := &LocationsHandler{Entities: cfg.Entities, Records: cfg.Records}
	spheresHandler := &SpheresHandler{Entities: cfg.Entities, Records: cfg.Records}
	recordsHandler := &RecordsHandler{Records: cfg.Records}

	authMW := AuthMiddleware(cfg.JWTSecret)

	// Wraps each route so the matched pattern is visible to the
	// metrics middleware.
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, metrics.Middleware(h))
	}
	protected := func(pattern string, h http.HandlerFunc) {
		handle(pattern, authMW(h))
	}

	// Public: registration, login, health.
	handle("POST /api/v1/auth/register", http.HandlerFunc(authHandler.Register))
	handle("POST /api/v1/auth/login", http.HandlerFunc(authHandler.Login))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(cfg.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	// Locations.
	protected("POST /api/v1/locations", locationsHandler.Create)
	protected("GET /api/v1/locations", locationsHandler.List)
	protected("GET /api/v1/locations/{id}", locationsHandler.Get)
	protected("PUT /api/v1/locations/{id}", locationsHandler.Update)
	protected("DELETE /api/v1/locations/{id}", locationsHandler.Delete)
	protected("POST /api/v1/locations/{id}/share", locationsHandler.Share)
	protected("DELETE /api/v1/locations/{id}/share/{userID}", locationsHandler.Unshare)
	protected("GET /api/v1/locations/{id}/balance", locationsHandler.Balance)

	// Spheres.
	protected("POST /api/v1/spheres", spheresHandler.Create)
	protected("GET /api/v1/spheres", spheresHandler.List)
	protected("GET /api/v1/spheres/{id}", spheresHandler.Get)
	protected("PUT /api/v1/spheres/{id}", spheresHandler.Update)
	protected("DELETE /api/v1/spheres/{id}", spheresHandler.Delete)
	protected("POST /api/v1/spheres/{id}/share", spheresHandler.Share)
	protected("DELETE /api/v1/spheres/{id}/share/{userID}", spheresHandler.Unshare)
	protected("GET /api/v1/spheres/{id}/balance", spheresHandler.Balance)

	// Records and dashboard.
	protected("POST /api/v1/records", recordsHandler.Create)
	protected("GET /api/v1/records", recordsHandler.List)
	protected("GET /api/v1/records/{id}", recordsHandler.Get)
	protected("PUT /api/v1/records/{id}", recordsHandler.Update)
	protected("DELETE /api/v1/records/{id}", recordsHandler.Delete)
	protected("GET /api/v1/dashboard", recordsHandler.Dashboard)

	var handler http.Handler = mux
	if cfg.Limiter != nil {
		handler = cfg.Limiter.Middleware(ExtractClientIP)(handler)
	}
	tracer := trace.NewMiddleware(ExtractClientIP)
	return tracer.Middleware(handler)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleReady(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				jsonError(w, http.StatusServiceUnavailable, "backend not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}
}
