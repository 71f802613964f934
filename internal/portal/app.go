package portal

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"KBPortal/internal/auth"
	"KBPortal/internal/catalog"
	"KBPortal/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	// Debug exposes internal error detail in 500 responses.
	Debug          bool
	TrustProxy     bool
	RequestTimeout time.Duration
	CORS           cors.Options
}

type Deps struct {
	Auth    *auth.Service
	Tokens  *auth.TokenIssuer
	Catalog *catalog.Service

	WritePolicy auth.Policy
	BatchPolicy auth.Policy

	// LoginLimiter throttles /auth/login per client ip; nil disables it.
	LoginLimiter kit.Limiter

	// Ready lists the backends /readyz must reach.
	Ready map[string]Pinger
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	readyTimeout      = 2 * time.Second
	readyProbeTimeout = 700 * time.Millisecond
)

func NewHandler(deps Deps, httpDeps HTTPDeps) http.Handler {
	if httpDeps.Log == nil {
		httpDeps.Log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.NotFound(kit.NotFound)
	r.MethodNotAllowed(kit.MethodNotAllowed)

	setupMiddleware(r, httpDeps)
	setupMetrics(r, httpDeps)

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps.Ready, httpDeps.Log))

	api := buildAPI(deps, httpDeps)
	r.Group(api)
	r.Route("/api", api)

	return r
}

func buildAPI(deps Deps, httpDeps HTTPDeps) func(chi.Router) {
	guard := auth.NewGuard(deps.Tokens)

	var loginLimit func(http.Handler) http.Handler
	if deps.LoginLimiter != nil {
		loginLimit = kit.RateLimit(deps.LoginLimiter, httpDeps.TrustProxy, httpDeps.Log)
	}

	authSrv := &auth.Server{
		Log:        httpDeps.Log,
		Service:    deps.Auth,
		Guard:      guard,
		LoginLimit: loginLimit,
		Debug:      httpDeps.Debug,
	}
	catalogSrv := &catalog.Server{
		Service:     deps.Catalog,
		Guard:       guard,
		Log:         httpDeps.Log,
		WritePolicy: deps.WritePolicy,
		BatchPolicy: deps.BatchPolicy,
		Debug:       httpDeps.Debug,
	}

	return func(r chi.Router) {
		if httpDeps.RequestTimeout > 0 {
			r.Use(chimw.Timeout(httpDeps.RequestTimeout))
		}
		authSrv.Routes(r)
		catalogSrv.Routes(r)
	}
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer(deps.Log, deps.Debug))
	r.Use(kit.Logging(deps.Log))
	if len(deps.CORS.AllowedOrigins) > 0 {
		r.Use(cors.Handler(deps.CORS))
	}
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.RoutePattern))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func readyz(checks map[string]Pinger, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for name, p := range checks {
			if err := ping(ctx, p); err != nil {
				log.Warn("readyz failed", zap.String("backend", name), zap.Error(err))
				kit.WriteError(w, r, http.StatusServiceUnavailable, name+" not ready", nil)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}

func ping(ctx context.Context, p Pinger) error {
	cctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()
	return p.Ping(cctx)
}
