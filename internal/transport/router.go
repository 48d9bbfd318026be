package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer  prometheus.Gatherer
	Readiness observability.ReadinessChecks
	Screens   Screens
	// Authenticate overrides the JWT middleware derived from Config.Identity.
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, model.NewBadRequestError(r.Method+" is not allowed on "+r.URL.Path))
	})

	// Global middleware: applied to all routes including health.
	r.Use(RecoverPanics(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(Correlation)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	metricsPath := deps.Config.Observability.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Method(http.MethodGet, metricsPath, observability.Handler(gatherer))

	auth := deps.Authenticate
	if auth == nil && deps.Config.Identity.Enabled {
		auth = JWTAuthenticator(deps.Config.Identity)
	}
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(OperatorContext(deps.Config.Identity))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(AccessLog(logger))
		r.Use(deps.Metrics.MetricsMiddleware)

		r.Route("/ui/screens", func(r chi.Router) {
			r.Post("/{kind}", handleMount(deps.Screens, logger))
			r.Post("/{id}/events", handleEvent(deps.Screens, logger))
			r.Get("/{id}", handleView(deps.Screens))
			r.Delete("/{id}", handleUnmount(deps.Screens, logger))
		})
	})

	return r
}
