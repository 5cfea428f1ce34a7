// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	service "github.com/okian/vidrank/internal/app"
	"github.com/okian/vidrank/internal/domain/matching"
	"github.com/okian/vidrank/internal/domain/model"
	"github.com/okian/vidrank/internal/domain/types"
	"github.com/okian/vidrank/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	Match(ctx context.Context, st matching.Strategy) ([]model.Item, error)
	Submit(ctx context.Context, requestKey string, cs model.ChoiceSet, st matching.Strategy) (service.SubmitResult, error)
	Skip(ctx context.Context, requestKey string, cs model.ChoiceSet, st matching.Strategy) (service.SubmitResult, error)
	Undo(ctx context.Context, recordID string) (model.ChoiceSet, []model.Item, error)
	Rankings(ctx context.Context) ([]types.RankedItem, error)
	Record(ctx context.Context, id string) (service.RecordDetail, error)
	GetStats(ctx context.Context) (service.Stats, error)
}

// IdempotencyHeader carries the client key that makes submit and skip safe to retry.
const IdempotencyHeader = "Idempotency-Key"

// DefaultAllowedOrigins matches the development frontend.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Server wires HTTP routes for the business API.
type Server struct {
	deps    Dependencies
	version string
	origins []string
	logger  logger.Logger
	extra   []func(chi.Router)

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the value reported by GET /version.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRoutes mounts additional routes, e.g. API documentation.
func WithRoutes(fn func(chi.Router)) Option {
	return func(s *Server) {
		if fn != nil {
			s.extra = append(s.extra, fn)
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:    deps,
		version: "dev",
		origins: DefaultAllowedOrigins,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	s.healthHandler = NewHealthHandler(s.version)
	s.statsHandler = NewStatsHandler(deps, s.logger)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", IdempotencyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", MetricsMiddleware(s.healthHandler.HandleStatus, "status"))
	r.Get("/version", MetricsMiddleware(s.healthHandler.HandleVersion, "version"))
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))

	r.Post("/videos", MetricsMiddleware(s.handleVideos, "videos"))
	r.Post("/submit", MetricsMiddleware(s.handleSubmit, "submit"))
	r.Post("/skip", MetricsMiddleware(s.handleSkip, "skip"))
	r.Post("/undo", MetricsMiddleware(s.handleUndo, "undo"))

	r.Get("/rankings", MetricsMiddleware(s.handleRankings, "rankings"))
	r.Get("/records/{id}", MetricsMiddleware(s.handleRecord, "records"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	for _, fn := range s.extra {
		fn(r)
	}
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrRecordNotFound), errors.Is(err, service.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrInvalidChoices),
		errors.Is(err, service.ErrInvalidSettings),
		errors.Is(err, service.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		s.logger.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// decode reads a JSON body into v and validates it.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}
