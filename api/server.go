// Package api - Thin HTTP layer over the SDA calculation engine
// The API is ONLY responsible for: request decoding, engine orchestration, response serialization.
// The API NEVER performs pricing logic.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sda-calculator/core/engine"
	"sda-calculator/db"
	"sda-calculator/internal/errors"
)

// ServiceName is reported by GET /
const ServiceName = "SDA Calculator API"

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = 3 * time.Second
)

// Config holds HTTP server configuration
type Config struct {
	// Version is reported by / and /version
	Version string

	// Addr to listen on
	Addr string

	// CORSOrigins allowed to call the API
	CORSOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Version:         "dev",
		Addr:            ":8000",
		CORSOrigins:     []string{"*"},
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the API server
type Server struct {
	config    Config
	router    chi.Router
	engine    *engine.Engine
	snapshots *engine.SnapshotHolder
	store     db.PricingStore
	validate  *validator.Validate
	metrics   *Metrics
	logger    *zap.Logger
}

// NewServer creates an API server. store may be nil, in which case the
// health and admin endpoints report the database as unavailable.
func NewServer(config Config, calc *engine.Engine, snapshots *engine.SnapshotHolder, store db.PricingStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"*"}
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	s := &Server{
		config:    config,
		engine:    calc,
		snapshots: snapshots,
		store:     store,
		validate:  newValidator(),
		metrics:   NewMetrics(),
		logger:    logger,
	}

	s.registerRoutes()
	return s
}

// registerRoutes registers middleware and all API routes
func (s *Server) registerRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/version", s.handleVersion)
	r.Get("/admin/db-status", s.handleDBStatus)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/sda", func(r chi.Router) {
			r.Post("/calculate", s.handleCalculate)
			r.Get("/options", s.handleOptions)
			r.Get("/building-types", s.handleBuildingTypes)
			r.Get("/regions", s.handleRegions)
		})

		r.Get("/admin/db-status", s.handleDBStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, errors.TypeNotFound, "Not Found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, errors.TypeInput, "Method Not Allowed", http.StatusMethodNotAllowed)
	})

	s.router = r
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, ServiceInfo{Service: ServiceName, Status: "healthy", Version: s.config.Version}, http.StatusOK)
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errors.TypeStorage, "Database unavailable: no store configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.writeError(w, errors.TypeStorage, fmt.Sprintf("Database unavailable: %v", err), http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, HealthResponse{Status: "healthy", Database: "connected"}, http.StatusOK)
}

// handleCalculate handles POST /api/v1/sda/calculate
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	// Step 1: Decode
	var req CalculateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.metrics.ObserveCalculation("rejected")
		s.writeError(w, errors.TypeInput, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
		return
	}

	// Step 2: Shape checks
	if err := s.validate.Struct(&req); err != nil {
		s.metrics.ObserveCalculation("rejected")
		fields := validationFields(err)
		e := errors.New(errors.TypeInput, fields[0].Message)
		e.Fields = fields
		s.writeDomainError(w, r, e)
		return
	}

	// Step 3: Engine (NO PRICING LOGIC HERE)
	breakdown, err := s.engine.Calculate(r.Context(), req.toEngine())
	if err != nil {
		s.metrics.ObserveCalculation(outcome(err))
		s.writeDomainError(w, r, err)
		return
	}

	s.metrics.ObserveCalculation("ok")
	s.writeJSON(w, breakdown, http.StatusOK)
}

// handleOptions handles GET /api/v1/sda/options
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := s.engine.Options(q.Get("stock_type"), q.Get("building_type"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, opts, http.StatusOK)
}

// handleBuildingTypes handles GET /api/v1/sda/building-types
func (s *Server) handleBuildingTypes(w http.ResponseWriter, r *http.Request) {
	buildings, err := s.engine.BuildingTypes(r.URL.Query().Get("stock_type"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, buildings, http.StatusOK)
}

// handleRegions handles GET /api/v1/sda/regions
func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.engine.Regions()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, regions, http.StatusOK)
}

// handleDBStatus handles GET /api/v1/admin/db-status and GET /admin/db-status
func (s *Server) handleDBStatus(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, errors.TypeStorage, "Database unavailable: no store configured", http.StatusServiceUnavailable)
		return
	}

	status, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.writeJSON(w, DBStatusResponse{
		Initialized: status.Initialized,
		Stats:       status.Tables,
		Snapshot:    s.snapshotInfo(),
	}, http.StatusOK)
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{Version: s.config.Version}
	if info := s.snapshotInfo(); info != nil {
		resp.SnapshotID = info.ID
	}
	s.writeJSON(w, resp, http.StatusOK)
}

func (s *Server) snapshotInfo() *SnapshotInfo {
	if s.snapshots == nil {
		return nil
	}
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return nil
	}
	return &SnapshotInfo{
		ID:       string(snap.ID),
		Source:   snap.Source.String(),
		LoadedAt: s.snapshots.LoadedAt().Format(time.RFC3339),
		Stats:    snap.Stats(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, errType errors.Type, message string, status int) {
	s.writeJSON(w, ErrorResponse{Detail: message, Type: errType}, status)
}

// outcome labels a failed calculation for metrics
func outcome(err error) string {
	if e, ok := errors.As(err); ok {
		switch e.Type {
		case errors.TypeInput, errors.TypeValidation:
			return "rejected"
		case errors.TypeNotFound:
			return "not_found"
		case errors.TypeIntegrity:
			return "integrity"
		}
	}
	return "error"
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.config.Addr))
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(errors.TypeInternal, "http server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.TypeInternal, "graceful shutdown failed", err)
	}
	return nil
}
