// Package api exposes scans, stored recommendations and alerts over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/scanner"
	"github.com/eddiefleurent/portfolio_scanner/internal/storage"
)

const (
	requestTimeout    = 5 * time.Minute
	readHeaderTimeout = 10 * time.Second
	maxBodyBytes      = 1 << 20
)

// Scanner runs one unified scan.
type Scanner interface {
	Run(ctx context.Context, req config.ScanRequest) *scanner.UnifiedResult
}

type Server struct {
	router  *chi.Mux
	server  *http.Server
	cfg     *config.Config
	storage storage.Interface
	scanner Scanner
	logger  *logrus.Logger
	now     func() time.Time
}

func NewServer(cfg *config.Config, storage storage.Interface, scanner Scanner, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		storage: storage,
		scanner: scanner,
		logger:  logger,
		now:     time.Now,
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/scan", s.handleScan)
		r.Get("/recommendations/{strategy}", s.handleListRecommendations)
		r.Get("/alerts", s.handleListAlerts)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Infof("Starting API server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
	})
}

// handleScan runs a scan described by the request body. An empty body scans
// every account with the configured defaults.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	req, err := s.cfg.DecodeScanRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.scanner.Run(r.Context(), req)
	if result.HasErrors() {
		s.logger.WithField("errors", len(result.Errors)).Warn("Scan finished with errors")
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	strategy := models.Strategy(chi.URLParam(r, "strategy"))
	if !strategy.Valid() {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown strategy %q", strategy))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.storage.ListRecommendations(r.Context(), storage.RecommendationFilter{
		Strategy:  strategy,
		AccountID: r.URL.Query().Get("account_id"),
		Limit:     limit,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list recommendations")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unacked, _ := strconv.ParseBool(r.URL.Query().Get("unacknowledged"))

	alerts, err := s.storage.ListAlerts(r.Context(), storage.AlertFilter{
		AccountID:          r.URL.Query().Get("account_id"),
		Limit:              limit,
		UnacknowledgedOnly: unacked,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list alerts")
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

var errBadLimit = errors.New("limit must be a positive integer")

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
