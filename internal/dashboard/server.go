// Package dashboard serves the latest evaluation results and bankroll
// state over a small JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/engine"
	"github.com/eddiefleurent/wheelhouse/internal/models"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	session   *engine.Session
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// ReportsResponse wraps the cached reports with the evaluation timestamp
// so clients can tell stale data from fresh.
type ReportsResponse struct {
	Reports     []engine.PositionReport `json:"reports"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// BankrollResponse combines the live ledger state with realized stats.
type BankrollResponse struct {
	State models.BankrollState    `json:"state"`
	Stats models.PerformanceStats `json:"stats"`
}

func NewServer(cfg Config, session *engine.Session, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		session:   session,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/reports", s.handleGetReports)
	s.router.Get("/api/reports/{symbol}", s.handleGetReport)
	s.router.Get("/api/bankroll", s.handleGetBankroll)
	s.router.Get("/api/stats", s.handleGetStats)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleGetReports(w http.ResponseWriter, _ *http.Request) {
	reports, generatedAt := s.session.Reports()
	s.writeJSON(w, ReportsResponse{Reports: reports, GeneratedAt: generatedAt})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	reports, _ := s.session.Reports()
	for _, report := range reports {
		if strings.EqualFold(report.Position.Symbol, symbol) {
			s.writeJSON(w, report)
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleGetBankroll(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, BankrollResponse{
		State: s.session.BankrollState(),
		Stats: s.session.PerformanceStats(),
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.session.PerformanceStats())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
