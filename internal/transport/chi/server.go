// Package chi exposes the webhook receiver over HTTP: the GitHub webhook
// endpoint plus health and metrics. Change events it accepts are published
// to the queue for the ingestion pipeline.
package chi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/domain"
	"github.com/embedhq/codevec/internal/queue"
	healthuc "github.com/embedhq/codevec/internal/usecase/health"
)

// Directory resolves repositories and git accounts by id.
type Directory interface {
	RepositoryByID(ctx context.Context, id int64) (domain.Repository, error)
	Account(ctx context.Context, id int64) (domain.GitAccount, error)
}

// Publisher queues change events for the ingestion pipeline.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) (string, error)
}

// Server handles webhook deliveries and operational endpoints.
type Server struct {
	directory Directory
	publisher Publisher
	health    *healthuc.Service
	logger    *zap.Logger
}

// NewServer creates the HTTP server for webhook intake.
func NewServer(directory Directory, publisher Publisher, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		directory: directory,
		publisher: publisher,
		health:    health,
		logger:    logger,
	}
}

// Register mounts the server's routes on a chi router.
func (s *Server) Register(r chi.Router) {
	r.Post("/webhooks/github/{repositoryID}", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

type healthResponse struct {
	Status string                          `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, healthResponse{
		Status: string(report.Status),
		Checks: report.Checks,
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
