package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/michaelpento.lv/arbpipeline/scoring"
	"go.uber.org/zap"
)

// Version is reported by / and /health.
const Version = "1.0.0"

// Server is the reference scoring service.
type Server struct {
	model  Predictor
	logger *zap.Logger
	router *mux.Router
	server *http.Server
}

// New creates a scoring server around model. A nil model uses RuleModel.
func New(addr string, model Predictor, logger *zap.Logger) *Server {
	if model == nil {
		model = RuleModel{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{model: model, logger: logger}
	s.setupRouter()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Starting scoring server", zap.String("addr", s.server.Addr), zap.String("model", s.model.Name()))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("scoring server error: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown scoring server: %w", err)
	}
	s.logger.Info("Scoring server stopped")
	return nil
}

func (s *Server) setupRouter() {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/", s.root).Methods(http.MethodGet)
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.HandleFunc("/predict", s.predict).Methods(http.MethodPost)
	router.HandleFunc("/batch_predict", s.batchPredict).Methods(http.MethodPost)

	s.router = router
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "Arbitrage Scoring Server",
		"version": Version,
		"status":  "running",
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"model":   s.model.Name(),
		"version": Version,
	})
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	var req scoring.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	resp := s.score(req)
	s.logger.Debug("Prediction",
		zap.String("opportunity", req.OpportunityID),
		zap.Float64("score", resp.Score),
		zap.Bool("approved", resp.Approved))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) batchPredict(w http.ResponseWriter, r *http.Request) {
	var reqs []scoring.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	results := make([]scoring.PredictResponse, len(reqs))
	for i, req := range reqs {
		results[i] = s.score(req)
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) score(req scoring.PredictRequest) scoring.PredictResponse {
	score, confidence := s.model.Predict(req.Features)
	return scoring.PredictResponse{
		Score:         score,
		Confidence:    confidence,
		Approved:      score >= ApprovalScore,
		OpportunityID: req.OpportunityID,
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.logger.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapper.statusCode),
			zap.Duration("duration", time.Since(start)))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
