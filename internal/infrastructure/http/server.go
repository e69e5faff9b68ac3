// Package http provides the HTTP server infrastructure: the outermost
// layer, translating JSON requests into usecase calls.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/usecases"
	"github.com/0xcro3dile/faqroute/internal/metrics"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Reloader re-reads the FAQ source and swaps in a new snapshot.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Server is the HTTP server for the routing API.
type Server struct {
	router    *usecases.Router
	retriever *usecases.Retriever
	kb        *usecases.KnowledgeBase
	reloader  Reloader
	counters  *metrics.Counters
	prom      *metrics.Prometheus
	log       logger.ILogger
	addr      string
	topK      int
}

// Deps groups the server's collaborators. Reloader and Prometheus are
// optional.
type Deps struct {
	Router     *usecases.Router
	Retriever  *usecases.Retriever
	KB         *usecases.KnowledgeBase
	Reloader   Reloader
	Counters   *metrics.Counters
	Prometheus *metrics.Prometheus
	Log        logger.ILogger
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, addr string, topK int) *Server {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Server{
		router:    deps.Router,
		retriever: deps.Retriever,
		kb:        deps.KB,
		reloader:  deps.Reloader,
		counters:  deps.Counters,
		prom:      deps.Prometheus,
		log:       deps.Log,
		addr:      addr,
		topK:      topK,
	}
}

// Handler builds the route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/answer", s.handleAnswer)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/admin/rebuild", s.handleRebuild)
	mux.HandleFunc("POST /api/admin/metrics/reset", s.handleMetricsReset)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	var h http.Handler = mux
	if s.prom != nil {
		mux.Handle("GET /metrics", s.prom.Handler())
		h = s.prom.Middleware(h)
	}
	return requestIDMiddleware(s.loggingMiddleware(corsMiddleware(h)))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	s.log.Info("http", "server starting", map[string]interface{}{"addr": s.addr})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type answerRequest struct {
	Query     string           `json:"query"`
	Context   entities.Context `json:"context"`
	Threshold *float64         `json:"threshold,omitempty"`
}

type answerResponse struct {
	RequestID string              `json:"request_id"`
	Decision  entities.Decision   `json:"decision"`
	Answer    string              `json:"answer,omitempty"`
	Source    entities.Source     `json:"source,omitempty"`
	Score     float64             `json:"score"`
	EntryID   string              `json:"entry_id,omitempty"`
	Question  string              `json:"question,omitempty"`
	Category  string              `json:"category,omitempty"`
	Reason    entities.MissReason `json:"reason,omitempty"`
	LatencyMS float64             `json:"latency_ms"`
	Error     string              `json:"error,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, r, http.StatusBadRequest, "query required")
		return
	}
	threshold := s.router.Threshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	out, err := s.router.Answer(r.Context(), req.Query, req.Context, threshold)

	resp := answerResponse{
		RequestID: requestID(r),
		Decision:  out.Decision,
		Answer:    out.Answer,
		Source:    out.Source,
		Score:     out.Score,
		EntryID:   out.EntryID,
		Question:  out.Question,
		Category:  out.Category,
		Reason:    out.Reason,
		LatencyMS: float64(out.Latency.Microseconds()) / 1000,
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, entities.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, entities.ErrTimeout):
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusBadGateway
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

type searchRequest struct {
	Query     string   `json:"query"`
	K         int      `json:"k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, r, http.StatusBadRequest, "query required")
		return
	}
	k := req.K
	if k <= 0 {
		k = s.topK
	}
	threshold := 0.0
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	results, err := s.retriever.Search(r.Context(), req.Query, k, threshold)
	switch {
	case errors.Is(err, entities.ErrInvalidConfig):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	if results == nil {
		results = []entities.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID(r),
		"results":    results,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	store := s.kb.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": s.counters.Snapshot(),
		"index": map[string]interface{}{
			"entries":   store.Len(),
			"dimension": store.Dimension(),
			"encoder":   store.EncoderID(),
		},
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeError(w, r, http.StatusNotImplemented, "rebuild not configured")
		return
	}
	if err := s.reloader.Reload(r.Context()); err != nil {
		s.log.Error("http", "rebuild failed", map[string]interface{}{"error": err.Error(), "request_id": requestID(r)})
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	store := s.kb.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "rebuilt",
		"entries": store.Len(),
	})
}

func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	s.counters.Reset()
	s.log.Warn("http", "metrics reset by operator", map[string]interface{}{"request_id": requestID(r), "remote": r.RemoteAddr})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"entries": s.kb.Current().Len(),
	})
}

// decodeJSON keeps numbers as json.Number so context values render exactly
// as sent (512 stays "512", not "512.0").
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "request_id": requestID(r)})
}
