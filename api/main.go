package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/config"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/elasticsearch"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/logger"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/subscribers"
	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/timeline"
)

type subscriberStore interface {
	Add(ctx context.Context, sub subscribers.Subscriber) (bool, error)
}

type milestoneSearcher interface {
	SearchMilestones(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type timelineLoader interface {
	Load() (*timeline.Timeline, error)
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	subs, err := subscribers.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Error("init subscriber store", slog.Any("err", err))
		os.Exit(1)
	}
	defer subs.Close()
	if err := subs.Migrate(ctx); err != nil {
		log.Error("migrate subscriber store", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{
		log:      log,
		cfg:      cfg,
		es:       esClient,
		subs:     subs,
		timeline: timeline.NewStore(cfg.EventsPath),
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	es       milestoneSearcher
	subs     subscriberStore
	timeline timelineLoader
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(allowOrigin)

	r.Get("/health", s.handleHealth)
	r.Get("/milestones", s.handleSearch)
	r.Get("/events", s.handleEvents)
	r.Get("/events.json", s.handleEvents)

	// the signup form posts to the legacy function path
	r.HandleFunc("/api/subscribe", s.handleSubscribe)
	r.HandleFunc("/.netlify/functions/subscribe", s.handleSubscribe)
	return r
}

func allowOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type subscribeRequest struct {
	Email string `json:"email"`
}

type subscribeResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s *server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Warn("decode subscribe request", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to subscribe. Please try again."})
		return
	}
	if req.Email == "" || !subscribers.ValidEmail(req.Email) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Valid email address required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	created, err := s.subs.Add(ctx, subscribers.Subscriber{Email: req.Email, IPAddress: clientIP(r)})
	if err != nil {
		s.log.Error("add subscriber", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to subscribe. Please try again."})
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, subscribeResponse{Message: "Already subscribed", Status: "existing"})
		return
	}

	s.log.Info("subscriber added")
	writeJSON(w, http.StatusOK, subscribeResponse{Message: "Successfully subscribed!", Status: "success"})
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tl, err := s.timeline.Load()
	if err != nil {
		s.log.Error("load timeline", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "timeline unavailable"})
		return
	}

	data, err := timeline.Encode(tl)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.es.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:      strings.TrimSpace(q.Get("q")),
		Keywords:   parseCSV(q.Get("keywords")),
		Importance: strings.ToLower(strings.TrimSpace(q.Get("importance"))),
		Source:     strings.TrimSpace(q.Get("source")),
		From:       clampInt(q.Get("from"), 0, 10_000),
		Size:       clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:       strings.TrimSpace(q.Get("sort")),
	}

	result, err := s.es.SearchMilestones(ctx, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// clientIP returns the first X-Forwarded-For entry, then X-Real-IP, else
// "unknown".
func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
