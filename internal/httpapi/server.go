package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/shopchat/internal/assistant"
	"github.com/ent0n29/shopchat/internal/chatlog"
	"github.com/ent0n29/shopchat/internal/config"
	"github.com/ent0n29/shopchat/internal/logging"
	"github.com/ent0n29/shopchat/internal/observability"
)

const (
	serviceName    = "Shopping Chat Agent"
	serviceVersion = "1.0.0"
)

// Assistant is the conversation surface the HTTP layer drives.
type Assistant interface {
	Respond(ctx context.Context, req assistant.Request) (assistant.Reply, error)
	SearchProducts(ctx context.Context, query string) string
	ClearThread(ctx context.Context, threadID string) (int, error)
	ThreadDebug(ctx context.Context, threadID string, limit int) (assistant.ThreadDebug, error)
	CompletionProvider() string
	SearchProvider() string
}

type Server struct {
	cfg            config.Config
	assistant      Assistant
	chatLog        *chatlog.Buffer
	metrics        *observability.Metrics
	metricsHandler http.Handler
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	now            func() time.Time
}

func New(cfg config.Config, a Assistant, chatLog *chatlog.Buffer, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if chatLog == nil {
		chatLog = chatlog.New(0)
	}
	return &Server{
		cfg:            cfg,
		assistant:      a,
		chatLog:        chatLog,
		metrics:        metrics,
		metricsHandler: observability.MetricsHandler(),
		logger:         logging.OrDiscard(logger),
		now:            time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Without AllowAnyOrigin only same-origin browser connections are accepted.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// WithMetricsHandler replaces the /metrics handler, e.g. with one bound to a
// test registry.
func (s *Server) WithMetricsHandler(h http.Handler) *Server {
	if h != nil {
		s.metricsHandler = h
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.observeResponses)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metricsHandler.ServeHTTP(w, r)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Post("/", s.handleChat)
		r.Post("/stream", s.handleChatStream)
		r.Get("/ws", s.handleChatWS)
		r.Get("/history", s.handleChatHistory)
		r.Delete("/history", s.handleClearChatLog)
		r.Delete("/history/{thread_id}", s.handleClearThread)
		r.Get("/debug/{thread_id}", s.handleThreadDebug)
		r.Get("/status", s.handleChatStatus)
		r.Get("/perf", s.handlePerfLatency)
		r.Delete("/perf", s.handleResetPerf)
	})

	r.Post("/api/search", s.handleSearch)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Shopping Chat Agent API Server",
		"status":  "running",
		"docs":    "/info",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"name":        "Shopping Chat Agent API",
		"version":     serviceVersion,
		"description": "최저가 검색 챗봇 Agent API",
		"endpoints": map[string]string{
			"root":    "/",
			"health":  "/health",
			"info":    "/info",
			"metrics": "/metrics",
			"chat":    "/chat",
			"search":  "/api/search",
		},
	})
}

// cors mirrors the permissive development policy when AllowAnyOrigin is set.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AllowAnyOrigin {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observeResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.HTTPResponses.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Detail: message, Code: code})
}
