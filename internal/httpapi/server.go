package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context) (*jobs.RunSummary, error)
}

type Server struct {
	runner Runner
	store  jobs.Store

	cronExpr       string
	streamInterval time.Duration
	now            func() time.Time

	uiEnabled   bool
	uiStaticDir string

	router chi.Router
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

// WithCronExpr lets /api/status report the next periodic trigger.
func WithCronExpr(expr string) Option {
	return func(s *Server) {
		s.cronExpr = expr
	}
}

func WithStreamInterval(interval time.Duration) Option {
	return func(s *Server) {
		if interval > 0 {
			s.streamInterval = interval
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func NewServer(runner Runner, store jobs.Store, opts ...Option) *Server {
	s := &Server{
		runner:         runner,
		store:          store,
		streamInterval: time.Second,
		now:            time.Now,
		router:         chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/cron", s.handleCron)
		r.Post("/cron", s.handleCron)
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleRuns)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleJobs)
			r.Get("/stream", s.handleJobStream)
			r.Get("/{id}", s.handleJob)
		})
	})
	r.NotFound(s.handleStatic)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug("%s %s -> %d (%s, request_id=%s)",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// unknown asset paths fall back to the app shell
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
