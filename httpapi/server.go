package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	lifehelper "github.com/sengeiou/life-helper-server"
	"github.com/sengeiou/life-helper-server/middleware"
	"github.com/sengeiou/life-helper-server/qrimage"
)

const maxBodyBytes = 4 << 10

// Config wires a [Server].
type Config struct {
	Engine *lifehelper.Engine
	// Images serves the PNGs written by the qrimage providers. Nil disables
	// the image route.
	Images *qrimage.Store
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	// RequestTimeout bounds every request. Zero means 15s.
	RequestTimeout time.Duration
}

// Server is the HTTP front of the engine.
type Server struct {
	engine  *lifehelper.Engine
	images  *qrimage.Store
	metrics http.Handler
	logger  *slog.Logger
	timeout time.Duration
}

// NewServer returns a [Server]. cfg.Engine is required.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{
		engine:  cfg.Engine,
		images:  cfg.Images,
		metrics: cfg.Metrics,
		logger:  logger.With("component", "httpapi"),
		timeout: timeout,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ClientMeta)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.timeout))

	r.Route("/login", func(r chi.Router) {
		r.Post("/qrcode", s.handleIssueTicket)
		r.Post("/qrcode/scan", s.handleScanTicket)
		r.With(middleware.Guard(s.engine)).Post("/qrcode/confirm", s.handleConfirmTicket)
		if s.images != nil {
			r.Get("/qrcode/image/{ticket}", s.handleTicketImage)
		}
		r.Get("/qrcode/{ticket}", s.handlePollTicket)
		r.Post("/weixin", s.handleWeixinLogin)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/healthz", s.handleHealth)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", chimiddleware.GetReqID(r.Context()),
		)
	})
}
