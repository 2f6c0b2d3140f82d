package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions collects the handlers' dependencies and HTTP settings.
type ServerOptions struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxUploadMB  int64

	Uploads UploadSaver
	Queue   JobQueue
	Events  EventSource
	Health  HealthOptions
	Log     zerolog.Logger
}

// NewRouter builds the HTTP routes. Split from NewServer so tests can drive
// the full router through httptest.
func NewRouter(opts ServerOptions) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", NewHealthHandler(opts.Health).ServeHTTP)

		NewJobsHandler(opts.Queue).Routes(r)
		NewEventsHandler(opts.Events).Routes(r)
		NewConvertHandler().Routes(r)

		r.Group(func(r chi.Router) {
			r.Use(MaxBody(opts.MaxUploadMB << 20))
			NewUploadHandler(opts.Uploads, opts.Queue, opts.Log).Routes(r)
		})
	})

	return r
}

func NewServer(opts ServerOptions) *Server {
	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewRouter(opts),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
