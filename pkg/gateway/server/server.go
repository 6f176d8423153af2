package server

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/vango-go/revlive/pkg/gateway/config"
	"github.com/vango-go/revlive/pkg/gateway/generate"
	"github.com/vango-go/revlive/pkg/gateway/handlers"
	"github.com/vango-go/revlive/pkg/gateway/lifecycle"
	"github.com/vango-go/revlive/pkg/gateway/live/sessions"
	"github.com/vango-go/revlive/pkg/gateway/metrics"
	"github.com/vango-go/revlive/pkg/gateway/mw"
	"github.com/vango-go/revlive/web"
)

// Dependencies are the collaborators shared with the process that owns the
// server. Nil fields get fresh zero-value instances.
type Dependencies struct {
	Generator    generate.Generator
	Metrics      *metrics.Metrics
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Assets       fs.FS
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Dependencies
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.LiveSessions == nil {
		deps.LiveSessions = sessions.NewTracker()
	}
	if deps.Assets == nil {
		deps.Assets = web.FS()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:       s.cfg,
		Lifecycle:    s.deps.Lifecycle,
		LiveSessions: s.deps.LiveSessions,
	})
	s.mux.Handle("/metrics", s.deps.Metrics.Handler())

	s.mux.Handle("/", handlers.RootHandler{
		Live: handlers.LiveHandler{
			Config:       s.cfg,
			Generator:    s.deps.Generator,
			Metrics:      s.deps.Metrics,
			Logger:       s.logger,
			Lifecycle:    s.deps.Lifecycle,
			LiveSessions: s.deps.LiveSessions,
		},
		Static: handlers.NewStaticHandler(s.deps.Assets, s.cfg.StaticDir),
	})
}

func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.deps.Lifecycle }

func (s *Server) LiveSessions() *sessions.Tracker { return s.deps.LiveSessions }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
