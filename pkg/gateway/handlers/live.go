package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/revlive/pkg/gateway/config"
	"github.com/vango-go/revlive/pkg/gateway/generate"
	"github.com/vango-go/revlive/pkg/gateway/lifecycle"
	"github.com/vango-go/revlive/pkg/gateway/live/session"
	"github.com/vango-go/revlive/pkg/gateway/live/sessions"
	"github.com/vango-go/revlive/pkg/gateway/metrics"
)

// LiveHandler upgrades a request to a live voice-chat session.
type LiveHandler struct {
	Config       config.Config
	Generator    generate.Generator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker

	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(*http.Request) bool
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeErrorJSON(w, r, http.StatusMethodNotAllowed, &httpError{Type: "invalid_request_error", Message: "method not allowed", Code: "method_not_allowed"})
		return
	}
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, r, http.StatusServiceUnavailable, &httpError{Type: "overloaded_error", Message: "server is draining", Code: "draining"})
		return
	}
	if h.Generator == nil {
		writeErrorJSON(w, r, http.StatusInternalServerError, &httpError{Type: "api_error", Message: "generator is not configured"})
		return
	}

	checkOrigin := h.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.HandshakeTimeout,
		CheckOrigin:      checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessionID := "s_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	requestID := requestIDFromContext(r.Context())

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Generator: h.Generator,
		Metrics:   h.Metrics,
		SessionID: sessionID,
		RequestID: requestID,
		Config:    sessionConfig(h.Config),
	})
	if err != nil {
		logger.Error("failed to initialize live session", "request_id", requestID, "error", err)
		return
	}

	unregister := h.LiveSessions.Register(sessionID, sessions.Handle{
		Cancel: s.Cancel,
		Notify: s.Notify,
	})
	defer unregister()

	if err := s.Run(); err != nil {
		logger.Warn("live session ended with error", "session_id", sessionID, "request_id", requestID, "error", err)
	}
}

func sessionConfig(cfg config.Config) session.Config {
	sc := session.Config{
		MaxMessageBytes: cfg.MaxMessageBytes,
		PingInterval:    cfg.WSPingInterval,
		WriteTimeout:    cfg.WSWriteTimeout,
		TurnTimeout:     cfg.GenerateTimeout,
	}
	// A peer that misses two pings in a row is gone.
	if cfg.WSPingInterval > 0 {
		sc.ReadTimeout = 2*cfg.WSPingInterval + cfg.WSWriteTimeout
	}
	return sc
}

// RootHandler serves live sessions and the web client on the same path: a
// WebSocket upgrade goes to Live, everything else to Static.
type RootHandler struct {
	Live   http.Handler
	Static http.Handler
}

func (h RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) && h.Live != nil {
		h.Live.ServeHTTP(w, r)
		return
	}
	if h.Static == nil {
		http.NotFound(w, r)
		return
	}
	h.Static.ServeHTTP(w, r)
}
