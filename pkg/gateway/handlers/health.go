package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/revlive/pkg/gateway/config"
	"github.com/vango-go/revlive/pkg/gateway/lifecycle"
	"github.com/vango-go/revlive/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config       config.Config
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool     `json:"ok"`
		Model        string   `json:"model"`
		Draining     bool     `json:"draining"`
		LiveSessions int      `json:"live_sessions"`
		Issues       []string `json:"issues,omitempty"`
	}

	var issues []string
	if err := h.Config.Validate(); err != nil {
		issues = append(issues, err.Error())
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:           ok,
		Model:        h.Config.Model,
		Draining:     draining,
		LiveSessions: h.LiveSessions.Count(),
		Issues:       issues,
	})
}
