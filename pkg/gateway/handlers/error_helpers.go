package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vango-go/revlive/pkg/gateway/mw"
)

// httpError is the JSON body for plain HTTP failures. Live sessions report
// errors over the socket instead.
type httpError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error *httpError `json:"error"`
}

func writeErrorJSON(w http.ResponseWriter, r *http.Request, status int, e *httpError) {
	if e != nil && e.RequestID == "" {
		e.RequestID = requestIDFromContext(r.Context())
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: e})
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := mw.RequestIDFrom(ctx); ok {
		return id
	}
	return ""
}
