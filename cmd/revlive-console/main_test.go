package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/revlive/pkg/core/turn"
	"github.com/vango-go/revlive/pkg/gateway/config"
	"github.com/vango-go/revlive/pkg/gateway/generate"
	gatewayserver "github.com/vango-go/revlive/pkg/gateway/server"
)

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.APIKey = "test-key"
	gw := gatewayserver.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), gatewayserver.Dependencies{
		Generator: generate.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
			return "Rev says " + prompt, nil
		}),
	})
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func waitOutput(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, out.String())
}

func waitState(t *testing.T, a *app, want turn.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a.ctrl.Snapshot().State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state=%s, want %s", a.ctrl.Snapshot().State, want)
}

func TestApp_ConversationAgainstRelay(t *testing.T) {
	srv := newRelay(t)
	out := &lockedBuffer{}

	a, err := newApp(options{url: srv.URL, speechScale: 10}, out, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	stdinR, stdinW := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- a.run(context.Background(), stdinR, true) }()

	waitOutput(t, out, "> listening")
	waitState(t, a, turn.StateListening)

	if _, err := io.WriteString(stdinW, "What is the RV400 range\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitOutput(t, out, "Rev: Rev says What is the RV400 range")
	waitState(t, a, turn.StateSpeaking)

	// Typing while Rev speaks barges in and sends a new turn.
	if _, err := io.WriteString(stdinW, "cheaper one\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitOutput(t, out, "[interrupted]")
	waitOutput(t, out, "Rev: Rev says cheaper one")

	if _, err := io.WriteString(stdinW, "/interrupt\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitState(t, a, turn.StateListening)

	if _, err := io.WriteString(stdinW, "/quit\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("app did not stop")
	}
	_ = stdinW.Close()
}

func TestApp_ConnectionFailureReported(t *testing.T) {
	srv := newRelay(t)
	url := srv.URL
	srv.Close()

	out := &lockedBuffer{}
	a, err := newApp(options{url: url, speechScale: 1}, out, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, stdinR, true) }()

	waitOutput(t, out, "! Connection lost")
	waitState(t, a, turn.StateIdle)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("app did not stop")
	}
}

func TestParseOptions(t *testing.T) {
	t.Setenv("REVLIVE_URL", "")

	tests := []struct {
		name    string
		args    []string
		env     string
		wantURL string
		wantErr bool
	}{
		{name: "defaults", wantURL: defaultRelayURL},
		{name: "env", env: "https://rev.example.com", wantURL: "https://rev.example.com"},
		{name: "flag wins", args: []string{"-url", "ws://127.0.0.1:4000"}, env: "https://rev.example.com", wantURL: "ws://127.0.0.1:4000"},
		{name: "bad scale", args: []string{"-speech-scale", "0"}, wantErr: true},
		{name: "extra args", args: []string{"hello"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REVLIVE_URL", tt.env)
			opts, err := parseOptions(tt.args, io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if opts.url != tt.wantURL {
				t.Fatalf("url=%q, want %q", opts.url, tt.wantURL)
			}
			if !opts.autoStart || opts.speechScale != 1 {
				t.Fatalf("opts=%+v", opts)
			}
		})
	}
}

func TestRunConsole_InvalidURL(t *testing.T) {
	t.Chdir(t.TempDir())
	var stderr bytes.Buffer
	code := runConsole(context.Background(), []string{"-url", "ftp://nowhere"}, strings.NewReader(""), io.Discard, &stderr)
	if code != 1 {
		t.Fatalf("code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "not supported") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()
	if _, err := newLogger(io.Discard, "loud"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := newLogger(io.Discard, "debug"); err != nil {
		t.Fatalf("err=%v", err)
	}
}
