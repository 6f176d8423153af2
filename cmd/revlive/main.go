package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vango-go/revlive/internal/dotenv"
	"github.com/vango-go/revlive/pkg/gateway/config"
	"github.com/vango-go/revlive/pkg/gateway/generate"
	"github.com/vango-go/revlive/pkg/gateway/lifecycle"
	"github.com/vango-go/revlive/pkg/gateway/live/sessions"
	"github.com/vango-go/revlive/pkg/gateway/metrics"
	"github.com/vango-go/revlive/pkg/gateway/observe"
	gatewayserver "github.com/vango-go/revlive/pkg/gateway/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownNotice = "Server is shutting down"

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	newGenerator func(context.Context, config.Config, *metrics.Metrics) (generate.Generator, error)
	initTracing  func(context.Context, observe.ProviderConfig) (func(context.Context) error, error)
	listen       func(network, addr string) (net.Listener, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig: config.LoadFromEnv,
		newGenerator: func(ctx context.Context, cfg config.Config, m *metrics.Metrics) (generate.Generator, error) {
			return generate.NewGemini(ctx, generate.GeminiConfig{
				APIKey:  cfg.APIKey,
				Model:   cfg.Model,
				BaseURL: cfg.GeminiBaseURL,
				Metrics: m,
			})
		},
		initTracing: observe.InitTracing,
		listen:      net.Listen,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, level *slog.LevelVar, deps serverDeps) error {
	if deps.loadConfig == nil || deps.newGenerator == nil || deps.listen == nil {
		return errors.New("missing server dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level != nil {
		level.Set(cfg.LogLevel)
	}

	if deps.initTracing != nil {
		shutdownTracing, err := deps.initTracing(ctx, observe.ProviderConfig{ServiceName: "revlive", ServiceVersion: version})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(flushCtx)
		}()
	}

	m := metrics.New("revlive")
	gen, err := deps.newGenerator(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}

	lc := &lifecycle.Lifecycle{}
	tracker := sessions.NewTracker()
	gw := gatewayserver.New(cfg, logger, gatewayserver.Dependencies{
		Generator:    gen,
		Metrics:      m,
		Lifecycle:    lc,
		LiveSessions: tracker,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	ln, err := deps.listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	logger.Info("server running", "addr", ln.Addr().String(), "model", cfg.Model, "version", version)

	serveErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	lc.SetDraining(true)
	notified := tracker.NotifyAll(shutdownNotice)
	logger.Info("draining live sessions", "sessions", tracker.IDs(), "notified", notified)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	// Hijacked WebSocket connections are invisible to Shutdown.
	if !tracker.Wait(shutdownCtx) {
		lingering := tracker.IDs()
		canceled := tracker.CancelAll()
		logger.Warn("grace period elapsed; canceling live sessions", "sessions", lingering, "canceled", canceled)
		waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
		tracker.Wait(waitCtx)
		waitCancel()
	}

	if err := <-serveErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "revlive: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, level, deps); err != nil {
		fmt.Fprintf(stderr, "revlive: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
