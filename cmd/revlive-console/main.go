// Command revlive-console talks to a revlive relay from a terminal. Typed
// lines stand in for speech recognition and answers are printed at reading
// pace, so the turn-taking controller behaves as it does in the browser.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/revlive/internal/dotenv"
	"github.com/vango-go/revlive/pkg/core/turn"
	revlive "github.com/vango-go/revlive/sdk"
)

const defaultRelayURL = "http://localhost:3000"

type options struct {
	url         string
	logLevel    string
	autoStart   bool
	speechScale float64
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("revlive-console", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := options{}
	fs.StringVar(&opts.url, "url", envOr("REVLIVE_URL", defaultRelayURL), "relay URL (http, https, ws or wss)")
	fs.StringVar(&opts.logLevel, "log-level", envOr("REVLIVE_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.autoStart, "start", true, "start the chat immediately")
	fs.Float64Var(&opts.speechScale, "speech-scale", 1, "multiplier for simulated speaking time")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.speechScale <= 0 {
		return options{}, errors.New("-speech-scale must be positive")
	}
	return opts, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           lvl,
		Prefix:          "revlive",
	})
	return slog.New(handler), nil
}

type app struct {
	ctrl    *turn.Controller
	console *console
}

func newApp(opts options, stdout io.Writer, logger *slog.Logger) (*app, error) {
	ch, err := revlive.NewLiveChannel(revlive.ChannelConfig{URL: opts.url, Logger: logger})
	if err != nil {
		return nil, err
	}
	capture := newLineCapture(stdout, logger)
	ctrl, err := turn.NewController(turn.Config{
		Capture:  capture,
		Playback: newTimedPlayback(stdout, logger, opts.speechScale),
		Channel:  ch,
		Sink:     &consoleSink{out: stdout},
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return &app{
		ctrl:    ctrl,
		console: &console{ctrl: ctrl, capture: capture, out: stdout},
	}, nil
}

func (a *app) run(ctx context.Context, stdin io.Reader, autoStart bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.ctrl.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if autoStart {
			if err := a.ctrl.StartSession(); err != nil {
				return err
			}
		}
		return a.console.run(gctx, stdin)
	})

	err := g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func runConsole(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "revlive-console: %v\n", err)
		return 1
	}
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "revlive-console: %v\n", err)
		return 2
	}
	logger, err := newLogger(stderr, opts.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "revlive-console: %v\n", err)
		return 2
	}

	a, err := newApp(opts, stdout, logger)
	if err != nil {
		fmt.Fprintf(stderr, "revlive-console: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Rev relay at %s. Type /help for commands.\n", opts.url)
	if err := a.run(ctx, stdin, opts.autoStart); err != nil {
		fmt.Fprintf(stderr, "revlive-console: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runConsole(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
