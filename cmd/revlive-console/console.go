package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vango-go/revlive/pkg/core/turn"
)

// errQuit ends the program without reporting a failure.
var errQuit = errors.New("quit")

const helpText = `Type a sentence and press enter to talk to Rev.
  ~text       show text as an interim transcript
  /start      start the chat
  /stop       end the chat
  /toggle     start or end the chat
  /interrupt  stop Rev mid-answer (typing also interrupts)
  /status     show the controller state
  /help       show this help
  /quit       exit`

type controller interface {
	StartSession() error
	EndSession() error
	Interrupt() error
	Toggle() error
	Snapshot() turn.Snapshot
}

type transcriptFeeder interface {
	Feed(text string, final bool)
}

// console maps stdin lines to controller actions and transcripts.
type console struct {
	ctrl    controller
	capture transcriptFeeder
	out     io.Writer
}

// run reads lines until in is exhausted, ctx is done or the user quits.
func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return errQuit
		case line := <-lines:
			if err := c.dispatch(line); err != nil {
				return err
			}
		}
	}
}

func (c *console) dispatch(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var err error
	switch {
	case line == "/quit" || line == "/exit":
		return errQuit
	case line == "/start":
		err = c.ctrl.StartSession()
	case line == "/stop":
		err = c.ctrl.EndSession()
	case line == "/toggle":
		err = c.ctrl.Toggle()
	case line == "/interrupt":
		err = c.ctrl.Interrupt()
	case line == "/status":
		snap := c.ctrl.Snapshot()
		fmt.Fprintf(c.out, "state=%s capture=%s playback=%s\n", snap.State, snap.Capture, snap.Playback)
	case line == "/help":
		fmt.Fprintln(c.out, helpText)
	case strings.HasPrefix(line, "/"):
		fmt.Fprintf(c.out, "unknown command %q, try /help\n", line)
	case strings.HasPrefix(line, "~"):
		c.capture.Feed(strings.TrimPrefix(line, "~"), false)
	default:
		c.capture.Feed(line, true)
	}
	if errors.Is(err, turn.ErrControllerStopped) {
		return errQuit
	}
	return err
}

// consoleSink prints controller output.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *consoleSink) OnStatus(st turn.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Kind == turn.StatusError {
		fmt.Fprintf(s.out, "! %s\n", st.Message)
		return
	}
	fmt.Fprintf(s.out, "* %s\n", st.Message)
}

func (s *consoleSink) OnHint(h turn.Hint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "  ... %s\n", h.Text)
}

func (s *consoleSink) OnStateChange(from, to turn.State) {}
