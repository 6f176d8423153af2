package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/revlive/pkg/core/turn"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) StartSession() error { return f.record("start") }
func (f *fakeController) EndSession() error   { return f.record("end") }
func (f *fakeController) Interrupt() error    { return f.record("interrupt") }
func (f *fakeController) Toggle() error       { return f.record("toggle") }
func (f *fakeController) Snapshot() turn.Snapshot {
	return turn.Snapshot{State: turn.StateSpeaking, Capture: turn.CaptureStopped, Playback: turn.PlaybackSpeaking}
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fed struct {
	text  string
	final bool
}

type fakeFeeder struct {
	mu  sync.Mutex
	got []fed
}

func (f *fakeFeeder) Feed(text string, final bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, fed{text: text, final: final})
}

func TestConsole_Dispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line      string
		wantCalls []string
		wantFed   []fed
		wantOut   string
		wantErr   error
	}{
		{line: "/start", wantCalls: []string{"start"}},
		{line: "/stop", wantCalls: []string{"end"}},
		{line: "/toggle", wantCalls: []string{"toggle"}},
		{line: "/interrupt", wantCalls: []string{"interrupt"}},
		{line: "/status", wantOut: "state=SPEAKING capture=stopped playback=speaking"},
		{line: "/help", wantOut: "/interrupt"},
		{line: "/bogus", wantOut: `unknown command "/bogus"`},
		{line: "/quit", wantErr: errQuit},
		{line: "   ", wantCalls: nil},
		{line: "~what is the", wantFed: []fed{{text: "what is the", final: false}}},
		{line: "  What is the range?  ", wantFed: []fed{{text: "What is the range?", final: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ctrl := &fakeController{}
			feeder := &fakeFeeder{}
			out := &lockedBuffer{}
			c := &console{ctrl: ctrl, capture: feeder, out: out}

			err := c.dispatch(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}
			if got := ctrl.Calls(); strings.Join(got, ",") != strings.Join(tt.wantCalls, ",") {
				t.Fatalf("calls=%v, want %v", got, tt.wantCalls)
			}
			if len(feeder.got) != len(tt.wantFed) {
				t.Fatalf("fed=%v, want %v", feeder.got, tt.wantFed)
			}
			for i := range tt.wantFed {
				if feeder.got[i] != tt.wantFed[i] {
					t.Fatalf("fed[%d]=%v, want %v", i, feeder.got[i], tt.wantFed[i])
				}
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Fatalf("output=%q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestConsole_StoppedControllerQuits(t *testing.T) {
	t.Parallel()
	c := &console{ctrl: &fakeController{err: turn.ErrControllerStopped}, capture: &fakeFeeder{}, out: &lockedBuffer{}}
	if err := c.dispatch("/start"); !errors.Is(err, errQuit) {
		t.Fatalf("err=%v, want errQuit", err)
	}
}

func TestConsole_RunEndsAtEOF(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	feeder := &fakeFeeder{}
	c := &console{ctrl: ctrl, capture: feeder, out: &lockedBuffer{}}

	err := c.run(context.Background(), strings.NewReader("/start\nhello\n"))
	if !errors.Is(err, errQuit) {
		t.Fatalf("err=%v, want errQuit", err)
	}
	if got := ctrl.Calls(); len(got) != 1 || got[0] != "start" {
		t.Fatalf("calls=%v", got)
	}
	if len(feeder.got) != 1 || feeder.got[0].text != "hello" {
		t.Fatalf("fed=%v", feeder.got)
	}
}

type blockingReader struct{ done chan struct{} }

func (r blockingReader) Read([]byte) (int, error) {
	<-r.done
	return 0, errors.New("closed")
}

func TestConsole_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	in := blockingReader{done: make(chan struct{})}
	defer close(in.done)

	c := &console{ctrl: &fakeController{}, capture: &fakeFeeder{}, out: &lockedBuffer{}}
	errCh := make(chan error, 1)
	go func() { errCh <- c.run(ctx, in) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestConsoleSink(t *testing.T) {
	t.Parallel()
	out := &lockedBuffer{}
	s := &consoleSink{out: out}
	s.OnStatus(turn.Status{Kind: turn.StatusInfo, Message: "Thinking..."})
	s.OnStatus(turn.Status{Kind: turn.StatusError, Message: "Error: boom"})
	s.OnHint(turn.Hint{Text: "what is"})

	want := "* Thinking...\n! Error: boom\n  ... what is\n"
	if out.String() != want {
		t.Fatalf("output=%q, want %q", out.String(), want)
	}
}
