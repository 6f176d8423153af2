package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/revlive/pkg/core/turn"
)

// wordsPerSecond is the spoken pace at rate 1.0.
const wordsPerSecond = 2.5

const engineEventBuffer = 16

// lineCapture turns typed lines into recognition results. Typing is always
// possible, so lines are forwarded whether or not capture is running; that is
// what makes a barge-in during playback work from the keyboard. Start and Stop
// only drive the prompt shown to the user.
type lineCapture struct {
	out    io.Writer
	logger *slog.Logger
	events chan turn.Event

	mu        sync.Mutex
	listening bool
}

func newLineCapture(out io.Writer, logger *slog.Logger) *lineCapture {
	return &lineCapture{
		out:    out,
		logger: logger,
		events: make(chan turn.Event, engineEventBuffer),
	}
}

func (c *lineCapture) Events() <-chan turn.Event { return c.events }

func (c *lineCapture) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listening {
		return nil
	}
	c.listening = true
	fmt.Fprintln(c.out, "> listening (type to talk)")
	c.emitLocked(turn.CaptureStartedEvent{})
	return nil
}

func (c *lineCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = false
	return nil
}

// Listening reports whether capture was started and not stopped since.
func (c *lineCapture) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Feed delivers one recognition result.
func (c *lineCapture) Feed(text string, final bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked(turn.TranscriptEvent{Text: text, IsFinal: final})
}

func (c *lineCapture) emitLocked(ev turn.Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("capture event dropped", "event", ev.EventType())
	}
}

// timedPlayback prints the answer and holds the Speaking state for as long
// as reading it aloud would take at the configured rate.
type timedPlayback struct {
	out    io.Writer
	logger *slog.Logger
	events chan turn.Event
	// scale shortens or stretches the simulated duration.
	scale float64

	mu      sync.Mutex
	timer   *time.Timer
	current uint64
}

func newTimedPlayback(out io.Writer, logger *slog.Logger, scale float64) *timedPlayback {
	if scale <= 0 {
		scale = 1
	}
	return &timedPlayback{
		out:    out,
		logger: logger,
		events: make(chan turn.Event, engineEventBuffer),
		scale:  scale,
	}
}

func (p *timedPlayback) Events() <-chan turn.Event { return p.events }

func (p *timedPlayback) Speak(_ context.Context, text string, cfg turn.PlaybackConfig) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("nothing to speak")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.current++
	id := p.current

	fmt.Fprintf(p.out, "Rev: %s\n", text)
	p.emitLocked(turn.PlaybackStartedEvent{})

	p.timer = time.AfterFunc(speechDuration(text, cfg.Rate, p.scale), func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.current != id || p.timer == nil {
			return
		}
		p.timer = nil
		p.emitLocked(turn.PlaybackFinishedEvent{})
	})
	return nil
}

func (p *timedPlayback) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopLocked() {
		fmt.Fprintln(p.out, "  [interrupted]")
	}
	return nil
}

// stopLocked cancels the utterance in progress and reports whether there was one.
func (p *timedPlayback) stopLocked() bool {
	if p.timer == nil {
		return false
	}
	p.timer.Stop()
	p.timer = nil
	p.current++
	return true
}

func (p *timedPlayback) emitLocked(ev turn.Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("playback event dropped", "event", ev.EventType())
	}
}

func speechDuration(text string, rate, scale float64) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(text))
	seconds := float64(words) / (wordsPerSecond * rate)
	d := time.Duration(seconds * scale * float64(time.Second))
	if floor := time.Duration(scale * float64(200*time.Millisecond)); d < floor {
		d = floor
	}
	return d
}

var (
	_ turn.CaptureEngine  = (*lineCapture)(nil)
	_ turn.PlaybackEngine = (*timedPlayback)(nil)
)
