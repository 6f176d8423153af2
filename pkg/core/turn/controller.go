package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrControllerStopped is returned by Post after Run has returned.
var ErrControllerStopped = errors.New("turn: controller stopped")

// Capture error code reported when the engine refuses to start.
const captureErrorStartFailed = "start_failed"

const defaultOpenTimeout = 10 * time.Second

// Config configures a Controller.
type Config struct {
	Capture  CaptureEngine
	Playback PlaybackEngine
	Channel  Channel

	Scheduler Scheduler
	Sink      EventSink
	Logger    *slog.Logger

	Timing Timing
	Voice  PlaybackConfig

	// OpenTimeout bounds Channel.Open. Default: 10s.
	OpenTimeout time.Duration
}

// Controller runs the turn-taking machine on one goroutine and executes its
// commands against the configured engines.
type Controller struct {
	capture   CaptureEngine
	playback  PlaybackEngine
	channel   Channel
	scheduler Scheduler
	sink      EventSink
	logger    *slog.Logger
	machine   Machine
	voice     PlaybackConfig
	openTO    time.Duration

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	snap   Snapshot
	timers map[Timer]struct{}
}

// NewController validates cfg and returns a Controller in the Idle state.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Capture == nil {
		return nil, errors.New("turn: capture engine is required")
	}
	if cfg.Playback == nil {
		return nil, errors.New("turn: playback engine is required")
	}
	if cfg.Channel == nil {
		return nil, errors.New("turn: channel is required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = realScheduler{}
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Voice.Rate == 0 {
		cfg.Voice = DefaultPlaybackConfig()
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	return &Controller{
		capture:   cfg.Capture,
		playback:  cfg.Playback,
		channel:   cfg.Channel,
		scheduler: cfg.Scheduler,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		machine:   Machine{Timing: cfg.Timing},
		voice:     cfg.Voice,
		openTO:    cfg.OpenTimeout,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		timers:    make(map[Timer]struct{}),
	}, nil
}

// Snapshot returns the current controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Post queues ev for the controller goroutine.
func (c *Controller) Post(ev Event) error {
	select {
	case <-c.done:
		return ErrControllerStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrControllerStopped
	}
}

// StartSession posts a [StartSessionEvent].
func (c *Controller) StartSession() error { return c.Post(StartSessionEvent{}) }

// EndSession posts an [EndSessionEvent].
func (c *Controller) EndSession() error { return c.Post(EndSessionEvent{}) }

// Interrupt posts an [InterruptEvent].
func (c *Controller) Interrupt() error { return c.Post(InterruptEvent{}) }

// Toggle starts a session when idle and ends it otherwise.
func (c *Controller) Toggle() error {
	if c.Snapshot().State == StateIdle {
		return c.StartSession()
	}
	return c.EndSession()
}

// Run processes events until ctx is done. On return the session is torn down
// as if EndSession had been posted.
func (c *Controller) Run(ctx context.Context) error {
	defer c.shutdown()

	for {
		var ev Event
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev = <-c.events:
		case ev = <-c.capture.Events():
		case ev = <-c.playback.Events():
		case ev = <-c.channel.Events():
		}
		if ev == nil {
			continue
		}
		c.handle(ctx, ev)
	}
}

func (c *Controller) handle(ctx context.Context, ev Event) {
	c.mu.Lock()
	prev := c.snap
	next, cmds := c.machine.Transition(prev, ev)
	c.snap = next
	c.mu.Unlock()

	c.logger.Debug("turn event",
		"event", ev.EventType(),
		"from", prev.State.String(),
		"to", next.State.String(),
		"commands", len(cmds),
	)
	switch e := ev.(type) {
	case ConnectionEstablishedEvent:
		c.logger.Info("relay connected", "message", e.Message)
	case UnknownMessageEvent:
		c.logger.Warn("unknown relay message type", "type", e.Type)
	case MalformedMessageEvent:
		c.logger.Warn("malformed relay message", "error", e.Err)
	case ChannelClosedEvent:
		if e.Err != nil {
			c.logger.Warn("relay channel closed", "error", e.Err)
		}
	}

	if prev.State != next.State {
		c.sink.OnStateChange(prev.State, next.State)
	}
	for _, cmd := range cmds {
		c.execute(ctx, cmd)
	}
}

func (c *Controller) execute(ctx context.Context, cmd Command) {
	switch cmd := cmd.(type) {
	case OpenChannel:
		openCtx, cancel := context.WithTimeout(ctx, c.openTO)
		err := c.channel.Open(openCtx)
		cancel()
		if err != nil {
			c.enqueue(ChannelClosedEvent{Err: err})
			return
		}
		c.enqueue(ChannelOpenedEvent{})
	case CloseChannel:
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("close relay channel", "error", err)
		}
	case SendTurn:
		if err := c.channel.Send(ctx, cmd.Turn, cmd.Text); err != nil {
			c.enqueue(TurnFailedEvent{Turn: cmd.Turn, Message: err.Error()})
		}
	case StartCapture:
		if err := c.capture.Start(ctx); err != nil {
			c.logger.Warn("start capture", "error", err)
			c.enqueue(CaptureErrorEvent{Code: captureErrorStartFailed})
		}
	case StopCapture:
		if err := c.capture.Stop(); err != nil {
			c.logger.Warn("stop capture", "error", err)
		}
	case StartPlayback:
		if err := c.playback.Speak(ctx, cmd.Text, c.voice); err != nil {
			c.enqueue(PlaybackErrorEvent{Message: err.Error()})
		}
	case CancelPlayback:
		if err := c.playback.Cancel(); err != nil {
			c.logger.Warn("cancel playback", "error", err)
		}
	case Schedule:
		c.schedule(cmd)
	case Status:
		c.sink.OnStatus(cmd)
	case Hint:
		c.sink.OnHint(cmd)
	default:
		c.logger.Warn("unhandled turn command", "command", cmd.CommandType())
	}
}

// enqueue is used from the controller goroutine itself; it must never block
// the loop on a full queue.
func (c *Controller) enqueue(ev Event) {
	select {
	case c.events <- ev:
	default:
		go func() { _ = c.Post(ev) }()
	}
}

func (c *Controller) schedule(cmd Schedule) {
	var timer Timer
	c.mu.Lock()
	defer c.mu.Unlock()
	timer = c.scheduler.AfterFunc(cmd.After, func() {
		c.mu.Lock()
		delete(c.timers, timer)
		c.mu.Unlock()
		_ = c.Post(DeferredEvent{Generation: cmd.Generation, Command: cmd.Command})
	})
	c.timers[timer] = struct{}{}
}

func (c *Controller) shutdown() {
	close(c.done)

	c.mu.Lock()
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[Timer]struct{})
	prev := c.snap
	next, cmds := c.machine.Transition(prev, EndSessionEvent{})
	c.snap = next
	c.mu.Unlock()

	for _, cmd := range cmds {
		switch cmd.(type) {
		case StopCapture, CancelPlayback, CloseChannel:
			c.execute(context.Background(), cmd)
		}
	}
}
