package turn

import (
	"context"
	"time"
)

// CaptureEngine is a speech-to-text engine. Start and Stop must not block on
// recognition; results are delivered through Events as [TranscriptEvent],
// [CaptureStartedEvent], [CaptureEndedEvent] and [CaptureErrorEvent].
//
// Start while already running and Stop while stopped are no-ops.
type CaptureEngine interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan Event
}

// PlaybackEngine is a text-to-speech engine. Speak returns once playback has
// begun; completion is reported as [PlaybackFinishedEvent] or
// [PlaybackErrorEvent]. Cancel stops the current utterance synchronously and
// must not produce a PlaybackFinishedEvent for it.
type PlaybackEngine interface {
	Speak(ctx context.Context, text string, cfg PlaybackConfig) error
	Cancel() error
	Events() <-chan Event
}

// Channel is the client end of the persistent connection to the relay.
// Inbound messages arrive on Events as [ConnectionEstablishedEvent],
// [AnswerEvent], [TurnFailedEvent], [UnknownMessageEvent],
// [MalformedMessageEvent] and [ChannelClosedEvent]. Send passes the turn
// number along so replies can carry it back. A channel closed through Close
// must not report a ChannelClosedEvent.
type Channel interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, turn uint64, text string) error
	Close() error
	Events() <-chan Event
}

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// EventSink receives user-facing output from the controller. Calls happen on
// the controller goroutine and must return quickly.
type EventSink interface {
	OnStatus(Status)
	OnHint(Hint)
	OnStateChange(from, to State)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnStatus(Status)              {}
func (NopSink) OnHint(Hint)                  {}
func (NopSink) OnStateChange(from, to State) {}
