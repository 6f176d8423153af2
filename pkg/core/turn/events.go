package turn

// Event is the interface for everything fed into the controller: engine
// callbacks, channel messages and user actions.
type Event interface {
	// EventType returns the event type string used in logs.
	EventType() string
}

// StartSessionEvent is the user asking to start a conversation.
type StartSessionEvent struct{}

func (e StartSessionEvent) EventType() string { return "session.start" }

// EndSessionEvent is the user asking to end the conversation.
type EndSessionEvent struct{}

func (e EndSessionEvent) EventType() string { return "session.end" }

// InterruptEvent is an explicit user interrupt of the assistant's speech.
type InterruptEvent struct{}

func (e InterruptEvent) EventType() string { return "interrupt" }

// ChannelOpenedEvent is emitted when the channel to the relay is connected.
type ChannelOpenedEvent struct{}

func (e ChannelOpenedEvent) EventType() string { return "channel.opened" }

// ConnectionEstablishedEvent carries the relay's handshake acknowledgement.
type ConnectionEstablishedEvent struct {
	Message string
}

func (e ConnectionEstablishedEvent) EventType() string { return "channel.established" }

// ChannelClosedEvent is emitted when the channel closes or fails.
type ChannelClosedEvent struct {
	Err error
}

func (e ChannelClosedEvent) EventType() string { return "channel.closed" }

// AnswerEvent is the relay's answer to a turn. Turn is the number from
// [SendTurn] echoed by the relay, or zero when the relay did not echo one.
type AnswerEvent struct {
	Turn uint64
	Text string
}

func (e AnswerEvent) EventType() string { return "turn.answer" }

// TurnFailedEvent is the relay reporting that a turn failed. Turn follows
// the same rules as in [AnswerEvent]; zero also covers errors not tied to a
// turn, such as a shutdown notice.
type TurnFailedEvent struct {
	Turn    uint64
	Message string
}

func (e TurnFailedEvent) EventType() string { return "turn.failed" }

// UnknownMessageEvent is a channel message of a type the controller does not
// understand. It is logged and otherwise ignored.
type UnknownMessageEvent struct {
	Type string
}

func (e UnknownMessageEvent) EventType() string { return "channel.unknown" }

// MalformedMessageEvent is a channel payload that could not be parsed.
type MalformedMessageEvent struct {
	Err error
}

func (e MalformedMessageEvent) EventType() string { return "channel.malformed" }

// CaptureStartedEvent is emitted by the capture engine once it is running.
type CaptureStartedEvent struct{}

func (e CaptureStartedEvent) EventType() string { return "capture.started" }

// CaptureEndedEvent is emitted when the capture engine stops, whether it was
// told to or stopped on its own.
type CaptureEndedEvent struct{}

func (e CaptureEndedEvent) EventType() string { return "capture.ended" }

// CaptureErrorAborted is the capture error code for a deliberate stop.
const CaptureErrorAborted = "aborted"

// CaptureErrorEvent carries a capture engine error code.
type CaptureErrorEvent struct {
	Code string
}

func (e CaptureErrorEvent) EventType() string { return "capture.error" }

// TranscriptEvent is a recognition result from the capture engine.
type TranscriptEvent struct {
	Text    string
	IsFinal bool
}

func (e TranscriptEvent) EventType() string {
	if e.IsFinal {
		return "transcript.final"
	}
	return "transcript.interim"
}

// PlaybackStartedEvent is emitted when the playback engine starts speaking.
type PlaybackStartedEvent struct{}

func (e PlaybackStartedEvent) EventType() string { return "playback.started" }

// PlaybackFinishedEvent is emitted on natural completion of playback.
type PlaybackFinishedEvent struct{}

func (e PlaybackFinishedEvent) EventType() string { return "playback.finished" }

// PlaybackErrorEvent carries a playback engine failure.
type PlaybackErrorEvent struct {
	Message string
}

func (e PlaybackErrorEvent) EventType() string { return "playback.error" }

// DeferredEvent is delivered when a [Schedule] command's delay elapses.
type DeferredEvent struct {
	Generation uint64
	Command    Command
}

func (e DeferredEvent) EventType() string { return "deferred" }
