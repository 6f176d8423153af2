package turn

import "time"

// Command is an instruction from the machine to an engine, the channel, the
// scheduler or the user interface.
type Command interface {
	CommandType() string
}

// OpenChannel connects the channel to the relay.
type OpenChannel struct{}

func (c OpenChannel) CommandType() string { return "channel.open" }

// CloseChannel closes the channel to the relay.
type CloseChannel struct{}

func (c CloseChannel) CommandType() string { return "channel.close" }

// SendTurn sends one user turn to the relay. Turn numbers the turn within
// the controller so replies to superseded turns can be told apart.
type SendTurn struct {
	Turn uint64
	Text string
}

func (c SendTurn) CommandType() string { return "channel.send_turn" }

// StartCapture starts the capture engine.
type StartCapture struct{}

func (c StartCapture) CommandType() string { return "capture.start" }

// StopCapture stops the capture engine.
type StopCapture struct{}

func (c StopCapture) CommandType() string { return "capture.stop" }

// StartPlayback speaks text through the playback engine.
type StartPlayback struct {
	Text string
}

func (c StartPlayback) CommandType() string { return "playback.start" }

// CancelPlayback stops the current utterance and discards anything queued.
type CancelPlayback struct{}

func (c CancelPlayback) CommandType() string { return "playback.cancel" }

// Schedule delivers Command back to the machine as a [DeferredEvent] after
// the given delay.
type Schedule struct {
	After      time.Duration
	Generation uint64
	Command    Command
}

func (c Schedule) CommandType() string { return "schedule" }

// StatusKind classifies user-visible status lines.
type StatusKind string

const (
	StatusInfo  StatusKind = "info"
	StatusError StatusKind = "error"
)

// Status is a user-visible status line.
type Status struct {
	Kind    StatusKind
	Message string
}

func (c Status) CommandType() string { return "ui.status" }

// Hint shows an interim transcript to the user. It has no other effect.
type Hint struct {
	Text string
}

func (c Hint) CommandType() string { return "ui.hint" }
