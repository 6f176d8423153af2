package turn

import (
	"fmt"
	"strings"
)

// Status lines shown to the user.
const (
	statusConnecting  = "Connecting to Rev..."
	statusConnected   = "Connected! Starting voice recognition..."
	statusThinking    = "Thinking..."
	statusSpeaking    = "Rev is speaking... (you can interrupt anytime)"
	statusListening   = "Listening... Ask me anything else!"
	statusEnded       = "Chat ended. Start the chat to talk with Rev again."
	statusConnLost    = "Connection lost. Start the chat to reconnect."
	statusEmptyAnswer = "Rev had nothing to say. Listening..."
)

// Machine is the turn-taking state machine. The zero value uses
// [DefaultTiming].
type Machine struct {
	Timing Timing
}

// Transition applies ev to s using the default timing.
func Transition(s Snapshot, ev Event) (Snapshot, []Command) {
	return Machine{}.Transition(s, ev)
}

// Transition returns the snapshot after ev and the commands to execute, in
// order. It never blocks and never touches an engine.
func (m Machine) Transition(s Snapshot, ev Event) (Snapshot, []Command) {
	t := m.Timing.withDefaults()
	var cmds []Command

	switch e := ev.(type) {
	case StartSessionEvent:
		if s.State != StateIdle {
			return s, nil
		}
		s = enter(s, StateListening)
		s.Capture = CaptureStopped
		s.Playback = PlaybackIdle
		cmds = append(cmds, OpenChannel{}, Status{Kind: StatusInfo, Message: statusConnecting})

	case ChannelOpenedEvent:
		if s.State == StateIdle {
			return s, nil
		}
		cmds = append(cmds,
			Status{Kind: StatusInfo, Message: statusConnected},
			Schedule{After: t.ConnectDelay, Generation: s.Generation, Command: StartCapture{}},
		)

	case ConnectionEstablishedEvent, UnknownMessageEvent, MalformedMessageEvent,
		CaptureStartedEvent, PlaybackStartedEvent:
		// Observed only.

	case ChannelClosedEvent:
		if s.State == StateIdle {
			return s, nil
		}
		s, cmds = toIdle(s, false)
		cmds = append(cmds, Status{Kind: StatusError, Message: statusConnLost})

	case EndSessionEvent:
		if s.State == StateIdle {
			return s, nil
		}
		s, cmds = toIdle(s, true)
		cmds = append(cmds, Status{Kind: StatusInfo, Message: statusEnded})

	case TranscriptEvent:
		return m.transcript(s, e)

	case AnswerEvent:
		if s.State != StateProcessing || superseded(s, e.Turn) {
			return s, nil
		}
		if strings.TrimSpace(e.Text) == "" {
			s = enter(s, StateListening)
			s, cmds = startCapture(s, cmds)
			cmds = append(cmds, Status{Kind: StatusInfo, Message: statusEmptyAnswer})
			break
		}
		s = enter(s, StateSpeaking)
		s, cmds = stopCapture(s, cmds)
		s.Playback = PlaybackSpeaking
		cmds = append(cmds,
			StartPlayback{Text: e.Text},
			Status{Kind: StatusInfo, Message: statusSpeaking},
		)

	case TurnFailedEvent:
		if superseded(s, e.Turn) {
			return s, nil
		}
		cmds = append(cmds, Status{Kind: StatusError, Message: "Error: " + e.Message})
		if s.State != StateProcessing {
			break
		}
		s = enter(s, StateListening)
		s, cmds = startCapture(s, cmds)

	case PlaybackFinishedEvent:
		s.Playback = PlaybackIdle
		if s.State != StateSpeaking {
			break
		}
		s = enter(s, StateListening)
		cmds = append(cmds,
			Status{Kind: StatusInfo, Message: statusListening},
			Schedule{After: t.ResumeAfterSpeaking, Generation: s.Generation, Command: StartCapture{}},
		)

	case PlaybackErrorEvent:
		s.Playback = PlaybackIdle
		cmds = append(cmds, Status{Kind: StatusError, Message: "Error with speech playback: " + e.Message})
		if s.State != StateSpeaking {
			break
		}
		s = enter(s, StateListening)
		s, cmds = startCapture(s, cmds)

	case InterruptEvent:
		if s.State != StateSpeaking {
			return s, nil
		}
		cmds = append(cmds, CancelPlayback{})
		s.Playback = PlaybackIdle
		s = enter(s, StateListening)
		cmds = append(cmds,
			Status{Kind: StatusInfo, Message: statusListening},
			Schedule{After: t.ResumeAfterInterrupt, Generation: s.Generation, Command: StartCapture{}},
		)

	case CaptureEndedEvent:
		if s.Capture != CaptureListening {
			return s, nil
		}
		s.Capture = CaptureStopped
		if s.State == StateListening || s.State == StateProcessing {
			cmds = append(cmds, Schedule{After: t.RestartCapture, Generation: s.Generation, Command: StartCapture{}})
		}

	case CaptureErrorEvent:
		if e.Code == CaptureErrorAborted || s.State == StateIdle {
			return s, nil
		}
		s, cmds = toIdle(s, true)
		cmds = append(cmds, Status{Kind: StatusError, Message: fmt.Sprintf("Speech recognition error: %s", e.Code)})

	case DeferredEvent:
		if e.Generation != s.Generation {
			return s, nil
		}
		switch e.Command.(type) {
		case StartCapture:
			if s.State == StateListening || s.State == StateProcessing {
				s, cmds = startCapture(s, cmds)
			}
		default:
			cmds = append(cmds, e.Command)
		}
	}

	return s, cmds
}

func (m Machine) transcript(s Snapshot, e TranscriptEvent) (Snapshot, []Command) {
	if s.State == StateIdle {
		return s, nil
	}
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return s, nil
	}
	if !e.IsFinal {
		return s, []Command{Hint{Text: text}}
	}

	var cmds []Command
	if s.State == StateSpeaking {
		cmds = append(cmds, CancelPlayback{})
		s.Playback = PlaybackIdle
	}
	s = enter(s, StateProcessing)
	s.Turn++
	cmds = append(cmds,
		SendTurn{Turn: s.Turn, Text: text},
		Status{Kind: StatusInfo, Message: statusThinking},
	)
	return s, cmds
}

// superseded reports whether a reply numbered turn answers a turn older than
// the newest one sent. Unnumbered replies always apply.
func superseded(s Snapshot, turn uint64) bool {
	return turn != 0 && turn != s.Turn
}

// enter moves s to state, bumping the generation on an actual change.
func enter(s Snapshot, state State) Snapshot {
	if s.State != state {
		s.State = state
		s.Generation++
	}
	return s
}

func toIdle(s Snapshot, closeChannel bool) (Snapshot, []Command) {
	var cmds []Command
	s, cmds = stopCapture(s, cmds)
	if s.Playback == PlaybackSpeaking {
		cmds = append(cmds, CancelPlayback{})
		s.Playback = PlaybackIdle
	}
	if closeChannel {
		cmds = append(cmds, CloseChannel{})
	}
	return enter(s, StateIdle), cmds
}

func startCapture(s Snapshot, cmds []Command) (Snapshot, []Command) {
	if s.Capture == CaptureListening {
		return s, cmds
	}
	s.Capture = CaptureListening
	return s, append(cmds, StartCapture{})
}

func stopCapture(s Snapshot, cmds []Command) (Snapshot, []Command) {
	if s.Capture == CaptureStopped {
		return s, cmds
	}
	s.Capture = CaptureStopped
	return s, append(cmds, StopCapture{})
}
