package turn

import "time"

// State is the conversation state owned by the controller.
type State int

const (
	// StateIdle is the state before a session starts and after it ends.
	StateIdle State = iota
	// StateListening is when capture is (or is about to be) running.
	StateListening
	// StateProcessing is when a turn has been sent and no answer has arrived yet.
	StateProcessing
	// StateSpeaking is when the answer is being played back.
	StateSpeaking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// CaptureState tracks whether the capture engine has been told to run.
type CaptureState int

const (
	CaptureStopped CaptureState = iota
	CaptureListening
)

func (s CaptureState) String() string {
	if s == CaptureListening {
		return "listening"
	}
	return "stopped"
}

// PlaybackState tracks whether the playback engine is speaking.
type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackSpeaking
)

func (s PlaybackState) String() string {
	if s == PlaybackSpeaking {
		return "speaking"
	}
	return "idle"
}

// Snapshot is the complete controller state. Transition never mutates its
// input; it returns a new Snapshot.
type Snapshot struct {
	State    State
	Capture  CaptureState
	Playback PlaybackState

	// Generation increases on every State change. Deferred commands carry the
	// generation they were scheduled in and are dropped if it has moved on.
	Generation uint64

	// Turn is the number of the newest turn sent. Replies carrying an older
	// number answer a superseded turn and are dropped.
	Turn uint64
}

// Timing holds the deferred-action delays used by the machine.
type Timing struct {
	// ConnectDelay is how long after the channel opens capture starts.
	// Default: 500ms.
	ConnectDelay time.Duration

	// ResumeAfterSpeaking is the grace delay between natural playback
	// completion and restarting capture, so the trailing audio of the output
	// device is not transcribed. Default: 500ms.
	ResumeAfterSpeaking time.Duration

	// ResumeAfterInterrupt is the shorter delay used after an explicit
	// interrupt. Default: 100ms.
	ResumeAfterInterrupt time.Duration

	// RestartCapture is the delay before restarting a capture engine that
	// stopped on its own (for example on silence). Default: 100ms.
	RestartCapture time.Duration
}

// DefaultTiming returns the delays used by the reference browser client.
func DefaultTiming() Timing {
	return Timing{
		ConnectDelay:         500 * time.Millisecond,
		ResumeAfterSpeaking:  500 * time.Millisecond,
		ResumeAfterInterrupt: 100 * time.Millisecond,
		RestartCapture:       100 * time.Millisecond,
	}
}

func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	if t.ConnectDelay <= 0 {
		t.ConnectDelay = def.ConnectDelay
	}
	if t.ResumeAfterSpeaking <= 0 {
		t.ResumeAfterSpeaking = def.ResumeAfterSpeaking
	}
	if t.ResumeAfterInterrupt <= 0 {
		t.ResumeAfterInterrupt = def.ResumeAfterInterrupt
	}
	if t.RestartCapture <= 0 {
		t.RestartCapture = def.RestartCapture
	}
	return t
}

// PlaybackConfig holds the playback parameters handed to the playback engine.
// They are not visible on the wire.
type PlaybackConfig struct {
	Rate   float64
	Pitch  float64
	Volume float64

	// VoiceLanguage is the language prefix a voice must match.
	VoiceLanguage string
	// VoiceHints are substrings preferred in voice names, in order.
	VoiceHints []string
}

// DefaultPlaybackConfig returns the playback parameters of the reference client.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		Rate:          1.1,
		Pitch:         1.0,
		Volume:        0.9,
		VoiceLanguage: "en",
		VoiceHints:    []string{"Google", "Natural", "Female"},
	}
}
