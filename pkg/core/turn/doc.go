// Package turn implements the client-side turn-taking controller for revlive.
//
// The controller owns two mutually exclusive activities on the client: the
// capture engine (speech-to-text) and the playback engine (text-to-speech).
// It decides when to start and stop capture, when to cancel playback, and
// when to forward a finished utterance to the relay.
//
// # State Machine
//
//	IDLE → LISTENING → PROCESSING → SPEAKING
//	          ↑             ↑  │         │
//	          │             └──┼─────────┤  (barge-in)
//	          └────────────────┴─────────┘  (failure, completion, interrupt)
//
// The machine itself is [Transition], a pure function from a [Snapshot] and
// an [Event] to the next Snapshot plus a list of [Command] values. It can be
// exercised without any engine attached. [Controller] runs the machine on a
// single goroutine and executes the commands against a [CaptureEngine], a
// [PlaybackEngine] and a [Channel].
//
// Capture is never running while the assistant speaks: otherwise the
// microphone would transcribe the assistant's own voice as user input.
package turn
