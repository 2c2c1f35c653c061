package tui

// TickMsg drives the per-tick response poll.
type TickMsg struct{}

// SubmittedMsg reports that a prompt was handed to the session.
type SubmittedMsg struct {
	Turn  int
	JobID string
	Err   error
}

// ShutdownMsg is sent once the in-flight query has finished on quit.
type ShutdownMsg struct {
	Err error
}

// LogMsg adds an informational line to the transcript.
type LogMsg struct {
	Text string
}
