package execution

// EventKind tags an Event delivered to the interactive loop.
type EventKind string

const (
	// EventStatus replaces the single current status string.
	EventStatus EventKind = "status"
	// EventOutput appends a line to the results pane.
	EventOutput EventKind = "output"
	// EventTerminal appends a line to the terminal pane.
	EventTerminal EventKind = "terminal"
	// EventClearOutput empties the results pane.
	EventClearOutput EventKind = "clear_output"
	// EventClearTerminal empties the terminal pane.
	EventClearTerminal EventKind = "clear_terminal"
	// EventBuildResult carries the structured result of a build.
	EventBuildResult EventKind = "build_result"
	// EventRunStarted is emitted once the program is accepting input. Text
	// holds the session ID.
	EventRunStarted EventKind = "run_started"
	// EventRunExit carries the exit notification of a run.
	EventRunExit EventKind = "run_exit"
)

// Event is the only way background work talks to the presentation layer.
type Event struct {
	Kind  EventKind
	Text  string
	Build *BuildResult
	Exit  *RunExit
}

func StatusEvent(text string) Event   { return Event{Kind: EventStatus, Text: text} }
func OutputEvent(text string) Event   { return Event{Kind: EventOutput, Text: text} }
func TerminalEvent(text string) Event { return Event{Kind: EventTerminal, Text: text} }
