package execution

import "time"

// RunState is the lifecycle position of a RunSession.
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
	RunTerminated RunState = "terminated"
)

// RunExit is the terminal notification of a RunSession. It is delivered
// strictly after the last output line of the process.
type RunExit struct {
	SessionID string
	State     RunState
	Code      int
	Duration  time.Duration
}
