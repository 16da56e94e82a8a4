package ports

import "cppide/internal/domain/execution"

// OutputSink receives the merged output stream of a running program.
//
// WriteLine is called once per line in emission order; Finished is called
// exactly once, after the last line.
type OutputSink interface {
	WriteLine(sessionID, line string)
	Finished(exit execution.RunExit)
}
