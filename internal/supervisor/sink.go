package supervisor

import (
	"sync"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
)

var (
	_ ports.OutputSink = SinkFuncs{}
	_ ports.OutputSink = (*Collector)(nil)
)

// SinkFuncs adapts plain functions to ports.OutputSink. Nil fields are skipped.
type SinkFuncs struct {
	OnLine func(sessionID, line string)
	OnExit func(exit execution.RunExit)
}

func (f SinkFuncs) WriteLine(sessionID, line string) {
	if f.OnLine != nil {
		f.OnLine(sessionID, line)
	}
}

func (f SinkFuncs) Finished(exit execution.RunExit) {
	if f.OnExit != nil {
		f.OnExit(exit)
	}
}

// Collector buffers a whole run for headless callers.
type Collector struct {
	mu    sync.Mutex
	lines []string
	exit  *execution.RunExit
	// exitAfter counts lines received after Finished; it must stay zero.
	exitAfter int
}

func (c *Collector) WriteLine(_ string, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exit != nil {
		c.exitAfter++
	}
	c.lines = append(c.lines, line)
}

func (c *Collector) Finished(exit execution.RunExit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exit = &exit
}

// Lines returns a copy of the received lines.
func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Exit returns the exit notification, if it arrived.
func (c *Collector) Exit() (execution.RunExit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exit == nil {
		return execution.RunExit{}, false
	}
	return *c.exit, true
}

// LinesAfterExit reports how many lines arrived after the exit notification.
func (c *Collector) LinesAfterExit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitAfter
}
