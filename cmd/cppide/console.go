package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cppide/internal/domain/execution"
)

const clearScreen = "\033[H\033[2J"

// console prints controller events. Program and compiler output go to out,
// status changes go to status.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	status io.Writer
}

func newConsole(out, status io.Writer) *console {
	return &console{out: out, status: status}
}

func (c *console) render(ev execution.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case execution.EventOutput, execution.EventTerminal:
		fmt.Fprintln(c.out, ev.Text)
	case execution.EventStatus:
		fmt.Fprintf(c.status, "[%s]\n", ev.Text)
	case execution.EventClearTerminal:
		fmt.Fprint(c.out, clearScreen)
	}
}

func (c *console) println(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

var errEventsClosed = errors.New("controller stopped")

// follow renders events until done matches one, which is returned.
func follow(ctx context.Context, events <-chan execution.Event, con *console, done func(execution.Event) bool) (execution.Event, error) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return execution.Event{}, errEventsClosed
			}
			con.render(ev)
			if done(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			return execution.Event{}, ctx.Err()
		}
	}
}

func isBuildResult(ev execution.Event) bool {
	return ev.Kind == execution.EventBuildResult
}

func printReport(w io.Writer, report execution.Report) {
	if report.Build != nil && !report.Build.Succeeded {
		fmt.Fprintf(w, "request %q: build failed (%s)\n", report.RequestID, report.Build.FailureKind)
		for _, text := range []string{report.Build.Message, report.Build.Stderr, report.Build.Stdout} {
			if text != "" {
				fmt.Fprintln(w, text)
			}
		}
	}
	if report.Exit != nil {
		fmt.Fprintf(w, "request %q exited with status %d after %s\n", report.RequestID, report.Exit.Code, report.Exit.Duration.Round(time.Millisecond))
		for _, line := range report.Output {
			fmt.Fprintln(w, line)
		}
	}
	if report.Err != nil {
		fmt.Fprintf(w, "request %q failed: %v\n", report.RequestID, report.Err)
	}
}
