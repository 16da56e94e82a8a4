//go:build !windows

package ide

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cppide/internal/app/build"
	"cppide/internal/domain/execution"
	"cppide/internal/runtime/local"
	"cppide/internal/source"
	"cppide/internal/supervisor"
	"cppide/internal/terminal"
)

// shellToolchain "compiles" by linking the artifact to /bin/sh, so the
// program reads commands from its input.
func shellToolchain() *stubToolchain {
	return &stubToolchain{
		buildFn: func(src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult {
			if err := os.Symlink("/bin/sh", src.ArtifactPath); err != nil {
				return execution.Failure(execution.FailureSetup, err.Error())
			}
			return execution.Success("", "", cfg.Args(src), time.Millisecond)
		},
	}
}

func (f *fixture) awaitRunning(t *testing.T) *supervisor.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sess := f.supervisor.Active(); sess != nil {
			return sess
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("program did not start")
	return nil
}

func TestCompileAndRunStreamsProgram(t *testing.T) {
	t.Parallel()

	f := newFixture(t, shellToolchain())

	f.controller.CompileAndRun("int main(){}")
	events := f.await(t, isEvent(execution.EventTerminal, separator))
	f.awaitRunning(t)

	success := indexOf(events, execution.EventOutput, "Compilation completed successfully!")
	header := -1
	for i, ev := range events {
		if ev.Kind == execution.EventTerminal && strings.HasPrefix(ev.Text, "Running: cppide-") {
			header = i
		}
	}
	if success < 0 || header < success {
		t.Fatalf("expected the run to follow the successful build, got %v", events)
	}

	f.controller.SubmitLine("echo hello")
	f.await(t, isEvent(execution.EventTerminal, "hello"))

	f.controller.SubmitLine("exit 4")
	events = f.await(t, isKind(execution.EventRunExit))

	exit := events[len(events)-1].Exit
	if exit.Code != 4 || exit.State != execution.RunCompleted {
		t.Fatalf("unexpected exit %+v", exit)
	}
	footer := indexOf(events, execution.EventTerminal, "Program finished with code: 4")
	status := indexOf(events, execution.EventStatus, "Program finished with errors (4)")
	if footer < 0 || status < footer {
		t.Fatalf("expected footer then status, got %v", events)
	}

	var runReport *execution.Report
	for _, r := range f.publisher.Reports() {
		if r.Kind == execution.ReportRun {
			r := r
			runReport = &r
		}
	}
	if runReport == nil || runReport.Exit.Code != 4 {
		t.Fatalf("expected a run report with code 4, got %+v", f.publisher.Reports())
	}
}

func TestRepeatedRunsReuseArtifact(t *testing.T) {
	t.Parallel()

	toolchain := shellToolchain()
	f := newFixture(t, toolchain)

	f.controller.Compile("int main(){}")
	f.await(t, isKind(execution.EventBuildResult))

	for i := 0; i < 2; i++ {
		f.controller.Run()
		f.await(t, isEvent(execution.EventTerminal, separator))
		f.awaitRunning(t)
		f.controller.SubmitLine("exit 0")
		events := f.await(t, isKind(execution.EventRunExit))
		if indexOf(events, execution.EventStatus, "Program finished successfully") < 0 {
			t.Fatalf("run %d: expected success status, got %v", i, events)
		}
	}

	if toolchain.Calls() != 1 {
		t.Fatalf("expected a single compile, got %d", toolchain.Calls())
	}
}

func TestRunRefusedWhileProgramRuns(t *testing.T) {
	t.Parallel()

	f := newFixture(t, shellToolchain())

	f.controller.CompileAndRun("int main(){}")
	f.await(t, isEvent(execution.EventTerminal, separator))
	sess := f.awaitRunning(t)

	f.controller.Run()
	f.await(t, isEvent(execution.EventTerminal, "A program is already running. Stop it first."))

	if f.supervisor.Active() != sess {
		t.Fatalf("expected the first program to keep running")
	}
}

func TestStopTerminatesProgram(t *testing.T) {
	t.Parallel()

	f := newFixture(t, shellToolchain())

	f.controller.CompileAndRun("int main(){}")
	f.await(t, isEvent(execution.EventTerminal, separator))
	f.awaitRunning(t)

	f.controller.Stop()
	events := f.await(t, isKind(execution.EventRunExit))
	if exit := events[len(events)-1].Exit; exit.State != execution.RunTerminated {
		t.Fatalf("expected terminated state, got %+v", exit)
	}

	f.controller.Stop()
	f.await(t, isEvent(execution.EventStatus, "No running program"))
}

func TestInputWithoutProgramRunsHostCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubToolchain{})

	f.controller.SubmitLine("echo out; echo err 1>&2")
	events := f.await(t, isEvent(execution.EventTerminal, "err"))
	if indexOf(events, execution.EventTerminal, "out") < 0 {
		t.Fatalf("expected stdout before stderr, got %v", events)
	}

	f.controller.SubmitLine("sleep 5")
	f.await(t, isEvent(execution.EventTerminal, "Command timed out"))
}

func TestShutdownStopsRunningProgram(t *testing.T) {
	t.Parallel()

	f := newFixture(t, shellToolchain())

	f.controller.CompileAndRun("int main(){}")
	f.await(t, isEvent(execution.EventTerminal, separator))
	sess := f.awaitRunning(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.controller.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	exit, ok := sess.Exit()
	if !ok || exit.State != execution.RunTerminated {
		t.Fatalf("expected the program to be terminated, got %+v", exit)
	}
}

func TestSendInputNeverRunsHostCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, shellToolchain())
	marker := filepath.Join(f.dir, "marker")

	if err := f.controller.SendInput("touch " + marker); !errors.Is(err, execution.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before the program starts, got %v", err)
	}

	f.controller.CompileAndRun("int main(){}")
	f.await(t, isKind(execution.EventRunStarted))

	if err := f.controller.SendInput("echo hi"); err != nil {
		t.Fatalf("SendInput returned error: %v", err)
	}
	f.await(t, isEvent(execution.EventTerminal, "hi"))

	if err := f.controller.SendInput("exit 0"); err != nil {
		t.Fatalf("SendInput returned error: %v", err)
	}
	f.await(t, isKind(execution.EventRunExit))

	if err := f.controller.SendInput("touch " + marker); !errors.Is(err, execution.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after the program exited, got %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("input reached the host shell: %v", err)
	}
}

func TestRunWaitsForStoppingProgram(t *testing.T) {
	t.Parallel()

	f := newFixture(t, shellToolchain())

	f.controller.CompileAndRun("int main(){}")
	f.await(t, isKind(execution.EventRunStarted))
	f.controller.SubmitLine("trap '' TERM; echo armed")
	f.await(t, isEvent(execution.EventTerminal, "armed"))

	f.controller.Stop()
	f.await(t, isEvent(execution.EventTerminal, "Program stopped by the user"))

	f.controller.Run()
	events := f.await(t, isEvent(execution.EventTerminal, "A program is still stopping. Try again in a moment."))
	if indexOf(events, execution.EventRunExit, "") >= 0 {
		t.Fatalf("program exited before the second run was refused: %v", events)
	}

	events = f.await(t, isKind(execution.EventRunExit))
	if exit := events[len(events)-1].Exit; exit.State != execution.RunTerminated {
		t.Fatalf("expected terminated state, got %+v", exit)
	}
	if indexOf(events, execution.EventRunStarted, "") >= 0 {
		t.Fatalf("second program started while the first was alive: %v", events)
	}

	f.controller.Run()
	f.await(t, isKind(execution.EventRunStarted))
}

func TestSendFailureKeepsProgramRunning(t *testing.T) {
	t.Parallel()

	f := newFixture(t, shellToolchain())

	f.controller.CompileAndRun("int main(){}")
	sess := f.awaitRunning(t)
	f.controller.SubmitLine("exec 0<&-; echo closed; sleep 1; echo alive")
	f.await(t, isEvent(execution.EventTerminal, "closed"))

	f.controller.SubmitLine("ignored")
	f.await(t, isEvent(execution.EventTerminal, "Error sending data to the program"))
	if sess.State() != execution.RunRunning {
		t.Fatalf("expected program to keep running, got %q", sess.State())
	}

	events := f.await(t, isKind(execution.EventRunExit))
	if indexOf(events, execution.EventTerminal, "alive") < 0 {
		t.Fatalf("expected output after the failed write, got %v", events)
	}
	if exit := events[len(events)-1].Exit; exit.State != execution.RunCompleted {
		t.Fatalf("unexpected exit %+v", exit)
	}
}

func newCompilerFixture(t *testing.T) *fixture {
	t.Helper()

	if _, err := exec.LookPath("g++"); err != nil {
		t.Skip("g++ not installed")
	}

	toolchain, err := local.New(local.Config{})
	if err != nil {
		t.Fatalf("local.New returned error: %v", err)
	}

	dir := t.TempDir()
	sup := supervisor.New(nil)
	controller, err := New(Config{
		Builds:     build.NewService(toolchain, source.Materializer{Dir: dir}),
		Supervisor: sup,
		Terminal:   terminal.New(dir, time.Second),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = controller.Shutdown(ctx)
		_ = toolchain.Close()
	})

	return &fixture{controller: controller, supervisor: sup, dir: dir}
}

func TestHelloWorldWithCompiler(t *testing.T) {
	t.Parallel()

	f := newCompilerFixture(t)

	f.controller.CompileAndRun("#include <iostream>\nint main(){ std::cout << \"Hello, World!\" << std::endl; return 0; }\n")
	events := f.await(t, isKind(execution.EventRunExit))

	exit := events[len(events)-1].Exit
	if exit.Code != 0 || exit.State != execution.RunCompleted {
		t.Fatalf("unexpected exit %+v", exit)
	}

	lines := texts(events, execution.EventTerminal)
	start := -1
	for i, l := range lines {
		if l == separator {
			start = i
			break
		}
	}
	if start < 0 || len(lines) < start+4 {
		t.Fatalf("unexpected terminal lines %q", lines)
	}
	program := lines[start+1 : len(lines)-2]
	if len(program) != 1 || program[0] != "Hello, World!" {
		t.Fatalf("expected a single greeting line, got %q", program)
	}
	if lines[len(lines)-1] != "Program finished with code: 0" {
		t.Fatalf("unexpected footer %q", lines[len(lines)-1])
	}

	art := f.controller.Artifact()
	if art == nil || filepath.Dir(art.ArtifactPath) != f.dir {
		t.Fatalf("expected artifact in %s, got %+v", f.dir, art)
	}
}

func TestMalformedSourceWithCompiler(t *testing.T) {
	t.Parallel()

	f := newCompilerFixture(t)

	f.controller.Compile("int main(){ return")
	events := f.await(t, isKind(execution.EventBuildResult))

	result := events[len(events)-1].Build
	if result.FailureKind != execution.FailureNonZeroExit {
		t.Fatalf("expected non-zero exit, got %q", result.FailureKind)
	}
	if strings.TrimSpace(result.Stderr) == "" {
		t.Fatalf("expected diagnostics on stderr")
	}

	f.controller.Run()
	f.await(t, isEvent(execution.EventOutput, "No compiled file! Please compile the code first."))
}
