package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"

	"cppide/internal/domain/execution"
	"cppide/internal/source"
)

func newTestEngine(t *testing.T, client *fakeDockerClient, limits execution.Limits) *Engine {
	t.Helper()

	engine, err := newEngineWithClient(client, Config{Limits: limits})
	if err != nil {
		t.Fatalf("newEngineWithClient returned error: %v", err)
	}
	return engine
}

func materialize(t *testing.T, text string) execution.MaterializedSource {
	t.Helper()

	src, err := source.Materializer{Dir: t.TempDir(), GOOS: "linux"}.Materialize(text, execution.LanguageCPP)
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	return src
}

func TestEngineRegistersDefaultLanguages(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	engine := newTestEngine(t, client, execution.Limits{})

	if got := len(engine.Languages()); got != 2 {
		t.Fatalf("expected 2 languages, got %d", got)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !client.closed {
		t.Fatalf("expected docker client to be closed")
	}
}

func TestNewEngineRejectsMissingImage(t *testing.T) {
	t.Parallel()

	_, err := newEngineWithClient(newFakeDockerClient(), Config{
		Languages: map[execution.Language]LanguageConfig{execution.LanguageC: {}},
	})
	if err == nil || !strings.Contains(err.Error(), "missing image") {
		t.Fatalf("expected missing image error, got %v", err)
	}
}

func TestBuildSuccessCopiesArtifactOut(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	engine := newTestEngine(t, client, execution.Limits{})
	src := materialize(t, "int main(){return 0;}")

	client.onCreate(func(id string) {
		client.setWaitSequence(id, waitCall{status: &container.WaitResponse{StatusCode: 0}})
		client.setLogs(id, "", "warning: unused variable")
		client.setCopyFrom(id, "/workspace/program", []byte("\x7fELF"))
	})

	result := engine.Build(context.Background(), execution.LanguageCPP, src, execution.DefaultBuildConfig(execution.LanguageCPP))
	if !result.Succeeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Stderr != "warning: unused variable" {
		t.Fatalf("expected compiler stderr, got %q", result.Stderr)
	}

	wantCmd := "g++ -std=c++17 -O2 -Wall /workspace/" + filepath.Base(src.SourcePath) + " -o /workspace/program"
	if got := strings.Join(result.Command, " "); got != wantCmd {
		t.Fatalf("unexpected command\n got: %s\nwant: %s", got, wantCmd)
	}

	if len(client.createCalls) != 1 {
		t.Fatalf("expected one container, got %d", len(client.createCalls))
	}
	create := client.createCalls[0]
	if create.config.Image != DefaultImage || create.config.WorkingDir != "/workspace" {
		t.Fatalf("unexpected container config %+v", create.config)
	}
	if create.hostConfig.NetworkMode != "none" {
		t.Fatalf("expected networking to be disabled")
	}

	if len(client.copyToCalls) != 1 {
		t.Fatalf("expected the source to be copied in")
	}
	name, data := readSingleFile(t, client.copyToCalls[0].data)
	if name != filepath.Base(src.SourcePath) || data != "int main(){return 0;}" {
		t.Fatalf("unexpected archive entry %q: %q", name, data)
	}

	info, err := os.Stat(src.ArtifactPath)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable artifact, got %v", info.Mode())
	}
	if len(client.removed) != 1 {
		t.Fatalf("expected the container to be removed")
	}
}

func TestBuildNonZeroExit(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	engine := newTestEngine(t, client, execution.Limits{})
	src := materialize(t, "int main(){ return")

	client.onCreate(func(id string) {
		client.setWaitSequence(id, waitCall{status: &container.WaitResponse{StatusCode: 1}})
		client.setLogs(id, "", "error: expected expression")
	})

	result := engine.Build(context.Background(), execution.LanguageCPP, src, execution.DefaultBuildConfig(execution.LanguageCPP))
	if result.FailureKind != execution.FailureNonZeroExit || result.ExitCode != 1 {
		t.Fatalf("expected non-zero exit, got %+v", result)
	}
	if result.Stderr != "error: expected expression" {
		t.Fatalf("unexpected stderr %q", result.Stderr)
	}
	if _, err := os.Stat(src.ArtifactPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no artifact, got %v", err)
	}
}

func TestBuildTimeoutStopsContainer(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	engine := newTestEngine(t, client, execution.Limits{BuildTimeout: 20 * time.Millisecond})
	src := materialize(t, "int main(){}")

	client.onCreate(func(id string) {
		client.setWaitSequence(id,
			waitCall{block: true},
			waitCall{status: &container.WaitResponse{StatusCode: 137}},
		)
		client.setLogs(id, "partial", "")
	})

	result := engine.Build(context.Background(), execution.LanguageCPP, src, execution.DefaultBuildConfig(execution.LanguageCPP))
	if result.FailureKind != execution.FailureTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if result.Stdout != "" {
		t.Fatalf("expected partial output to be discarded, got %q", result.Stdout)
	}
	if result.Message != execution.BuildTimeoutMessage(20*time.Millisecond) {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if len(client.stopCalls) != 1 {
		t.Fatalf("expected ContainerStop to be invoked once, got %d", len(client.stopCalls))
	}
}

func TestBuildCanceled(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	engine := newTestEngine(t, client, execution.Limits{})
	src := materialize(t, "int main(){}")

	ctx, cancel := context.WithCancel(context.Background())
	client.onCreate(func(id string) {
		client.setWaitSequence(id,
			waitCall{block: true},
			waitCall{status: &container.WaitResponse{StatusCode: 137}},
		)
		time.AfterFunc(20*time.Millisecond, cancel)
	})

	result := engine.Build(ctx, execution.LanguageCPP, src, execution.DefaultBuildConfig(execution.LanguageCPP))
	if result.FailureKind != execution.FailureCanceled {
		t.Fatalf("expected canceled, got %+v", result)
	}
	if len(client.stopCalls) != 1 {
		t.Fatalf("expected the compiler container to be stopped")
	}
}

func TestBuildCompilerNotFound(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	client.startErr = errors.New(`OCI runtime create failed: exec: "clang++": executable file not found in $PATH`)
	engine := newTestEngine(t, client, execution.Limits{})
	src := materialize(t, "int main(){}")

	cfg := execution.DefaultBuildConfig(execution.LanguageCPP)
	cfg.Compiler = "clang++"
	result := engine.Build(context.Background(), execution.LanguageCPP, src, cfg)
	if result.FailureKind != execution.FailureCompilerNotFound {
		t.Fatalf("expected compiler not found, got %+v", result)
	}
	if result.Message != "Compiler clang++ Not found!" {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if _, err := os.Stat(src.ArtifactPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no artifact, got %v", err)
	}
}

func TestBuildPullFailureIsSetupErrorAndRetried(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	client.pullErrs = []error{errors.New("registry unreachable")}
	engine := newTestEngine(t, client, execution.Limits{BuildTimeout: 100 * time.Millisecond})
	src := materialize(t, "int main(){}")

	result := engine.Build(context.Background(), execution.LanguageCPP, src, execution.DefaultBuildConfig(execution.LanguageCPP))
	if result.FailureKind != execution.FailureSetup || !strings.Contains(result.Message, "registry unreachable") {
		t.Fatalf("expected setup error, got %+v", result)
	}
	if len(client.createCalls) != 0 {
		t.Fatalf("expected no container after failed pull")
	}

	for i := 0; i < 2; i++ {
		client.onCreate(func(id string) {
			client.setWaitSequence(id, waitCall{status: &container.WaitResponse{StatusCode: 1}})
		})
	}
	for i := 0; i < 2; i++ {
		result := engine.Build(context.Background(), execution.LanguageCPP, src, execution.DefaultBuildConfig(execution.LanguageCPP))
		if result.FailureKind != execution.FailureNonZeroExit {
			t.Fatalf("build %d: expected non-zero exit after the image is available, got %+v", i, result)
		}
	}
	if len(client.imagePulls) != 2 {
		t.Fatalf("expected a retry and then a cached image, got %d pulls", len(client.imagePulls))
	}
}

func TestBuildUnknownLanguage(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	engine, err := newEngineWithClient(client, Config{
		Languages: map[execution.Language]LanguageConfig{execution.LanguageC: {Image: "gcc:13"}},
	})
	if err != nil {
		t.Fatalf("newEngineWithClient returned error: %v", err)
	}

	result := engine.Build(context.Background(), execution.LanguageCPP, materialize(t, "int main(){}"), execution.DefaultBuildConfig(execution.LanguageCPP))
	if result.FailureKind != execution.FailureSetup {
		t.Fatalf("expected setup error, got %+v", result)
	}
}

func TestBuildMissingArtifactIsSetupError(t *testing.T) {
	t.Parallel()

	client := newFakeDockerClient()
	engine := newTestEngine(t, client, execution.Limits{})
	src := materialize(t, "int main(){}")

	client.onCreate(func(id string) {
		client.setWaitSequence(id, waitCall{status: &container.WaitResponse{StatusCode: 0}})
	})

	result := engine.Build(context.Background(), execution.LanguageCPP, src, execution.DefaultBuildConfig(execution.LanguageCPP))
	if result.FailureKind != execution.FailureSetup || !strings.Contains(result.Message, "extract compiled binary") {
		t.Fatalf("expected setup error, got %+v", result)
	}
	if _, err := os.Stat(src.ArtifactPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no artifact, got %v", err)
	}
}

func TestCappedBufferDropsOverflow(t *testing.T) {
	t.Parallel()

	buf := &cappedBuffer{limit: 4}
	for _, chunk := range []string{"ab", "cdef", "gh"} {
		if n, err := buf.Write([]byte(chunk)); err != nil || n != len(chunk) {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if buf.String() != "abcd" {
		t.Fatalf("expected the first 4 bytes, got %q", buf.String())
	}
}

func readSingleFile(t *testing.T, archive []byte) (string, string) {
	t.Helper()

	tr := tar.NewReader(bytes.NewReader(archive))
	header, err := tr.Next()
	if err != nil {
		t.Fatalf("read tar: %v", err)
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("read tar contents: %v", err)
	}
	return header.Name, string(data)
}
