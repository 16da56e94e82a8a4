package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	typesimage "github.com/docker/docker/api/types/image"

	"cppide/internal/domain/execution"
)

// artifactName is the output file inside the container, independent of the
// host's executable naming.
const artifactName = "program"

type containerEngine struct {
	cli         dockerClient
	limits      execution.Limits
	nanoCPUs    int64
	memoryBytes int64
}

func newContainerEngine(cli dockerClient, cfg Config) *containerEngine {
	return &containerEngine{
		cli:         cli,
		limits:      cfg.Limits.Normalize(),
		nanoCPUs:    cfg.NanoCPUs,
		memoryBytes: cfg.MemoryBytes,
	}
}

func (c *containerEngine) pullImage(ctx context.Context, ref string) error {
	reader, err := c.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	if err != nil {
		return fmt.Errorf("consume pull output for %s: %w", ref, err)
	}
	return nil
}

// compile runs the compiler command line inside a fresh container. The
// echoed command refers to container paths.
func (c *containerEngine) compile(ctx context.Context, runtime *languageRuntime, src execution.MaterializedSource, cfg execution.BuildConfig) execution.BuildResult {
	inner := execution.MaterializedSource{
		SourcePath:   path.Join(runtime.config.Workdir, filepath.Base(src.SourcePath)),
		ArtifactPath: path.Join(runtime.config.Workdir, artifactName),
	}
	args := cfg.Args(inner)

	fail := func(kind execution.FailureKind, msg string) execution.BuildResult {
		result := execution.Failure(kind, msg)
		result.Command = args
		return result
	}

	compiler := strings.TrimSpace(cfg.Compiler)
	if compiler == "" {
		return fail(execution.FailureCompilerNotFound, "no compiler configured")
	}

	text, err := os.ReadFile(src.SourcePath)
	if err != nil {
		return fail(execution.FailureSetup, fmt.Sprintf("Error during compilation setup: %v", err))
	}

	containerID, cleanup, err := c.createContainer(ctx, runtime.config, args)
	if err != nil {
		return fail(execution.FailureSetup, fmt.Sprintf("Error during compilation setup: %v", err))
	}
	defer cleanup()

	if err := c.copySource(ctx, containerID, runtime.config.Workdir, path.Base(inner.SourcePath), text); err != nil {
		return fail(execution.FailureSetup, fmt.Sprintf("Error during compilation setup: copy source: %v", err))
	}

	start := time.Now()
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		if isExecutableNotFound(err) {
			return fail(execution.FailureCompilerNotFound, execution.CompilerNotFoundMessage(compiler))
		}
		return fail(execution.FailureSetup, fmt.Sprintf("Compilation Error: start container: %v", err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.limits.BuildTimeout)
	status, err := c.waitForExit(waitCtx, containerID)
	cancel()
	took := time.Since(start)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			c.stopContainer(containerID)
			result := fail(execution.FailureCanceled, "compilation canceled")
			result.Duration = took
			return result
		case errors.Is(err, context.DeadlineExceeded):
			c.stopContainer(containerID)
			result := fail(execution.FailureTimeout, execution.BuildTimeoutMessage(c.limits.BuildTimeout))
			result.Duration = took
			return result
		default:
			return fail(execution.FailureSetup, fmt.Sprintf("Compilation Error: %v", err))
		}
	}

	stdout, stderr, err := c.fetchLogs(ctx, containerID)
	if err != nil {
		return fail(execution.FailureSetup, fmt.Sprintf("Compilation Error: fetch logs: %v", err))
	}

	if status.StatusCode != 0 {
		if status.StatusCode == 127 && strings.Contains(stderr, compiler) {
			return fail(execution.FailureCompilerNotFound, execution.CompilerNotFoundMessage(compiler))
		}
		return execution.BuildResult{
			FailureKind: execution.FailureNonZeroExit,
			Stdout:      stdout,
			Stderr:      stderr,
			ExitCode:    int(status.StatusCode),
			Command:     args,
			Duration:    took,
		}
	}

	if err := c.extractArtifact(ctx, containerID, inner.ArtifactPath, src.ArtifactPath); err != nil {
		return fail(execution.FailureSetup, fmt.Sprintf("Compilation Error: extract compiled binary: %v", err))
	}

	return execution.Success(stdout, stderr, args, took)
}

func (c *containerEngine) createContainer(ctx context.Context, cfg LanguageConfig, cmd []string) (string, func(), error) {
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			NanoCPUs: c.nanoCPUs,
		},
	}
	if c.memoryBytes > 0 {
		hostConfig.Resources.Memory = c.memoryBytes
		hostConfig.Resources.MemorySwap = c.memoryBytes
	}

	resp, err := c.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:        cfg.Image,
			Cmd:          cmd,
			AttachStdout: true,
			AttachStderr: true,
			WorkingDir:   cfg.Workdir,
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return "", nil, fmt.Errorf("create container: %w", err)
	}

	cleanup := func() {
		_ = c.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}

	return resp.ID, cleanup, nil
}

func isExecutableNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") || strings.Contains(msg, "no such file or directory")
}
