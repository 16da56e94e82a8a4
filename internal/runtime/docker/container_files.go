package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	stopTimeout = 5 * time.Second
	// maxLogBytes caps the compiler diagnostics kept per stream.
	maxLogBytes = 1 << 20
)

// copySource places one source file into dir inside the container.
func (c *containerEngine) copySource(ctx context.Context, containerID, dir, name string, text []byte) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(text)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(text); err != nil {
		return fmt.Errorf("write tar contents: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}

	return c.cli.CopyToContainer(ctx, containerID, dir, &buf, types.CopyToContainerOptions{AllowOverwriteDirWithFile: true})
}

// extractArtifact streams the executable at containerPath to hostPath. A
// partially written file is removed.
func (c *containerEngine) extractArtifact(ctx context.Context, containerID, containerPath, hostPath string) (err error) {
	reader, _, err := c.cli.CopyFromContainer(ctx, containerID, containerPath)
	if err != nil {
		return fmt.Errorf("copy from container: %w", err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s not found in container archive", containerPath)
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if header.Typeflag == tar.TypeReg {
			break
		}
	}

	out, err := os.OpenFile(hostPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close artifact: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(hostPath)
		}
	}()

	if _, err := io.Copy(out, tr); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// stopContainer stops a compiler that outlived its build. Output produced so
// far is discarded with the container.
func (c *containerEngine) stopContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	timeout := 0
	err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil && !client.IsErrNotFound(err) {
		return
	}

	_, _ = c.waitForExit(ctx, containerID)
}

func (c *containerEngine) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

// fetchLogs returns the compiler's stdout and stderr, each truncated to
// maxLogBytes.
func (c *containerEngine) fetchLogs(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	logs, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	outBuf := &cappedBuffer{limit: maxLogBytes}
	errBuf := &cappedBuffer{limit: maxLogBytes}
	if _, err := stdcopy.StdCopy(outBuf, errBuf, logs); err != nil {
		return "", "", err
	}

	return outBuf.String(), errBuf.String(), nil
}

// cappedBuffer keeps the first limit bytes and silently drops the rest.
type cappedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
