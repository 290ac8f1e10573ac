package container

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nexusshell/corectl/pkg/corerr"
)

// Logs returns stdout+stderr lines from the container's log file (written
// by the runtime's cio.LogFile sink during Start). tail, if non-zero,
// limits the result to the last N lines; follow streams additional lines
// as they are appended until ctx is cancelled or the container has exited
// and the file is drained.
func (m *Manager) Logs(ctx context.Context, ref string, follow bool, tail int) (<-chan string, error) {
	rec, err := m.Resolve(ref)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	logPath := filepath.Join(m.driver.ContainerDir(rec.meta.ID), "container.log")
	rec.mu.Unlock()

	f, err := os.Open(logPath)
	if err != nil {
		return nil, corerr.Wrap(corerr.IO, corerr.ReasonNone, ref, err)
	}

	lines, err := readLines(f, tail)
	if err != nil {
		f.Close()
		return nil, corerr.Wrap(corerr.IO, corerr.ReasonNone, ref, err)
	}

	out := make(chan string, len(lines)+1)
	for _, l := range lines {
		out <- l
	}

	if !follow {
		close(out)
		f.Close()
		return out, nil
	}

	go func() {
		defer close(out)
		defer f.Close()
		reader := bufio.NewReader(f)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line, readErr := reader.ReadString('\n')
			if line != "" {
				out <- line
			}
			if readErr != nil {
				// EOF: container still running or exited. Poll, don't busy-spin.
				rec.mu.Lock()
				done := rec.meta.State == StateExited
				rec.mu.Unlock()
				if done {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
			}
		}
	}()
	return out, nil
}

func readLines(f *os.File, tail int) ([]string, error) {
	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return lines, nil
}

// Exec creates an additional process inside an existing container's
// namespaces, tracked independently of the container's own task (spec.md
// §4.7: "not exposed as a Job"). This implementation shells out to
// nsenter against the container's pid, the same mechanism the teacher's
// ContainerdRuntime.GetContainerIP used to reach into a running
// container's namespaces without a full containerd exec API round-trip.
func (m *Manager) Exec(ctx context.Context, ref string, argv []string, env map[string]string, workdir string) (string, error) {
	rec, err := m.Resolve(ref)
	if err != nil {
		return "", err
	}
	rec.mu.Lock()
	pid := rec.meta.Pid
	state := rec.meta.State
	rec.mu.Unlock()

	if state != StateRunning {
		return "", corerr.New(corerr.Runtime, corerr.ReasonInvalidState, ref, "container is not running")
	}
	if len(argv) == 0 {
		return "", corerr.New(corerr.Validation, corerr.ReasonNone, ref, "no command specified")
	}

	execID := uuid.NewString()
	nsenterArgs := []string{"-t", fmt.Sprintf("%d", pid), "-m", "-u", "-i", "-n", "-p"}
	if workdir != "" {
		nsenterArgs = append(nsenterArgs, "-w", workdir)
	}
	nsenterArgs = append(nsenterArgs, argv...)

	cmd := exec.CommandContext(ctx, "nsenter", nsenterArgs...)
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if err := cmd.Start(); err != nil {
		return "", corerr.Wrap(corerr.Runtime, corerr.ReasonNone, ref, err)
	}
	go func() { _ = cmd.Wait() }()

	return execID, nil
}
