package engine

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/scriptyard/scriptyard/internal/logger"

	"github.com/scriptyard/scriptyard/internal/environment"
	"github.com/scriptyard/scriptyard/internal/models"
)

// processResult is the raw outcome of running one interpreter subprocess,
// before it is written into an ExecutionRecord.
type processResult struct {
	status     models.RunStatus
	exitCode   *int
	stdout     string
	stderr     string
	memoryMB   *float64
	cpuPercent *float64
}

// runProcess spawns the interpreter as a child process placed in its own
// process group, drains stdout/stderr concurrently, and enforces timeout
// with a graceful-then-forceful termination escalation, mirroring the
// teacher's Signal/Kill sequence in agent/agent.go (SIGTERM, wait, SIGKILL).
func (e *Engine) runProcess(ctx context.Context, interp environment.Interpreter, dir, scriptPath string, extraEnv []string, timeout time.Duration, scriptID, runID int64) *processResult {
	name, args, env := interp.Command(ctx, dir, scriptPath, extraEnv)

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return &processResult{status: models.RunFailed, stderr: "spawn failed: " + err.Error()}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return &processResult{status: models.RunFailed, stderr: "spawn failed: " + err.Error()}
	}

	if err := cmd.Start(); err != nil {
		return &processResult{status: models.RunFailed, stderr: "spawn failed: " + err.Error()}
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf outputBuffer
	wg.Add(2)
	go e.drain(&wg, stdoutPipe, &stdoutBuf, models.EventRunStdout, scriptID, runID)
	go e.drain(&wg, stderrPipe, &stderrBuf, models.EventRunStderr, scriptID, runID)

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var timedOut bool
	select {
	case err := <-waitDone:
		wg.Wait()
		return processExitResult(err, timedOut, stdoutBuf.String(), stderrBuf.String())
	case <-timer.C:
		timedOut = true
		e.terminateProcessGroup(cmd)
		err := <-waitDone
		wg.Wait()
		return processExitResult(err, timedOut, stdoutBuf.String(), stderrBuf.String())
	case <-ctx.Done():
		e.terminateProcessGroup(cmd)
		err := <-waitDone
		wg.Wait()
		return processExitResult(err, timedOut, stdoutBuf.String(), stderrBuf.String())
	}
}

// terminateProcessGroup signals the child's entire process group with
// SIGTERM, waits gracePeriod, then SIGKILLs if it hasn't exited.
func (e *Engine) terminateProcessGroup(cmd *exec.Cmd) {
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(e.gracePeriod):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}

func processExitResult(waitErr error, timedOut bool, stdout, stderr string) *processResult {
	result := &processResult{stdout: stdout, stderr: stderr}
	if timedOut {
		result.status = models.RunTimeout
		return result
	}
	if waitErr == nil {
		code := 0
		result.exitCode = &code
		result.status = models.RunSuccess
		return result
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		result.exitCode = &code
		result.status = models.RunFailed
		return result
	}
	result.status = models.RunFailed
	result.stderr += "\n" + waitErr.Error()
	return result
}

// outputBuffer is a concurrency-safe accumulator for one stream's captured
// output.
type outputBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	b.mu.Unlock()
	return len(p), nil
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// drain reads lines from r, appending to buf and emitting a chunk event per
// line. Reader errors are logged here as a warning; they never abort the
// run, per spec.md §4.2's failure semantics.
func (e *Engine) drain(wg *sync.WaitGroup, r io.Reader, buf *outputBuffer, eventType models.EventType, scriptID, runID int64) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		buf.Write(append(append([]byte(nil), line...), '\n'))
		e.publish(models.Event{
			Type:      eventType,
			ScriptID:  scriptID,
			RunID:     runID,
			Timestamp: time.Now().UTC(),
			Payload:   string(line),
		})
	}
	if err := scanner.Err(); err != nil && e.log != nil {
		e.log.Warn("output reader error", "script_id", scriptID, "error", err)
	}
}
