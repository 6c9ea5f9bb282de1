// Package capture implements the Capture Runner (C3): a bounded state
// machine that owns exactly one external capture process for the
// lifetime of a collector (spec §4.1, §9 "Subprocess lifecycle").
package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// State is a Runner's position in the Idle → Running → Exited → Backoff
// → Running cycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateExited
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// OutputMode controls how the child's stdout/stderr are wired, per the
// tool's capture mode in §4.1.
type OutputMode int

const (
	// OutputFile redirects stdout to a file, for log-tailing tools.
	OutputFile OutputMode = iota
	// OutputPipe keeps stdout as a pipe, for streaming-JSON tools.
	OutputPipe
	// OutputDiscard is for PCAP-producing tools that write to a capture
	// directory rather than stdout.
	OutputDiscard
)

const (
	stderrTailBytes   = 2048
	livenessStartWait = 2 * time.Second
	initialBackoff    = 1 * time.Second
	maxBackoff        = 60 * time.Second
	stableUptime      = 30 * time.Second
	termGrace         = 5 * time.Second
)

// Spec describes how to start one capture child.
type Spec struct {
	Name       string // tool name, for logging
	Command    string
	Args       []string
	OutputMode OutputMode
	OutputPath string // file path when OutputMode == OutputFile
	DropToUser string // optional privilege-drop target, tool-dependent
}

// StartupError is returned when the child exits within the startup grace
// window (§4.1 "StartupFailed").
type StartupError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s: startup failed (exit %d): %s", e.Tool, e.ExitCode, e.Stderr)
}

// Runner supervises one external capture process, restarting it with
// exponential backoff on unexpected exit.
type Runner struct {
	spec Spec

	mu           sync.Mutex
	state        State
	cmd          *exec.Cmd
	stderrBuf    *lockedRingBuffer
	startedAt    time.Time
	backoff      time.Duration
	outputStdout *os.File
	stdoutReader *os.File // read end of the stdout pipe, valid for OutputPipe mode
}

// New creates a Runner for spec. Starting it is a separate step so a
// Collector can construct its whole pipeline before any subprocess exists.
func New(spec Spec) *Runner {
	return &Runner{
		spec:    spec,
		state:   StateIdle,
		backoff: initialBackoff,
	}
}

// State returns the runner's current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run supervises the child for the lifetime of ctx, restarting it on
// unexpected exit with exponential backoff (capped at 60s, reset after
// 30s of continuous uptime). It returns only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		startErr := r.start(ctx)
		if startErr != nil {
			log.Error().Err(startErr).Str("tool", r.spec.Name).Msg("capture runner failed to start")
			if !r.sleepBackoff(ctx) {
				return
			}
			continue
		}

		exitErr := r.wait(ctx)
		r.mu.Lock()
		uptime := time.Since(r.startedAt)
		r.state = StateExited
		r.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		if uptime >= stableUptime {
			r.mu.Lock()
			r.backoff = initialBackoff
			r.mu.Unlock()
		}

		log.Warn().
			Str("tool", r.spec.Name).
			Err(exitErr).
			Dur("uptime", uptime).
			Str("stderr_tail", r.stderrBuf.String()).
			Msg("capture child exited, restarting after backoff")

		if !r.sleepBackoff(ctx) {
			return
		}
	}
}

func (r *Runner) sleepBackoff(ctx context.Context) bool {
	r.mu.Lock()
	r.state = StateBackoff
	wait := r.backoff
	r.backoff *= 2
	if r.backoff > maxBackoff {
		r.backoff = maxBackoff
	}
	r.mu.Unlock()

	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.spec.Command, r.spec.Args...)
	if r.spec.DropToUser != "" {
		// The drop-to-user argument is tool-dependent and is expected to
		// already be present in Args; syscall.Credential requires a
		// numeric UID which the collector resolves before constructing Spec.
	}

	buf := newLockedRingBuffer(stderrTailBytes)
	cmd.Stderr = buf

	switch r.spec.OutputMode {
	case OutputFile:
		f, err := os.OpenFile(r.spec.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		cmd.Stdout = f
		r.outputStdout = f
	case OutputPipe:
		pr, pw, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("create stdout pipe: %w", err)
		}
		cmd.Stdout = pw
		r.stdoutReader = pr
		defer pw.Close() // parent's copy closes once the child has its own
	case OutputDiscard:
		cmd.Stdout = nil
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.spec.Command, err)
	}

	r.mu.Lock()
	r.cmd = cmd
	r.stderrBuf = buf
	r.startedAt = time.Now()
	r.state = StateRunning
	r.mu.Unlock()

	select {
	case <-time.After(livenessStartWait):
	case <-ctx.Done():
		return nil
	}

	if r.processExited() {
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		return &StartupError{Tool: r.spec.Name, ExitCode: exitCode, Stderr: buf.String()}
	}
	return nil
}

func (r *Runner) processExited() bool {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return true
	}
	return cmd.ProcessState != nil
}

// StdoutReader exposes the running child's stdout for OutputMode ==
// OutputPipe collectors (the streaming-JSON tools, e.g. suricata's EVE
// log). Valid once State() reports StateRunning.
func (r *Runner) StdoutReader() (*os.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stdoutReader == nil {
		return nil, fmt.Errorf("runner has no stdout pipe (wrong output mode or not started)")
	}
	return r.stdoutReader, nil
}

func (r *Runner) wait(ctx context.Context) error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("no process")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if r.outputStdout != nil {
			r.outputStdout.Close()
			r.outputStdout = nil
		}
		return err
	case <-ctx.Done():
		r.terminate(cmd)
		<-done
		if r.outputStdout != nil {
			r.outputStdout.Close()
			r.outputStdout = nil
		}
		return ctx.Err()
	}
}

// terminate sends SIGTERM, then SIGKILL after the grace period, and
// guarantees no child is left orphaned (§4.1 Stop contract).
func (r *Runner) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(termGrace):
		_ = cmd.Process.Kill()
		<-done
	}
}

// lockedRingBuffer retains only the last N bytes written, used to
// capture stderr tails for restart diagnostics without unbounded memory.
type lockedRingBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	cap int
}

func newLockedRingBuffer(capacity int) *lockedRingBuffer {
	return &lockedRingBuffer{cap: capacity}
}

func (b *lockedRingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if excess := b.buf.Len() - b.cap; excess > 0 {
		b.buf.Next(excess)
	}
	return len(p), nil
}

func (b *lockedRingBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
