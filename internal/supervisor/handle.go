package supervisor

import (
	"errors"
	"os/exec"
	"sync"
)

// Handle is a running or finished worker.
type Handle interface {
	PID() int
	// Exited reports the exit code once the worker has ended. It never blocks.
	Exited() (code int, done bool)
}

// ProcessHandle supervises an OS process started from an exec.Cmd.
type ProcessHandle struct {
	pid  int
	done chan struct{}

	mu   sync.Mutex
	code int
	err  error
}

// StartProcess starts cmd and begins waiting on it in the background.
// onExit, when set, runs after the process has been reaped.
func StartProcess(cmd *exec.Cmd, onExit func()) (*ProcessHandle, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	h := &ProcessHandle{pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		h.mu.Lock()
		h.code = code
		h.err = err
		h.mu.Unlock()
		if onExit != nil {
			onExit()
		}
		close(h.done)
	}()
	return h, nil
}

// PID returns the operating system process id.
func (h *ProcessHandle) PID() int {
	return h.pid
}

// Exited reports the exit code once the process has been reaped.
func (h *ProcessHandle) Exited() (int, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.code, true
	default:
		return 0, false
	}
}

// Done is closed when the process has exited.
func (h *ProcessHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the wait error, if any, after the process exited.
func (h *ProcessHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
