package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Spawner starts a worker running one workflow for one record.
type Spawner interface {
	Spawn(ctx context.Context, workflow, linkID, siteID string) (Handle, error)
}

// ExecSpawner starts `<executable> run --workflow <name> <link_id> <site_id>`
// as a separate OS process with its output appended to a per-job log file.
type ExecSpawner struct {
	Executable string
	ConfigPath string
	Debug      bool
	TestRun    bool
	LogDir     string
	Env        []string
}

// Spawn implements Spawner. The worker is not tied to ctx: it keeps running
// if the scan loop shuts down.
func (s ExecSpawner) Spawn(_ context.Context, workflow, linkID, siteID string) (Handle, error) {
	executable := strings.TrimSpace(s.Executable)
	if executable == "" {
		var err error
		executable, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
	}
	if strings.TrimSpace(workflow) == "" {
		return nil, errors.New("spawn worker: workflow name is required")
	}

	cmd := exec.Command(executable, s.Args(workflow, linkID, siteID)...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.SysProcAttr = workerProcAttr()

	var logFile *os.File
	if dir := strings.TrimSpace(s.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure worker log directory: %w", err)
		}
		name := fmt.Sprintf("%s-%s-%s-%s.log", workflow, safeName(linkID), safeName(siteID), time.Now().UTC().Format("20060102T150405"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open worker log: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	handle, err := StartProcess(cmd, func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	})
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return handle, nil
}

// workerProcAttr puts the worker in its own process group so a Ctrl-C aimed
// at the scan loop does not interrupt workers mid-step.
func workerProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// Args returns the worker command line after the executable.
func (s ExecSpawner) Args(workflow, linkID, siteID string) []string {
	args := []string{"run", "--workflow", workflow}
	if cfg := strings.TrimSpace(s.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if s.Debug {
		args = append(args, "--debug")
	}
	if s.TestRun {
		args = append(args, "--test-run")
	}
	return append(args, "--", linkID, siteID)
}

func safeName(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}
