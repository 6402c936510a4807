package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"sitemigrate/internal/logging"
	"sitemigrate/internal/supervisor"
)

// ErrAlreadyRunning reports that another loop holds the stage lock.
var ErrAlreadyRunning = errors.New("scan loop already running")

// LoopOptions configures Run.
type LoopOptions struct {
	Interval      time.Duration
	Backoff       time.Duration
	LockPath      string
	ExitFlag      string
	ShutdownGrace time.Duration
	Supervisor    *supervisor.Supervisor
	Logger        *slog.Logger
}

// Run repeats pass until ctx ends or the exit flag appears. The exit flag is
// checked before each pass and removed when honoured. Spawned workers are
// polled after each pass and given ShutdownGrace to finish on exit.
func Run(ctx context.Context, pass Pass, opts LoopOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldStage, pass.Name()))

	if opts.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LockPath), 0o755); err != nil {
			return fmt.Errorf("ensure lock directory: %w", err)
		}
		lock := flock.New(opts.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire %s: %w", opts.LockPath, err)
		}
		if !locked {
			return fmt.Errorf("%w: %s is locked", ErrAlreadyRunning, opts.LockPath)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("release scan lock", logging.Error(err))
			}
		}()
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	wake := watchExitFlag(watchCtx, logger, opts.ExitFlag)

	logger.Info("scan loop started",
		logging.String(logging.FieldEventType, "scan_loop_started"),
		logging.Duration("interval", opts.Interval),
		logging.Duration("backoff", opts.Backoff),
	)
	defer drain(opts, logger)

	for {
		if ctx.Err() != nil {
			logger.Info("scan loop stopping", logging.String("reason", "context cancelled"))
			return nil
		}
		if consumeExitFlag(logger, opts.ExitFlag) {
			return nil
		}

		result := pass.Pass(ctx)
		if opts.Supervisor != nil {
			opts.Supervisor.Poll()
		}

		sleep := opts.Interval
		if result.Outcome == OutcomeBackoff && opts.Backoff > 0 {
			sleep = opts.Backoff
		}
		if sleep <= 0 {
			sleep = time.Second
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func consumeExitFlag(logger *slog.Logger, path string) bool {
	if path == "" {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove exit flag", logging.String("path", path), logging.Error(err))
	}
	logger.Info("scan loop stopping",
		logging.String(logging.FieldEventType, "scan_loop_exit_flag"),
		logging.String("flag", path),
	)
	return true
}

// watchExitFlag signals when the exit flag is created so a sleeping loop
// wakes early. Without a watcher the loop still sees the flag next pass.
func watchExitFlag(ctx context.Context, logger *slog.Logger, path string) <-chan struct{} {
	wake := make(chan struct{}, 1)
	if path == "" {
		return wake
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Debug("exit flag directory unavailable", logging.Error(err))
		return wake
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug("exit flag watcher unavailable", logging.Error(err))
		return wake
	}
	if err := watcher.Add(dir); err != nil {
		logger.Debug("exit flag watcher unavailable", logging.Error(err))
		_ = watcher.Close()
		return wake
	}
	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("exit flag watcher error", logging.Error(err))
			}
		}
	}()
	return wake
}

func drain(opts LoopOptions, logger *slog.Logger) {
	if opts.Supervisor == nil || opts.Supervisor.Len() == 0 {
		return
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	logger.Info("waiting for workers", logging.Int("workers", opts.Supervisor.Len()), logging.Duration("grace", grace))
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	opts.Supervisor.Wait(ctx, 500*time.Millisecond)
}
