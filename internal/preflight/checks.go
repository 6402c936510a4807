package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"sitemigrate/internal/config"
	"sitemigrate/internal/services"
)

const serviceTimeout = 10 * time.Second

// CheckService probes a collaborator with a single attempt. A collaborator
// that is not configured passes with an explanatory detail.
func CheckService(ctx context.Context, name string, p Pinger, configured bool) Result {
	if !configured || p == nil {
		return Result{Name: name, Passed: true, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()
	if err := p.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available. A zero minimum only reports the free space.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if minBytes > 0 && free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s for the largest archive)", detail, humanize.IBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckCommands verifies that every configured external command resolves on PATH.
func CheckCommands(commands map[string]config.Command) []Result {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		label := "Command " + name
		args := commands[name].Args
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			results = append(results, Result{Name: label, Detail: "no executable configured"})
			continue
		}
		path, err := exec.LookPath(args[0])
		if err != nil {
			results = append(results, Result{Name: label, Detail: fmt.Sprintf("%s not found", args[0])})
			continue
		}
		results = append(results, Result{Name: label, Passed: true, Detail: path})
	}
	return results
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	if errors.Is(err, services.ErrSecurity) {
		return "authentication rejected"
	}
	return err.Error()
}
