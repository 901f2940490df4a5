// Package procinspect lists and inspects OS processes by jar-name pattern,
// the way the supervisor discovers and measures the uptime of a detached
// JVM it never started directly as a child. Process discovery shells out
// to pgrep; start-time resolution prefers native /proc parsing on Linux
// and falls back to gopsutil elsewhere.
package procinspect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fbaster/mcsupervisor/internal/shellexec"
)

// Inspector lists and inspects processes matching a jar-name pattern.
type Inspector struct{}

// New builds an Inspector.
func New() *Inspector { return &Inspector{} }

// Process describes one running PID matching a jar pattern.
type Process struct {
	PID       int
	StartedAt time.Time
	CmdLine   string
}

// ListPIDs returns every PID whose command line matches pattern, via
// `pgrep -f <pattern>`. An empty result (pgrep's exit 1) is not an error.
func (i *Inspector) ListPIDs(ctx context.Context, pattern string) ([]int, error) {
	res, err := shellexec.Run(ctx, "pgrep", "-f", pattern)
	if err != nil {
		return nil, fmt.Errorf("pgrep: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, nil
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	pids := make([]int, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		pid, err := strconv.Atoi(l)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// List returns full Process records (PID, start time, command line) for
// every PID matching pattern.
func (i *Inspector) List(ctx context.Context, pattern string) ([]Process, error) {
	pids, err := i.ListPIDs(ctx, pattern)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(pids))
	for _, pid := range pids {
		started, _ := i.StartTime(pid)
		cmdline, _ := i.CommandLine(ctx, pid)
		out = append(out, Process{PID: pid, StartedAt: started, CmdLine: cmdline})
	}
	return out, nil
}

// StartTime returns the process's start time. The bool is false when it
// could not be determined (process gone, unreadable /proc, etc).
func (i *Inspector) StartTime(pid int) (time.Time, bool) {
	sec := getProcStartUnix(pid)
	if sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// CommandLine returns the process's command line, preferring /proc and
// falling back to `pgrep -f -l`-style lookup via ps when unavailable.
func (i *Inspector) CommandLine(ctx context.Context, pid int) (string, bool) {
	if cl, ok := readProcCmdline(pid); ok {
		return cl, true
	}
	res, err := shellexec.Run(ctx, "ps", "-o", "args=", "-p", strconv.Itoa(pid))
	if err != nil || res.ExitCode != 0 {
		return "", false
	}
	return strings.TrimSpace(res.Stdout), true
}

// Terminate sends SIGTERM to pid. A missing process is not an error.
func (i *Inspector) Terminate(pid int) error {
	return i.Signal(pid, syscall.SIGTERM)
}

// Kill sends SIGKILL to pid. A missing process is not an error.
func (i *Inspector) Kill(pid int) error {
	return i.Signal(pid, syscall.SIGKILL)
}

// Signal sends an arbitrary signal to pid.
func (i *Inspector) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(pid, sig); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("signal %v to pid %d: %w", sig, pid, err)
	}
	return nil
}

// Alive reports whether pid currently exists.
func (i *Inspector) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil
}

// KillByPattern sends SIGKILL to every PID matching pattern, via
// `pkill -SIGKILL -f <pattern>`.
func (i *Inspector) KillByPattern(ctx context.Context, pattern string) error {
	_, err := shellexec.Run(ctx, "pkill", "-SIGKILL", "-f", pattern)
	return err
}

// LatestStart returns the process with the most recent start time among
// procs, used by the cull loop to pick the newest duplicate to terminate.
func LatestStart(procs []Process) (Process, bool) {
	var best Process
	found := false
	for _, p := range procs {
		if !found || p.StartedAt.After(best.StartedAt) {
			best = p
			found = true
		}
	}
	return best, found
}
