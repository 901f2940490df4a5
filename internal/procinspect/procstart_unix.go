//go:build !windows

package procinspect

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
)

var (
	errStatMalformed = errors.New("malformed stat line")
	errNoBootTime    = errors.New("no btime entry in /proc/stat")
)

// procStat carries the one field this package needs from a
// /proc/<pid>/stat line: the process start, in clock ticks since boot.
type procStat struct {
	startTicks int64
}

// getProcStartUnix returns the process start time as Unix seconds, 0 when
// unavailable.
func getProcStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	if runtime.GOOS == "linux" {
		if sec, err := procStartFromProcfs(pid); err == nil {
			return sec
		}
	}
	return getProcStartGopsutil(pid)
}

func getProcStartGopsutil(pid int) int64 {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}

// procStartFromProcfs computes the start time from procfs alone, without
// spawning external processes: boot time plus the stat line's tick count
// converted through the kernel's tick rate.
func procStartFromProcfs(pid int) (int64, error) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, err
	}
	st, err := parseProcStat(string(data))
	if err != nil {
		return 0, fmt.Errorf("pid %d: %w", pid, err)
	}
	bt, err := bootTime()
	if err != nil {
		return 0, err
	}
	return bt + st.startTicks/clockTicksPerSecond(), nil
}

// parseProcStat extracts the fields of interest from a /proc/<pid>/stat
// line. The second field (comm) may itself contain spaces and
// parentheses, so parsing anchors on the final ')' rather than splitting
// the whole line; the counted fields start after it, with starttime at
// offset 19 (field 22 of the full line).
func parseProcStat(line string) (procStat, error) {
	end := strings.LastIndex(line, ") ")
	if end < 0 {
		return procStat{}, errStatMalformed
	}
	fields := strings.Fields(line[end+2:])
	if len(fields) < 20 {
		return procStat{}, errStatMalformed
	}
	ticks, err := strconv.ParseInt(fields[19], 10, 64)
	if err != nil || ticks <= 0 {
		return procStat{}, errStatMalformed
	}
	return procStat{startTicks: ticks}, nil
}

var (
	bootTimeOnce sync.Once
	bootTimeSec  int64
	bootTimeErr  error
)

// bootTime reads the kernel boot time from /proc/stat once per process;
// it cannot change while we run.
func bootTime() (int64, error) {
	bootTimeOnce.Do(func() {
		bootTimeSec, bootTimeErr = readBootTime("/proc/stat")
	})
	return bootTimeSec, bootTimeErr
}

func readBootTime(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	s := bufio.NewScanner(f)
	for s.Scan() {
		value, found := strings.CutPrefix(s.Text(), "btime ")
		if !found {
			continue
		}
		sec, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse btime: %w", err)
		}
		return sec, nil
	}
	if err := s.Err(); err != nil {
		return 0, err
	}
	return 0, errNoBootTime
}

func clockTicksPerSecond() int64 {
	clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clk <= 0 {
		return 100
	}
	return clk
}

// readProcCmdline reads the null-separated argv from /proc/<pid>/cmdline
// on Linux; returns false on any other platform or read failure.
func readProcCmdline(pid int) (string, bool) {
	if runtime.GOOS != "linux" {
		return "", false
	}
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
	if err != nil || len(b) == 0 {
		return "", false
	}
	parts := strings.Split(strings.TrimRight(string(b), "\x00"), "\x00")
	return strings.Join(parts, " "), true
}
