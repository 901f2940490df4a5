// Package transcript watches a target's working directory for the
// rotation of its Forge mod-loader log and appends a human-readable
// transcript of chat and broadcast lines to chatlog.txt: ANSI color codes
// are stripped, chat and server-broadcast lines are matched, and matches
// are formatted into fixed-width columns. The active log is never read;
// only the rotated file, after the rename lands.
package transcript

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fsnotify/fsnotify"
)

const rotatedLogName = "ForgeModLoader-server-1.log"

var (
	colorEscapeRe = regexp.MustCompile(`\x1B.+?m`)
	leadingDateRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)
	chatLineRe    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) \[INFO\] \[(?:MyTown|Dynmap)\] (.+?:) (.+)`)
	broadcastRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) \[INFO\] \[Minecraft-Server\] \[Server\] (.+)`)
)

// Transcriber watches one target's directory for a log-rotation rename
// and appends a formatted transcript on every rotation.
type Transcriber struct {
	path string
	log  *slog.Logger
}

// New builds a Transcriber for the target directory at path.
func New(path string, log *slog.Logger) *Transcriber {
	return &Transcriber{path: path, log: log}
}

// Run watches path until ctx is cancelled, transcribing every rotation of
// the Forge mod-loader log it observes.
func (t *Transcriber) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("transcript: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(t.path); err != nil {
		return fmt.Errorf("transcript: watch %s: %w", t.path, err)
	}

	target := filepath.Join(t.path, rotatedLogName)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !(ev.Op&fsnotify.Rename != 0 || ev.Op&fsnotify.Create != 0) {
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if err := t.transcribe(target); err != nil {
				t.log.Warn("transcript append failed", "path", target, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Warn("transcript watcher error", "error", err)
		}
	}
}

func (t *Transcriber) transcribe(rotatedPath string) error {
	out, err := os.OpenFile(filepath.Join(t.path, "chatlog.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open chatlog.txt: %w", err)
	}
	defer func() { _ = out.Close() }()

	in, err := os.Open(rotatedPath)
	if err != nil {
		return fmt.Errorf("open rotated log: %w", err)
	}
	defer func() { _ = in.Close() }()

	scanner := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	defer func() { _ = w.Flush() }()

	if !scanner.Scan() {
		return scanner.Err()
	}

	// The banner's timestamp comes from the first log entry. A rotated
	// file that does not open with one is not a fresh server log, and
	// nothing in it is transcribed.
	m := leadingDateRe.FindStringSubmatch(scanner.Text())
	if m == nil {
		return nil
	}
	fmt.Fprintf(w, "\n%s %s\n", m[1], centerAsterisk("Starting Minecraft server", 60))

	for scanner.Scan() {
		clean := colorEscapeRe.ReplaceAllString(scanner.Text(), "")
		if m := chatLineRe.FindStringSubmatch(clean); m != nil {
			fmt.Fprintf(w, "%s %30s %s\n", m[1], m[2], m[3])
			continue
		}
		if m := broadcastRe.FindStringSubmatch(clean); m != nil {
			fmt.Fprintf(w, "%s %30s %s\n", m[1], "[Server]", m[2])
		}
	}
	return scanner.Err()
}

// centerAsterisk centers s in a field of width padded with '*'. When the
// padding is odd, the extra column goes on the right.
func centerAsterisk(s string, width int) string {
	total := width - len(s)
	if total <= 0 {
		return s
	}
	left := total / 2
	right := total - left
	return strings.Repeat("*", left) + s + strings.Repeat("*", right)
}
