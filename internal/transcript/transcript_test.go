package transcript

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCenterAsteriskPutsOddPaddingOnTheRight(t *testing.T) {
	// A 25-char string in a 60-wide field pads 35 total: 17 left, 18
	// right.
	got := centerAsterisk("Starting Minecraft server", 60)
	want := "*****************Starting Minecraft server******************"
	if got != want {
		t.Fatalf("centerAsterisk = %q (len %d), want %q (len %d)", got, len(got), want, len(want))
	}
	if len(got) != 60 {
		t.Fatalf("centered string length = %d, want 60", len(got))
	}
}

func TestCenterAsteriskWhenStringIsWiderThanField(t *testing.T) {
	s := "this string is already wider than the requested field width"
	got := centerAsterisk(s, 10)
	if got != s {
		t.Fatalf("centerAsterisk should return s unchanged when width <= len(s), got %q", got)
	}
}

func TestColorEscapeStripsANSICodes(t *testing.T) {
	line := "2023-01-01 12:00:00 [INFO] [MyTown] \x1B[32mAlice\x1B[0m: hello"
	clean := colorEscapeRe.ReplaceAllString(line, "")
	if m := chatLineRe.FindStringSubmatch(clean); m == nil {
		t.Fatalf("chat line did not match after stripping ANSI codes: %q", clean)
	} else if m[2] != "Alice:" || m[3] != "hello" {
		t.Fatalf("unexpected chat line submatches: %v", m)
	}
}

func TestBroadcastLineMatchesServerPrefix(t *testing.T) {
	line := "2023-01-01 12:00:01 [INFO] [Minecraft-Server] [Server] The server will restart soon"
	m := broadcastRe.FindStringSubmatch(line)
	if m == nil {
		t.Fatalf("broadcast line did not match: %q", line)
	}
	if m[2] != "The server will restart soon" {
		t.Fatalf("unexpected broadcast message: %q", m[2])
	}
}

func TestTranscribeRightAlignsUsernameWithItsColon(t *testing.T) {
	dir := t.TempDir()

	rotated := filepath.Join(dir, rotatedLogName)
	content := "2024-01-01 12:00:00 [INFO] [Minecraft-Server] starting up\n" +
		"2024-01-01 12:00:00 [INFO] [MyTown] Alice: hello\n" +
		"2024-01-01 12:00:01 [INFO] [Minecraft-Server] [Server] world\n"
	if err := os.WriteFile(rotated, []byte(content), 0o644); err != nil {
		t.Fatalf("write rotated log: %v", err)
	}

	tr := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := tr.transcribe(rotated); err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "chatlog.txt"))
	if err != nil {
		t.Fatalf("read chatlog.txt: %v", err)
	}
	got := string(out)

	if !strings.Contains(got, "2024-01-01 12:00:00                         Alice: hello") {
		t.Fatalf("chat line not formatted with the colon inside the 30-wide field: %q", got)
	}
	if !strings.Contains(got, "2024-01-01 12:00:01                       [Server] world") {
		t.Fatalf("broadcast line not formatted as expected: %q", got)
	}
}

func TestTranscribeWritesBannerAndFormattedLines(t *testing.T) {
	dir := t.TempDir()

	rotated := filepath.Join(dir, rotatedLogName)
	content := "2023-01-01 12:00:00 [INFO] [Minecraft-Server] starting up\n" +
		"2023-01-01 12:00:05 [INFO] [MyTown] Alice: hi there\n" +
		"2023-01-01 12:00:06 [INFO] [Minecraft-Server] [Server] Saving the world\n"
	if err := os.WriteFile(rotated, []byte(content), 0o644); err != nil {
		t.Fatalf("write rotated log: %v", err)
	}

	tr := New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := tr.transcribe(rotated); err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "chatlog.txt"))
	if err != nil {
		t.Fatalf("read chatlog.txt: %v", err)
	}
	got := string(out)

	if !strings.Contains(got, "Starting Minecraft server") {
		t.Fatalf("chatlog.txt missing start banner: %q", got)
	}
	if !strings.Contains(got, "Alice") || !strings.Contains(got, "hi there") {
		t.Fatalf("chatlog.txt missing chat line: %q", got)
	}
	if !strings.Contains(got, "[Server]") || !strings.Contains(got, "Saving the world") {
		t.Fatalf("chatlog.txt missing broadcast line: %q", got)
	}
}
