// Package session wraps the GNU screen invocations documented for this
// system as a narrow Go interface: start a detachable session running a
// script, inject keystrokes into it, tear it down, and enable a
// multi-user ACL. Every capability is one shelled-out argv, never a shell
// string, via internal/shellexec.
package session

import (
	"context"
	"fmt"

	"github.com/fbaster/mcsupervisor/internal/shellexec"
)

// Adapter drives named screen sessions.
type Adapter struct{}

// New builds an Adapter.
func New() *Adapter { return &Adapter{} }

// Start creates a detached session named nick running script (relative to
// dir) as its sole program: `screen -d -m -S <nick> <dir>/<script>`.
func (a *Adapter) Start(ctx context.Context, nick, dir, script string) error {
	path := dir + "/" + script
	res, err := shellexec.Run(ctx, "screen", "-d", "-m", "-S", nick, path)
	if err != nil {
		return fmt.Errorf("start session %s: %w", nick, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("start session %s: screen exited %d: %s", nick, res.ExitCode, res.Stderr)
	}
	return nil
}

// Inject sends text as keystrokes into the session, bracketed by carriage
// returns: `screen -p 0 -S <nick> -X stuff "<CR><text><CR>"`.
func (a *Adapter) Inject(ctx context.Context, nick, text string) error {
	payload := "\r" + text + "\r"
	res, err := shellexec.Run(ctx, "screen", "-p", "0", "-S", nick, "-X", "stuff", payload)
	if err != nil {
		return fmt.Errorf("inject into session %s: %w", nick, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("inject into session %s: screen exited %d: %s", nick, res.ExitCode, res.Stderr)
	}
	return nil
}

// Quit terminates the named session: `screen -S <nick> -X quit`. A
// missing session is not an error — quit is always safe to call before a
// fresh start.
func (a *Adapter) Quit(ctx context.Context, nick string) error {
	_, err := shellexec.Run(ctx, "screen", "-S", nick, "-X", "quit")
	if err != nil {
		return fmt.Errorf("quit session %s: %w", nick, err)
	}
	return nil
}

// EnableMultiUser turns on the session's multi-user ACL:
// `screen -S <nick> -X multiuser on`.
func (a *Adapter) EnableMultiUser(ctx context.Context, nick string) error {
	res, err := shellexec.Run(ctx, "screen", "-S", nick, "-X", "multiuser", "on")
	if err != nil {
		return fmt.Errorf("enable multiuser on %s: %w", nick, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("enable multiuser on %s: screen exited %d: %s", nick, res.ExitCode, res.Stderr)
	}
	return nil
}

// AddAuthorisedUser grants user access to the session's ACL:
// `screen -S <nick> -X acladd <user>`.
func (a *Adapter) AddAuthorisedUser(ctx context.Context, nick, user string) error {
	res, err := shellexec.Run(ctx, "screen", "-S", nick, "-X", "acladd", user)
	if err != nil {
		return fmt.Errorf("acladd %s on %s: %w", user, nick, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("acladd %s on %s: screen exited %d: %s", user, nick, res.ExitCode, res.Stderr)
	}
	return nil
}
