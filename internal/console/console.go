// Package console implements the interactive operator command line: a
// line-oriented reader over stdin that dispatches verbs to the addressed
// supervisor. Stdin has no cancellable read, so a buffered-reader
// goroutine feeds a channel and the console loop selects between that
// channel and its context, letting a shutdown interrupt the console even
// with no line pending.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fbaster/mcsupervisor/internal/supervisor"
)

// Target is the subset of Supervisor behavior the console depends on.
type Target interface {
	Nick() string
	Start(ctx context.Context)
	Stop(ctx context.Context)
	Restart(ctx context.Context)
	Status() supervisor.Snapshot
}

// Console reads operator commands from stdin and dispatches them.
type Console struct {
	targets map[string]Target
	order   []string
	out     io.Writer
	in      io.Reader
	log     *slog.Logger
}

// New builds a Console addressing the given targets, in the order given.
func New(targets []Target, out io.Writer, in io.Reader, log *slog.Logger) *Console {
	c := &Console{
		targets: make(map[string]Target, len(targets)),
		order:   make([]string, 0, len(targets)),
		out:     out,
		in:      in,
		log:     log,
	}
	for _, t := range targets {
		c.targets[t.Nick()] = t
		c.order = append(c.order, t.Nick())
	}
	return c
}

// Run reads and dispatches commands until ctx is cancelled or stdin
// closes. The "exit" verb delivers a SIGTERM to the process itself so
// shutdown follows the same path as an external termination signal.
func (c *Console) Run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	c.printHelp("")
	c.prompt()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if c.dispatch(ctx, line) {
				return
			}
			c.prompt()
		}
	}
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "mcsupervisor> ")
}

// dispatch handles one line; returns true if the console should stop.
func (c *Console) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.printHelp("")
		return false
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "help":
		topic := ""
		if len(args) > 0 {
			topic = args[0]
		}
		c.printHelp(topic)
	case "list":
		for _, nick := range c.order {
			fmt.Fprintln(c.out, nick)
		}
	case "start":
		c.withTarget(args, func(t Target) { t.Start(ctx) })
	case "stop":
		c.withTarget(args, func(t Target) { t.Stop(ctx) })
	case "restart":
		c.withTarget(args, func(t Target) { t.Restart(ctx) })
	case "status":
		c.withTarget(args, func(t Target) {
			s := t.Status()
			fmt.Fprintf(c.out, "desired=%v observed_online=%v responsive=%v\n", s.Desired, s.ObservedOnline, s.Responsive)
		})
	case "exit":
		c.log.Info("exit requested from console")
		_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		return true
	default:
		c.printHelp("")
	}
	return false
}

func (c *Console) withTarget(args []string, fn func(Target)) {
	if len(args) != 1 {
		c.printHelp("")
		return
	}
	t, ok := c.targets[args[0]]
	if !ok {
		fmt.Fprintf(c.out, "unknown target %q; use 'list' to see configured targets\n", args[0])
		return
	}
	fn(t)
}

func (c *Console) printHelp(topic string) {
	switch topic {
	case "start":
		fmt.Fprintln(c.out, "start <nick>  - start the named target")
	case "stop":
		fmt.Fprintln(c.out, "stop <nick>   - stop the named target")
	case "restart":
		fmt.Fprintln(c.out, "restart <nick> - restart the named target")
	case "status":
		fmt.Fprintln(c.out, "status <nick> - print the named target's state")
	case "list":
		fmt.Fprintln(c.out, "list          - print every configured nick")
	case "exit":
		fmt.Fprintln(c.out, "exit          - shut down the supervisor")
	default:
		fmt.Fprintln(c.out, "commands: help [verb] | list | start <nick> | stop <nick> | restart <nick> | status <nick> | exit")
	}
}

// NotifySignals registers for the termination signals the lifecycle root
// treats as an orderly-shutdown request, returning the channel and a
// stop function.
func NotifySignals() (chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGQUIT)
	return ch, func() { signal.Stop(ch) }
}
