// Package supervisor implements the per-target state machine: the
// reconciliation between a desired state (online/offline) and the
// observed state of a detached JVM, driven by periodic ticks from the
// shared scheduler and by direct operator/console calls. Public methods
// call into each other (stop sends a command, restart stops then starts),
// so each public entry point takes the lock once and dispatches to
// unexported *Locked helpers that assume it is already held.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fbaster/mcsupervisor/internal/config"
	"github.com/fbaster/mcsupervisor/internal/history"
	"github.com/fbaster/mcsupervisor/internal/metrics"
	"github.com/fbaster/mcsupervisor/internal/procinspect"
	"github.com/fbaster/mcsupervisor/internal/scheduler"
)

const (
	tickInterval       = 60 * time.Second
	tickPriority       = 0
	warningPriority    = 0
	stopPollInterval   = 5 * time.Second
	stopPollMax        = 12 // 12 * 5s = 60s
	cullTermWait       = 30 * time.Second
	cullTermPollEvery  = 1 * time.Second
	cullPauseAfterKill = 5 * time.Second
	flapSampleCount    = 10
	flapThreshold      = 3
	sendCommandDelay   = 1 * time.Second
	postStartSettle    = 5 * time.Second
	historySendTimeout = 2 * time.Second
)

// ProcessInspector is the subset of *procinspect.Inspector the supervisor
// depends on, narrowed to an interface so tests can substitute a fake.
type ProcessInspector interface {
	ListPIDs(ctx context.Context, pattern string) ([]int, error)
	List(ctx context.Context, pattern string) ([]procinspect.Process, error)
	Terminate(pid int) error
	Kill(pid int) error
	Alive(pid int) bool
	KillByPattern(ctx context.Context, pattern string) error
}

// SessionAdapter is the subset of *session.Adapter the supervisor depends
// on, narrowed to an interface so tests can substitute a fake.
type SessionAdapter interface {
	Start(ctx context.Context, nick, dir, script string) error
	Inject(ctx context.Context, nick, text string) error
	Quit(ctx context.Context, nick string) error
	EnableMultiUser(ctx context.Context, nick string) error
	AddAuthorisedUser(ctx context.Context, nick, user string) error
}

// LivenessProber is the subset of *liveness.Prober the supervisor depends
// on, narrowed to an interface so tests can substitute a fake.
type LivenessProber interface {
	Probe(host string, port int) bool
}

// Snapshot is a read-only, value-copy projection of a supervisor's state,
// safe to hand to an HTTP handler or the console without holding any lock.
type Snapshot struct {
	Nick           string
	Desired        bool
	ObservedOnline bool
	Responsive     bool
	Restarts       int
	LastTick       time.Time
}

// Supervisor owns one target's desired state, its restart group, and the
// collaborators needed to reconcile desired against observed state.
type Supervisor struct {
	cfg    config.TargetConfig
	sched  *scheduler.Scheduler
	insp   ProcessInspector
	sess   SessionAdapter
	prober LivenessProber
	sink   history.Sink
	log    *slog.Logger

	mu                 sync.Mutex
	desired            bool
	restartEvents      []scheduler.Handle
	lastObservedOnline bool
	lastResponsive     bool
	restarts           int
	lastTick           time.Time
}

// New constructs a Supervisor for cfg. Initial desired state is Online
// when the config requests start-at-launch, or when a matching process is
// already observed running (e.g. after a supervisor restart); otherwise
// Offline. Construction never launches or stops anything.
func New(ctx context.Context, cfg config.TargetConfig, sched *scheduler.Scheduler, insp ProcessInspector, sess SessionAdapter, prober LivenessProber, sink history.Sink, log *slog.Logger) *Supervisor {
	if sink == nil {
		sink = history.NopSink{}
	}
	sv := &Supervisor{
		cfg:    cfg,
		sched:  sched,
		insp:   insp,
		sess:   sess,
		prober: prober,
		sink:   sink,
		log:    log.With("nick", cfg.Nick),
	}

	observed, _ := sv.observedCountLocked(ctx)
	sv.desired = cfg.StartServer || observed > 0
	return sv
}

// Nick returns the target's identifier.
func (sv *Supervisor) Nick() string { return sv.cfg.Nick }

// GetConfig resolves a small set of reserved keys ("nick", "jar",
// "restartPeriodSeconds") against the target's immutable config; any other
// key reports false.
func (sv *Supervisor) GetConfig(key string) (string, bool) {
	switch key {
	case "nick":
		return sv.cfg.Nick, true
	case "jar":
		return sv.cfg.Jar, true
	case "restartPeriodSeconds":
		return fmt.Sprintf("%d", sv.cfg.RestartPeriod), true
	default:
		return "", false
	}
}

// Status returns a value-copy snapshot of the supervisor's current state.
func (sv *Supervisor) Status() Snapshot {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.snapshotLocked()
}

func (sv *Supervisor) snapshotLocked() Snapshot {
	return Snapshot{
		Nick:           sv.cfg.Nick,
		Desired:        sv.desired,
		ObservedOnline: sv.lastObservedOnline,
		Responsive:     sv.lastResponsive,
		Restarts:       sv.restarts,
		LastTick:       sv.lastTick,
	}
}

// Start launches the target if it is currently offline with no observed
// process. A precondition violation logs a warning and is a no-op.
func (sv *Supervisor) Start(ctx context.Context) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.startLocked(ctx)
}

// Stop stops the target if it is currently online. Idempotent: stopping
// an already-offline target logs a warning and is a no-op.
func (sv *Supervisor) Stop(ctx context.Context) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.stopLocked(ctx)
}

// Restart broadcasts a warning, then stops, then starts, all atomically
// under the supervisor's lock.
func (sv *Supervisor) Restart(ctx context.Context) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.restartLocked(ctx)
}

// SendCommand injects text into the target's session, after a short
// anti-flood delay between keystroke injections.
func (sv *Supervisor) SendCommand(ctx context.Context, text string) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.sendCommandLocked(ctx, text)
}

func (sv *Supervisor) sendCommandLocked(ctx context.Context, text string) {
	sleep(ctx, sendCommandDelay)
	if err := sv.sess.Inject(ctx, sv.cfg.Nick, text); err != nil {
		sv.log.Warn("send command failed", "error", err)
	}
}

func (sv *Supervisor) startLocked(ctx context.Context) {
	observed, err := sv.observedCountLocked(ctx)
	if err != nil {
		sv.log.Warn("start: could not determine observed state", "error", err)
	}
	if sv.desired || observed > 0 {
		sv.log.Warn("start: precondition failed, ignoring", "desired_online", sv.desired, "observed_count", observed)
		return
	}
	sv.launchLocked(ctx)
}

// launchLocked brings the target up unconditionally. It is the shared
// body of the operator-facing start (which guards it with the
// offline-and-unobserved precondition) and of the tick's crash recovery
// and restart paths, where desired is already Online and a dead process
// must be relaunched regardless.
func (sv *Supervisor) launchLocked(ctx context.Context) {
	if err := sv.sess.Quit(ctx, sv.cfg.Nick); err != nil {
		sv.log.Debug("start: quitting stale session failed", "error", err)
	}
	// A failed launch still flips desired to Online below: the next tick
	// observes zero processes and retries the launch.
	if err := sv.sess.Start(ctx, sv.cfg.Nick, sv.cfg.Path, sv.cfg.StartScript); err != nil {
		sv.log.Error("start: launching session failed", "error", err)
	}

	if sv.cfg.MultiuserEnabled {
		if err := sv.sess.EnableMultiUser(ctx, sv.cfg.Nick); err != nil {
			sv.log.Warn("start: enabling multiuser failed", "error", err)
		}
		for _, acct := range sv.cfg.AuthorisedAccounts {
			if err := sv.sess.AddAuthorisedUser(ctx, sv.cfg.Nick, acct); err != nil {
				sv.log.Warn("start: acladd failed", "account", acct, "error", err)
			}
		}
	}

	sv.desired = true
	sleep(ctx, postStartSettle)

	sv.recordEvent(ctx, history.EventStart, "")
	metrics.SetDesiredOnline(sv.cfg.Nick, true)

	sv.scheduleRestartsLocked(ctx)
}

func (sv *Supervisor) stopLocked(ctx context.Context) {
	if !sv.desired {
		sv.log.Warn("stop: precondition failed (already offline), ignoring")
		return
	}

	sv.cancelRestartEventsLocked()
	sv.sendCommandLocked(ctx, "stop")
	sv.desired = false
	metrics.SetDesiredOnline(sv.cfg.Nick, false)

	stillOnline := true
	for i := 0; i < stopPollMax; i++ {
		sleep(ctx, stopPollInterval)
		count, err := sv.observedCountLocked(ctx)
		if err == nil && count == 0 {
			stillOnline = false
			break
		}
	}

	if stillOnline {
		if err := sv.insp.KillByPattern(ctx, sv.cfg.Jar); err != nil {
			sv.log.Error("stop: kill by pattern failed", "error", err)
		}
	}

	sv.recordEvent(ctx, history.EventStop, "")
}

func (sv *Supervisor) restartLocked(ctx context.Context) {
	sv.sendCommandLocked(ctx, "say Server is restarting, see you soon!")
	sv.stopLocked(ctx)
	sv.launchLocked(ctx)
	sv.restarts++
	metrics.IncRestart(sv.cfg.Nick)
	sv.recordEvent(ctx, history.EventRestart, "")
}

func (sv *Supervisor) observedCountLocked(ctx context.Context) (int, error) {
	pids, err := sv.insp.ListPIDs(ctx, sv.cfg.Jar)
	if err != nil {
		return 0, err
	}
	return len(pids), nil
}

// ScheduleInitialTick arms the supervisor's first check, per the
// lifecycle root's requirement to run an immediate (delay 0) first check
// for every target at startup.
func (sv *Supervisor) ScheduleInitialTick() {
	sv.sched.Enter(0, tickPriority, sv.onTick)
}

func (sv *Supervisor) onTick(ctx context.Context, _ *scheduler.Scheduler) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.tickLocked(ctx)
	sv.sched.Enter(tickInterval, tickPriority, sv.onTick)
}

func (sv *Supervisor) tickLocked(ctx context.Context) {
	sv.lastTick = time.Now()
	metrics.IncTick(sv.cfg.Nick)
	sv.recordEvent(ctx, history.EventTick, "")

	sv.cullLocked(ctx)

	procs, err := sv.insp.List(ctx, sv.cfg.Jar)
	if err != nil {
		sv.log.Warn("tick: listing processes failed", "error", err)
		return
	}
	observed := len(procs)
	sv.lastObservedOnline = observed > 0
	metrics.SetOnline(sv.cfg.Nick, observed > 0)

	switch {
	case sv.desired && observed == 0:
		sv.launchLocked(ctx)
	case sv.desired && observed == 1:
		sv.checkResponsivenessLocked(ctx, procs[0])
	case !sv.desired && observed > 0:
		sv.stopLocked(ctx)
	default:
		// Offline, observed=0: no action.
	}
}

func (sv *Supervisor) cullLocked(ctx context.Context) {
	for {
		procs, err := sv.insp.List(ctx, sv.cfg.Jar)
		if err != nil || len(procs) <= 1 {
			return
		}

		victim, ok := procinspect.LatestStart(procs)
		if !ok {
			return
		}
		sv.log.Warn("culling duplicate process", "pid", victim.PID, "cmdline", victim.CmdLine)

		if err := sv.insp.Terminate(victim.PID); err != nil {
			sv.log.Warn("cull: terminate failed", "pid", victim.PID, "error", err)
		}

		deadline := time.Now().Add(cullTermWait)
		for time.Now().Before(deadline) {
			sleep(ctx, cullTermPollEvery)
			if !sv.insp.Alive(victim.PID) {
				break
			}
		}
		if sv.insp.Alive(victim.PID) {
			if err := sv.insp.Kill(victim.PID); err != nil {
				sv.log.Warn("cull: kill failed", "pid", victim.PID, "error", err)
			}
		}
		metrics.IncCulled(sv.cfg.Nick)
		sv.recordEvent(ctx, history.EventCull, fmt.Sprintf("pid %d", victim.PID))

		sleep(ctx, cullPauseAfterKill)
	}
}

func (sv *Supervisor) checkResponsivenessLocked(ctx context.Context, proc procinspect.Process) {
	if !sv.cfg.EnableResponsivenessCheck {
		return
	}
	uptime := time.Since(proc.StartedAt)
	if uptime <= time.Duration(sv.cfg.StartupTimeSeconds)*time.Second {
		return
	}

	ok := sv.prober.Probe(sv.cfg.Hostname, sv.cfg.Port)
	sv.lastResponsive = ok
	metrics.SetResponsive(sv.cfg.Nick, ok)
	if ok {
		return
	}

	failures := 0
	for i := 0; i < flapSampleCount; i++ {
		sleep(ctx, 5*time.Second)
		sample := sv.prober.Probe(sv.cfg.Hostname, sv.cfg.Port)
		sv.lastResponsive = sample
		metrics.SetResponsive(sv.cfg.Nick, sample)
		if !sample {
			failures++
			if failures >= flapThreshold {
				break
			}
		}
	}

	if failures >= flapThreshold {
		sv.recordEvent(ctx, history.EventProbeFailed, fmt.Sprintf("%d/%d follow-up probes failed", failures, flapSampleCount))
		sv.restartLocked(ctx)
	}
}

// scheduleRestartsLocked arms the target's restart group: three warnings
// and a restart, computed either from the normal or the overdue schedule
// described for this system.
func (sv *Supervisor) scheduleRestartsLocked(ctx context.Context) {
	if !sv.cfg.EnableAutomatedRestarts || !sv.desired || len(sv.restartEvents) != 0 {
		return
	}

	period := sv.cfg.RestartPeriodDuration()
	if period <= 0 {
		return
	}

	procs, err := sv.insp.List(ctx, sv.cfg.Jar)
	if err != nil || len(procs) != 1 {
		return // next tick retries
	}
	uptime := time.Since(procs[0].StartedAt)
	if uptime < 0 {
		uptime = 0
	}

	overdueThreshold := period - 10*time.Minute

	var delays [4]time.Duration // warn-10, warn-5, warn-1, restart
	if uptime >= overdueThreshold {
		delays = [4]time.Duration{0, 5 * time.Minute, 9 * time.Minute, 10 * time.Minute}
	} else {
		remaining := period - uptime
		delays = [4]time.Duration{
			remaining - 10*time.Minute,
			remaining - 5*time.Minute,
			remaining - 1*time.Minute,
			remaining,
		}
	}

	minutesFor := [3]int{10, 5, 1}
	for i, m := range minutesFor {
		minutes := m
		h := sv.sched.Enter(delays[i], warningPriority, func(ctx context.Context, _ *scheduler.Scheduler) {
			sv.mu.Lock()
			defer sv.mu.Unlock()
			sv.sendCommandLocked(ctx, warningText(minutes))
		})
		sv.restartEvents = append(sv.restartEvents, h)
	}

	restartHandle := sv.sched.Enter(delays[3], warningPriority, func(ctx context.Context, _ *scheduler.Scheduler) {
		sv.mu.Lock()
		defer sv.mu.Unlock()
		sv.restartEvents = nil
		sv.restartLocked(ctx)
	})
	sv.restartEvents = append(sv.restartEvents, restartHandle)
}

func (sv *Supervisor) cancelRestartEventsLocked() {
	for _, h := range sv.restartEvents {
		_ = sv.sched.Cancel(h) // ErrUnknownHandle is a silent no-op
	}
	sv.restartEvents = nil
}

func (sv *Supervisor) recordEvent(ctx context.Context, kind history.EventKind, detail string) {
	observed, _ := sv.observedCountLocked(ctx)
	evt := history.Event{
		Nick:           sv.cfg.Nick,
		Kind:           kind,
		Desired:        sv.desired,
		ObservedOnline: observed > 0,
		Detail:         detail,
		OccurredAt:     time.Now(),
	}
	sendCtx, cancel := context.WithTimeout(context.Background(), historySendTimeout)
	defer cancel()
	if err := sv.sink.Send(sendCtx, evt); err != nil {
		sv.log.Warn("history sink send failed", "kind", kind, "error", err)
	}
}

func warningText(minutes int) string {
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("say An automated restart will occur in %d %s.", minutes, unit)
}

// sleep blocks for d or until ctx is cancelled, whichever comes first. It is
// a package variable, not a plain function, so tests can substitute a
// no-op to drive the flap/cull/stop polling loops without waiting in
// real time.
var sleep = func(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
