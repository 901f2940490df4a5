package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fbaster/mcsupervisor/internal/config"
	"github.com/fbaster/mcsupervisor/internal/console"
	"github.com/fbaster/mcsupervisor/internal/history"
	"github.com/fbaster/mcsupervisor/internal/history/factory"
	"github.com/fbaster/mcsupervisor/internal/httpapi"
	"github.com/fbaster/mcsupervisor/internal/liveness"
	"github.com/fbaster/mcsupervisor/internal/logger"
	"github.com/fbaster/mcsupervisor/internal/metrics"
	"github.com/fbaster/mcsupervisor/internal/procinspect"
	"github.com/fbaster/mcsupervisor/internal/scheduler"
	"github.com/fbaster/mcsupervisor/internal/session"
	"github.com/fbaster/mcsupervisor/internal/supervisor"
	"github.com/fbaster/mcsupervisor/internal/transcript"
	"github.com/fbaster/mcsupervisor/pkg/client"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "mcsupervisor",
		Short: "Supervise a fleet of Minecraft-style JVM game servers",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML, TOML or JSON)")

	cmdServe := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor: start the scheduler, every target, and the operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("serve requires --config")
			}
			return serve(configPath)
		},
	}

	var remoteAddr string
	var statusNick string
	cmdStatus := &cobra.Command{
		Use:   "status",
		Short: "Query a running supervisor's status over its read-only HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryStatus(remoteAddr, statusNick)
		},
	}
	cmdStatus.Flags().StringVar(&remoteAddr, "addr", "http://localhost:8080", "base URL of the running supervisor's status surface")
	cmdStatus.Flags().StringVar(&statusNick, "nick", "", "restrict to a single target's nick (optional)")

	root.AddCommand(cmdServe, cmdStatus)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serveTarget bundles a Supervisor with the settings of its transcript
// watcher (whether to run one, and on which directory), so the lifecycle
// root can treat every configured target uniformly.
type serveTarget struct {
	sv         *supervisor.Supervisor
	transcribe bool
	path       string
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Dir: cfg.Log.Dir, Level: slog.LevelInfo})

	sink, err := buildSink(cfg.History.DSN, log)
	if err != nil {
		return fmt.Errorf("build history sink: %w", err)
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn("history sink close failed", "error", err)
			}
		}()
	}

	sched := scheduler.New()
	insp := procinspect.New()
	sess := session.New()
	prober := liveness.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	targets := make([]serveTarget, 0, len(cfg.Targets))
	httpTargets := make([]httpapi.Target, 0, len(cfg.Targets))
	consoleTargets := make([]console.Target, 0, len(cfg.Targets))

	for _, tc := range cfg.Targets {
		sv := supervisor.New(ctx, tc, sched, insp, sess, prober, sink, log)
		targets = append(targets, serveTarget{sv: sv, transcribe: tc.EnableChatlog, path: tc.Path})
		httpTargets = append(httpTargets, sv)
		consoleTargets = append(consoleTargets, sv)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	var wg sync.WaitGroup

	if cfg.Metrics.Enabled {
		addr := cfg.Metrics.Listen
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		srv := httpapi.NewServer(addr, httpTargets)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(); err != nil {
				log.Warn("status http server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	for _, t := range targets {
		if !t.transcribe {
			continue
		}
		tr := transcript.New(t.path, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.Run(ctx); err != nil {
				log.Warn("transcript watcher stopped", "path", t.path, "error", err)
			}
		}()
	}

	for _, t := range targets {
		t.sv.ScheduleInitialTick()
	}

	con := console.New(consoleTargets, os.Stdout, os.Stdin, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		con.Run(ctx)
		cancel()
	}()

	sigCh, stopNotify := console.NotifySignals()
	defer stopNotify()
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("shutting down on signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	sched.Run(ctx)
	wg.Wait()
	return nil
}

func buildSink(dsn string, log *slog.Logger) (history.Sink, error) {
	if dsn == "" {
		return nil, nil
	}
	s, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		log.Warn("history sink disabled: could not build from dsn", "error", err)
		return nil, nil
	}
	return s, nil
}

func queryStatus(addr, nick string) error {
	c := client.New(client.Config{BaseURL: addr, Timeout: 5 * time.Second})
	ctx := context.Background()

	if nick != "" {
		st, err := c.StatusOf(ctx, nick)
		if err != nil {
			return err
		}
		return printJSON(st)
	}

	all, err := c.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(all)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
