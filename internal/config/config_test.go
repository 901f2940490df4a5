package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
targets:
  - nick: survival
    path: /srv/survival
    jar: survival.jar
    start_script: start.sh
    start_server: true
    enable_responsiveness_check: true
    hostname: 127.0.0.1
    port: 25565
history:
  dsn: ""
metrics:
  enabled: true
  listen: "127.0.0.1:8080"
log:
  dir: /var/log/mcsupervisor
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Targets) != 1 {
		t.Fatalf("len(Targets) = %d, want 1", len(cfg.Targets))
	}
	if cfg.Targets[0].Nick != "survival" {
		t.Fatalf("Nick = %q, want survival", cfg.Targets[0].Nick)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:8080" {
		t.Fatalf("unexpected metrics config: %+v", cfg.Metrics)
	}
}

func TestLoadRejectsNoTargets(t *testing.T) {
	path := writeConfig(t, `targets: []`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load with no targets should fail")
	}
}

func TestLoadRejectsDuplicateNick(t *testing.T) {
	path := writeConfig(t, `
targets:
  - nick: a
    path: /srv/a
    jar: a.jar
  - nick: a
    path: /srv/b
    jar: b.jar
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load with duplicate nick should fail")
	}
}

func TestLoadRejectsDuplicateJar(t *testing.T) {
	path := writeConfig(t, `
targets:
  - nick: a
    path: /srv/a
    jar: shared.jar
  - nick: b
    path: /srv/b
    jar: shared.jar
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load with duplicate jar should fail")
	}
}

func TestLoadRequiresHostPortWhenResponsivenessCheckEnabled(t *testing.T) {
	path := writeConfig(t, `
targets:
  - nick: a
    path: /srv/a
    jar: a.jar
    enable_responsiveness_check: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail when responsiveness checking is enabled without hostname/port")
	}
}

func TestLoadRequiresAuthorisedAccountsWhenMultiuserEnabled(t *testing.T) {
	path := writeConfig(t, `
targets:
  - nick: a
    path: /srv/a
    jar: a.jar
    multiuser_enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load should fail when multiuser is enabled without authorised_accounts")
	}
}

func TestRestartPeriodDuration(t *testing.T) {
	tc := TargetConfig{RestartPeriod: 3600}
	if got := tc.RestartPeriodDuration(); got != time.Hour {
		t.Fatalf("RestartPeriodDuration() = %v, want 1h", got)
	}

	zero := TargetConfig{}
	if got := zero.RestartPeriodDuration(); got != 0 {
		t.Fatalf("RestartPeriodDuration() with unset period = %v, want 0", got)
	}
}
