package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stk-tools/stkctl/internal/launch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stkctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsWhenEmpty(t *testing.T) {
	path := writeConfig(t, "")
	ccfg, lcfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ccfg.Host != "localhost" || ccfg.Port != 5001 || !ccfg.Ack || ccfg.Async {
		t.Fatalf("connect defaults: %+v", ccfg)
	}
	if ccfg.ConnectAttempts != 5 || ccfg.SendAttempts != 1 || ccfg.ReadIdleTimeout != time.Second {
		t.Fatalf("connect budgets: %+v", ccfg)
	}
	if lcfg.PortDelta != 1000 || lcfg.RunAttempts != 1 {
		t.Fatalf("launch defaults: %+v", lcfg)
	}
	if _, ok := lcfg.Starter.(launch.LocalStarter); !ok {
		t.Fatalf("expected LocalStarter default, got %T", lcfg.Starter)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
host = "sim-host"
port = 6001
ack = false
async = true
connect_attempts = 8
send_attempts = 3
connect_delay = "500ms"
read_idle_timeout = "2s"

[launch]
install_dir = "/opt/stk"
vendor_id = "VENDOR"
port_delta = 50
run_attempts = 4
ready_timeout = "90s"
`)
	ccfg, lcfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ccfg.Host != "sim-host" || ccfg.Port != 6001 || ccfg.Ack || !ccfg.Async {
		t.Fatalf("connect overrides: %+v", ccfg)
	}
	if ccfg.ConnectAttempts != 8 || ccfg.SendAttempts != 3 {
		t.Fatalf("attempt overrides: %+v", ccfg)
	}
	if ccfg.ConnectDelay != 500*time.Millisecond || ccfg.ReadIdleTimeout != 2*time.Second {
		t.Fatalf("duration overrides: %+v", ccfg)
	}
	if lcfg.InstallDir != "/opt/stk" || lcfg.VendorID != "VENDOR" {
		t.Fatalf("launch overrides: %+v", lcfg)
	}
	if lcfg.PortDelta != 50 || lcfg.RunAttempts != 4 || lcfg.ReadyTimeout != 90*time.Second {
		t.Fatalf("launch budgets: %+v", lcfg)
	}
	if lcfg.Host != "sim-host" || lcfg.Port != 6001 {
		t.Fatalf("launch endpoint should follow top-level host/port: %+v", lcfg)
	}
}

func TestLoadConfigSSHStarter(t *testing.T) {
	path := writeConfig(t, `
[launch.ssh]
host = "sim-box"
user = "operator"
key_path = "/home/operator/.ssh/id_ed25519"
timeout = "10s"
`)
	ccfg, lcfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	starter, ok := lcfg.Starter.(launch.SSHStarter)
	if !ok {
		t.Fatalf("expected SSHStarter, got %T", lcfg.Starter)
	}
	if starter.Host != "sim-box" || starter.User != "operator" {
		t.Fatalf("starter: %+v", starter)
	}
	if starter.Timeout != 10*time.Second {
		t.Fatalf("starter timeout: %v", starter.Timeout)
	}
	if ccfg.Host != "sim-box" {
		t.Fatalf("connect host should follow the ssh host: %q", ccfg.Host)
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `connect_delay = "not-a-duration"`)
	if _, _, err := loadConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
