package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stk-tools/stkctl/internal/connect"
	"github.com/stk-tools/stkctl/internal/launch"
)

type fileConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Ack             bool   `toml:"ack"`
	Async           bool   `toml:"async"`
	ConnectAttempts int    `toml:"connect_attempts"`
	SendAttempts    int    `toml:"send_attempts"`
	ConnectDelay    string `toml:"connect_delay"`
	ReadIdleTimeout string `toml:"read_idle_timeout"`

	Launch launchFileConfig `toml:"launch"`
}

type launchFileConfig struct {
	InstallDir   string `toml:"install_dir"`
	ConfigDir    string `toml:"config_dir"`
	VendorID     string `toml:"vendor_id"`
	NoGraphics   bool   `toml:"no_graphics"`
	PortDelta    int    `toml:"port_delta"`
	RunAttempts  int    `toml:"run_attempts"`
	ReadyTimeout string `toml:"ready_timeout"`

	SSH sshFileConfig `toml:"ssh"`
}

type sshFileConfig struct {
	Host                        string `toml:"host"`
	Port                        string `toml:"port"`
	User                        string `toml:"user"`
	KeyPath                     string `toml:"key_path"`
	KnownHostsPath              string `toml:"known_hosts_path"`
	InsecureSkipHostKeyChecking bool   `toml:"insecure_skip_host_key_checking"`
	Timeout                     string `toml:"timeout"`
}

// loadConfig merges a TOML file over the documented defaults. Only keys the
// file actually defines override anything.
func loadConfig(path string) (connect.Config, launch.Config, error) {
	ccfg := connect.DefaultConfig()
	lcfg := launch.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return connect.Config{}, launch.Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("host") {
		ccfg.Host = strings.TrimSpace(raw.Host)
		lcfg.Host = ccfg.Host
	}
	if meta.IsDefined("port") {
		ccfg.Port = raw.Port
		lcfg.Port = raw.Port
	}
	if meta.IsDefined("ack") {
		ccfg.Ack = raw.Ack
	}
	if meta.IsDefined("async") {
		ccfg.Async = raw.Async
	}
	if meta.IsDefined("connect_attempts") {
		ccfg.ConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("send_attempts") {
		ccfg.SendAttempts = raw.SendAttempts
	}
	if meta.IsDefined("connect_delay") {
		d, err := parseDurationField(raw.ConnectDelay, "connect_delay")
		if err != nil {
			return connect.Config{}, launch.Config{}, err
		}
		ccfg.ConnectDelay = d
	}
	if meta.IsDefined("read_idle_timeout") {
		d, err := parseDurationField(raw.ReadIdleTimeout, "read_idle_timeout")
		if err != nil {
			return connect.Config{}, launch.Config{}, err
		}
		ccfg.ReadIdleTimeout = d
	}

	if meta.IsDefined("launch", "install_dir") {
		lcfg.InstallDir = strings.TrimSpace(raw.Launch.InstallDir)
	}
	if meta.IsDefined("launch", "config_dir") {
		lcfg.ConfigDir = strings.TrimSpace(raw.Launch.ConfigDir)
	}
	if meta.IsDefined("launch", "vendor_id") {
		lcfg.VendorID = strings.TrimSpace(raw.Launch.VendorID)
	}
	if meta.IsDefined("launch", "no_graphics") {
		lcfg.NoGraphics = raw.Launch.NoGraphics
	}
	if meta.IsDefined("launch", "port_delta") {
		lcfg.PortDelta = raw.Launch.PortDelta
	}
	if meta.IsDefined("launch", "run_attempts") {
		lcfg.RunAttempts = raw.Launch.RunAttempts
	}
	if meta.IsDefined("launch", "ready_timeout") {
		d, err := parseDurationField(raw.Launch.ReadyTimeout, "launch.ready_timeout")
		if err != nil {
			return connect.Config{}, launch.Config{}, err
		}
		lcfg.ReadyTimeout = d
	}

	if meta.IsDefined("launch", "ssh", "host") {
		starter := launch.SSHStarter{
			Host:                        strings.TrimSpace(raw.Launch.SSH.Host),
			Port:                        strings.TrimSpace(raw.Launch.SSH.Port),
			User:                        strings.TrimSpace(raw.Launch.SSH.User),
			KeyPath:                     strings.TrimSpace(raw.Launch.SSH.KeyPath),
			KnownHostsPath:              strings.TrimSpace(raw.Launch.SSH.KnownHostsPath),
			InsecureSkipHostKeyChecking: raw.Launch.SSH.InsecureSkipHostKeyChecking,
		}
		if meta.IsDefined("launch", "ssh", "timeout") {
			d, err := parseDurationField(raw.Launch.SSH.Timeout, "launch.ssh.timeout")
			if err != nil {
				return connect.Config{}, launch.Config{}, err
			}
			starter.Timeout = d
		}
		lcfg.Starter = starter
		// A remotely launched instance is reached at the SSH host unless
		// the file says otherwise.
		if !meta.IsDefined("host") {
			ccfg.Host = starter.Host
			lcfg.Host = starter.Host
		}
	}

	return ccfg, lcfg, nil
}

func parseDurationField(raw, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
