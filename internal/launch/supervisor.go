package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stk-tools/stkctl/internal/transport"
)

// Config defines one supervised application launch.
type Config struct {
	Host       string
	Port       int
	VendorID   string
	NoGraphics bool

	// InstallDir and ConfigDir fall back to DefaultInstallDir and
	// DefaultConfigDir when empty.
	InstallDir string
	ConfigDir  string

	// PortDelta is added to the port after a bind failure before the next
	// run attempt.
	PortDelta int

	// RunAttempts bounds how many times the application is started.
	RunAttempts int

	// ReadyTimeout bounds how long one attempt waits for a sentinel line.
	ReadyTimeout time.Duration

	Starter Starter
	Logger  zerolog.Logger
}

// DefaultConfig returns the documented launch defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         5001,
		PortDelta:    1000,
		RunAttempts:  1,
		NoGraphics:   true,
		ReadyTimeout: 60 * time.Second,
		Starter:      LocalStarter{},
		Logger:       zerolog.Nop(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.PortDelta == 0 {
		c.PortDelta = def.PortDelta
	}
	if c.RunAttempts < 1 {
		c.RunAttempts = def.RunAttempts
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = def.ReadyTimeout
	}
	if c.Starter == nil {
		c.Starter = def.Starter
	}
	return c
}

// Supervisor starts the application and watches its diagnostic stream until
// the socket is ready or the attempt budget runs out.
type Supervisor struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	return &Supervisor{cfg: cfg, log: cfg.Logger}
}

// App is a running, socket-ready application instance.
type App struct {
	Endpoint transport.Endpoint

	proc  Process
	lines <-chan string
	log   zerolog.Logger
}

// Start launches the application. A bind failure shifts the port by
// PortDelta and retries; a license failure is fatal immediately.
func (s *Supervisor) Start(ctx context.Context) (*App, error) {
	cfg := s.cfg
	if cfg.InstallDir == "" {
		dir, err := DefaultInstallDir()
		if err != nil {
			return nil, err
		}
		cfg.InstallDir = dir
	}
	if cfg.ConfigDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.ConfigDir = dir
	}

	port := cfg.Port
	var lastErr error
	for attempt := 1; attempt <= cfg.RunAttempts; attempt++ {
		log := s.log.With().
			Str("launch_id", uuid.NewString()).
			Int("attempt", attempt).
			Int("port", port).
			Logger()
		log.Info().Msg("starting application")

		app, err := s.startOnce(ctx, log, cfg, port)
		if err == nil {
			return app, nil
		}
		lastErr = err
		switch {
		case errors.Is(err, ErrLicense):
			return nil, err
		case errors.Is(err, ErrBind):
			log.Warn().Int("next_port", port+cfg.PortDelta).Msg("bind failed, shifting port")
			port += cfg.PortDelta
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			log.Warn().Err(err).Msg("launch attempt failed")
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, cfg.RunAttempts, lastErr)
}

func (s *Supervisor) startOnce(ctx context.Context, log zerolog.Logger, cfg Config, port int) (*App, error) {
	spec := AppSpec{
		InstallDir: cfg.InstallDir,
		ConfigDir:  cfg.ConfigDir,
		Port:       port,
		VendorID:   cfg.VendorID,
		NoGraphics: cfg.NoGraphics,
	}
	proc, stderr, err := cfg.Starter.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	lines := make(chan string, 64)
	go drainLines(stderr, lines)

	deadline := time.NewTimer(cfg.ReadyTimeout)
	defer deadline.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				_ = proc.Kill()
				return nil, fmt.Errorf("%w: diagnostic stream closed", ErrNotReady)
			}
			log.Debug().Str("line", line).Msg("application output")
			switch {
			case strings.Contains(line, licenseMarker):
				_ = proc.Kill()
				return nil, ErrLicense
			case strings.Contains(line, bindMarker):
				_ = proc.Kill()
				return nil, fmt.Errorf("%w: port %d", ErrBind, port)
			case strings.Contains(line, readyMarker):
				log.Info().Msg("application accepting connection requests")
				return &App{
					Endpoint: transport.Endpoint{Host: cfg.Host, Port: port},
					proc:     proc,
					lines:    lines,
					log:      log,
				}, nil
			}
		case <-deadline.C:
			_ = proc.Kill()
			return nil, fmt.Errorf("%w: no ready marker within %s", ErrNotReady, cfg.ReadyTimeout)
		case <-ctx.Done():
			_ = proc.Kill()
			return nil, ctx.Err()
		}
	}
}

// drainLines moves diagnostic lines from the stream into the channel so
// readiness polling never blocks on the child's stderr. When the channel is
// full the oldest queued line is dropped; a wedged consumer must never back
// up into the child's stderr pipe.
func drainLines(r io.ReadCloser, lines chan string) {
	defer close(lines)
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		for {
			select {
			case lines <- line:
			default:
				select {
				case <-lines:
				default:
				}
				continue
			}
			break
		}
	}
}

// DumpErrors logs whatever diagnostic lines are queued without blocking.
// Called after a command rejection to surface what the application said.
func (a *App) DumpErrors() {
	for {
		select {
		case line, ok := <-a.lines:
			if !ok {
				return
			}
			a.log.Error().Str("line", line).Msg("application said")
		default:
			return
		}
	}
}

// Close kills the application process.
func (a *App) Close() error {
	if a.proc == nil {
		return nil
	}
	err := a.proc.Kill()
	a.proc = nil
	return err
}
