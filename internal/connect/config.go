package connect

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/stk-tools/stkctl/internal/transport"
)

// Config defines one client's endpoint and exchange discipline.
type Config struct {
	Host string
	Port int

	// Ack gates every Send on a positive acknowledgement from the remote.
	// Disabling it sends "ConControl / AckOff" during Connect.
	Ack bool

	// Async selects the envelope framing discipline. Enabling it sends
	// "ConControl / AsyncOn" immediately after the socket connects.
	Async bool

	ConnectAttempts int
	SendAttempts    int

	// ConnectDelay is the fixed wait between connect attempts while the
	// application warms up.
	ConnectDelay time.Duration

	// ReadIdleTimeout bounds ReadUntilIdle collection for returning reports.
	ReadIdleTimeout time.Duration

	// Logger receives client diagnostics. Defaults to a no-op logger so the
	// package never writes anywhere the caller did not choose.
	Logger zerolog.Logger
}

// DefaultConfig returns the documented protocol defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5001,
		Ack:             true,
		ConnectAttempts: 5,
		SendAttempts:    1,
		ConnectDelay:    3 * time.Second,
		ReadIdleTimeout: time.Second,
		Logger:          zerolog.Nop(),
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
	if c.ConnectAttempts < 1 {
		c.ConnectAttempts = def.ConnectAttempts
	}
	if c.SendAttempts < 1 {
		c.SendAttempts = def.SendAttempts
	}
	if c.ConnectDelay <= 0 {
		c.ConnectDelay = def.ConnectDelay
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	return c
}

// Endpoint returns the transport endpoint the client dials.
func (c Config) Endpoint() transport.Endpoint {
	return transport.Endpoint{Host: c.Host, Port: c.Port}
}
