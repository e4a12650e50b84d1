package connect

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/stk-tools/stkctl/internal/connect/wire"
	"github.com/stk-tools/stkctl/internal/transport"
)

// Message is one decoded response message. Name is the command name for the
// synchronous variant and the envelope async-type for the asynchronous one.
type Message struct {
	Name string
	Data string
}

// Client is the contract shared by the two framing disciplines.
type Client interface {
	// Connect dials the endpoint with the configured retry budget, then
	// performs the variant handshake commands.
	Connect(ctx context.Context) error

	// Send writes one framed command and, when acknowledgement is enabled,
	// blocks for the variant's acknowledgement. A NACK retries the whole
	// send up to the configured budget before failing with *NackError.
	Send(command string) error

	// SingleMessage reads one length-delimited response message.
	SingleMessage() (Message, error)

	// MultiMessage reads a complete message group and returns the payloads
	// in protocol order.
	MultiMessage() ([]string, error)

	// Report sends a create-report-to-file command. No payload is read
	// beyond acknowledgement.
	Report(opts ReportOptions) error

	// ReportReturning sends a return-via-socket report command and decodes
	// the rows that arrive before the idle timeout. An empty result does
	// not distinguish "report empty" from "no data arrived in time"; the
	// protocol provides no way to tell them apart.
	ReportReturning(opts ReportOptions) ([]string, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// New builds the client variant selected by cfg.Async. The variant set is
// closed: synchronous ack framing or the asynchronous envelope, nothing else.
func New(cfg Config) Client {
	cfg = cfg.withDefaults()
	if cfg.Async {
		return newAsyncClient(cfg)
	}
	return newSyncClient(cfg)
}

// acker is the per-variant acknowledgement read. Each variant supplies its
// own; the shared send loop never inspects which variant it is driving.
type acker interface {
	readAck(command string) error
}

type base struct {
	cfg  Config
	log  zerolog.Logger
	conn *transport.Conn
	ack  acker
}

func (b *base) dial(ctx context.Context) error {
	if b.conn != nil {
		return ErrAlreadyConnected
	}
	conn, err := transport.Dial(ctx, b.cfg.Endpoint(), b.cfg.ConnectAttempts, b.cfg.ConnectDelay)
	if err != nil {
		return err
	}
	b.conn = conn
	b.log.Info().Str("addr", b.cfg.Endpoint().Addr()).Msg("connected")
	return nil
}

// Close releases the connection. Safe to call more than once.
func (b *base) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.log.Debug().Msg("connection closed")
	return err
}

// Send writes one framed command and performs the acknowledgement exchange
// when enabled, retrying the whole send on NACK up to the configured budget.
func (b *base) Send(command string) error {
	return b.send(command, b.cfg.SendAttempts)
}

func (b *base) send(command string, attempts int) error {
	if b.conn == nil {
		return ErrNotConnected
	}
	if attempts < 1 {
		attempts = 1
	}
	framed, err := wire.BuildCommand(command)
	if err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		b.log.Debug().Str("command", command).Int("attempt", attempt).Msg("send")
		if err := b.conn.Send(framed); err != nil {
			return err
		}
		if !b.cfg.Ack {
			return nil
		}
		err := b.ack.readAck(command)
		if err == nil {
			return nil
		}
		var nack *NackError
		if !errors.As(err, &nack) {
			return err
		}
		if attempt >= attempts {
			b.log.Error().Str("command", command).Int("attempts", attempt).Msg("command rejected")
			return err
		}
		b.log.Warn().Str("command", command).Msg("NACK received, retrying send")
	}
}

// handshake runs the post-dial control commands shared by both variants.
func (b *base) handshake() error {
	if !b.cfg.Ack {
		return b.Send("ConControl / AckOff")
	}
	return nil
}
