package connect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stk-tools/stkctl/internal/connect/wire"
)

// SyncClient speaks the synchronous discipline: a 3-byte acknowledgement
// token per command and 40-byte ASCII query headers on responses.
type SyncClient struct {
	base
}

func newSyncClient(cfg Config) *SyncClient {
	c := &SyncClient{base: base{cfg: cfg, log: cfg.Logger}}
	c.base.ack = c
	return c
}

// Connect dials the endpoint and disables acknowledgement when configured.
func (c *SyncClient) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	return c.handshake()
}

// readAck consumes the 3-byte token. A NACK carries exactly one status byte
// behind the token; the protocol never declares its width, so a remote that
// ever sends a multi-byte code would desynchronize the stream. That
// fragility is inherited from the protocol and deliberately not papered
// over here.
func (c *SyncClient) readAck(command string) error {
	token, err := c.conn.ReadExact(wire.AckTokenLen)
	if err != nil {
		return err
	}
	ack, err := wire.ParseAckToken(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if ack == wire.AckNegative {
		code, err := c.conn.ReadExact(1)
		if err != nil {
			return err
		}
		return &NackError{Command: command, Code: string(code)}
	}
	c.log.Debug().Str("command", command).Msg("ACK received")
	return nil
}

// SingleMessage reads one 40-byte query header and its declared-length body.
func (c *SyncClient) SingleMessage() (Message, error) {
	if c.conn == nil {
		return Message{}, ErrNotConnected
	}
	header, err := c.conn.ReadExact(wire.SyncHeaderLen)
	if err != nil {
		return Message{}, err
	}
	name, length, err := wire.ParseSyncHeader(header)
	if err != nil {
		return Message{}, err
	}
	data, err := c.conn.ReadExact(length)
	if err != nil {
		return Message{}, err
	}
	return Message{Name: name, Data: string(data)}, nil
}

// MultiMessage reads a count message followed by that many single messages.
func (c *SyncClient) MultiMessage() ([]string, error) {
	first, err := c.SingleMessage()
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(first.Data))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("%w: multi-message count %q", ErrProtocol, first.Data)
	}
	messages := make([]string, 0, count)
	for i := 0; i < count; i++ {
		msg, err := c.SingleMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg.Data)
	}
	return messages, nil
}

