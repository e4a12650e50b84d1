package connect

import (
	"context"
	"fmt"

	"github.com/stk-tools/stkctl/internal/connect/wire"
)

// AsyncClient speaks the envelope discipline: every response, including
// acknowledgements, arrives wrapped in a 42-byte self-describing header.
type AsyncClient struct {
	base
}

func newAsyncClient(cfg Config) *AsyncClient {
	c := &AsyncClient{base: base{cfg: cfg, log: cfg.Logger}}
	c.base.ack = c
	return c
}

// Connect dials the endpoint and switches the remote into envelope framing
// before any other traffic. The mode switch is part of the connection
// contract, not an optional extra: responses are unreadable without it.
func (c *AsyncClient) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	if err := c.Send("ConControl / AsyncOn"); err != nil {
		return err
	}
	return c.handshake()
}

// readEnvelope reads one envelope header and its declared-length payload.
func (c *AsyncClient) readEnvelope() (wire.AsyncHeader, string, error) {
	raw, err := c.conn.ReadExact(wire.AsyncHeaderLen)
	if err != nil {
		return wire.AsyncHeader{}, "", err
	}
	header, err := wire.ParseAsyncHeader(raw)
	if err != nil {
		return wire.AsyncHeader{}, "", err
	}
	data, err := c.conn.ReadExact(header.DataLength)
	if err != nil {
		return wire.AsyncHeader{}, "", err
	}
	return header, string(data), nil
}

func (c *AsyncClient) readAck(command string) error {
	header, _, err := c.readEnvelope()
	if err != nil {
		return err
	}
	switch header.AsyncType {
	case "ACK":
		c.log.Debug().Str("command", command).Msg("ACK envelope received")
		return nil
	case "NACK":
		return &NackError{Command: command}
	}
	return fmt.Errorf("%w: expected ACK or NACK envelope, got type %q", ErrProtocol, header.AsyncType)
}

// SingleMessage reads one envelope and returns its payload.
func (c *AsyncClient) SingleMessage() (Message, error) {
	if c.conn == nil {
		return Message{}, ErrNotConnected
	}
	header, data, err := c.readEnvelope()
	if err != nil {
		return Message{}, err
	}
	return Message{Name: header.AsyncType, Data: data}, nil
}

// MultiMessage reads a complete message group. Packets are placed by their
// packet-sequence-number, not arrival order; the remote is free to deliver
// them shuffled. A trailing empty payload marks the end of the group and is
// dropped.
func (c *AsyncClient) MultiMessage() ([]string, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	header, data, err := c.readEnvelope()
	if err != nil {
		return nil, err
	}
	if header.TotalPackets < 1 {
		return nil, fmt.Errorf("%w: envelope declares %d packets", ErrProtocol, header.TotalPackets)
	}
	group := make([]string, header.TotalPackets)
	if err := placePacket(group, header, data); err != nil {
		return nil, err
	}
	for i := 1; i < header.TotalPackets; i++ {
		next, payload, err := c.readEnvelope()
		if err != nil {
			return nil, err
		}
		if err := placePacket(group, next, payload); err != nil {
			return nil, err
		}
	}
	if group[len(group)-1] == "" {
		group = group[:len(group)-1]
	}
	return group, nil
}

func placePacket(group []string, header wire.AsyncHeader, data string) error {
	idx := header.PacketNumber - 1
	if idx < 0 || idx >= len(group) {
		return fmt.Errorf("%w: packet number %d outside group of %d", ErrProtocol, header.PacketNumber, len(group))
	}
	group[idx] = data
	return nil
}
