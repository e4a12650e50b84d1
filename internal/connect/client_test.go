package connect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stk-tools/stkctl/internal/connect/wire"
	"github.com/stk-tools/stkctl/internal/testutil/testlog"
)

func TestSyncClientSendAck(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		if line != "New / */Satellite ERS1\n" {
			return fmt.Errorf("unexpected command %q", line)
		}
		_, err = conn.Write([]byte("ACK"))
		return err
	})
	cfg.Logger = log

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Send("New / */Satellite ERS1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestSyncClientNackRetriesUntilAck(t *testing.T) {
	log := testlog.Start(t)

	received := make(chan string, 8)
	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		responses := []string{"NAC4", "NAC4", "ACK"}
		for _, resp := range responses {
			line, err := r.ReadString('\n')
			if err != nil {
				return err
			}
			received <- line
			if _, err := conn.Write([]byte(resp)); err != nil {
				return err
			}
		}
		return nil
	})
	cfg.Logger = log
	cfg.SendAttempts = 3

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Send("Animate * Start"); err != nil {
		t.Fatalf("send should succeed on third attempt: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if got := len(received); got != 3 {
		t.Fatalf("remote saw %d sends, want 3", got)
	}
}

func TestSyncClientSingleNackFailsImmediately(t *testing.T) {
	log := testlog.Start(t)

	received := make(chan string, 8)
	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		received <- line
		_, err = conn.Write([]byte("NAC4"))
		return err
	})
	cfg.Logger = log
	cfg.SendAttempts = 1

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	err := client.Send("Animate * Start")
	var nack *NackError
	if !errors.As(err, &nack) {
		t.Fatalf("expected NackError, got %v", err)
	}
	if nack.Command != "Animate * Start" || nack.Code != "4" {
		t.Fatalf("nack fields: %+v", nack)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if got := len(received); got != 1 {
		t.Fatalf("remote saw %d sends, want exactly 1", got)
	}
}

func TestSyncClientAckOffHandshake(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		if line != "ConControl / AckOff\n" {
			return fmt.Errorf("expected AckOff handshake, got %q", line)
		}
		// No acknowledgement: the client disabled them.
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		return nil
	})
	cfg.Logger = log
	cfg.Ack = false

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Send("Unload / *"); err != nil {
		t.Fatalf("send without ack: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestSyncClientSingleAndMultiMessage(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		if err := writeSyncMessage(conn, "AllInstanceNames", "2"); err != nil {
			return err
		}
		if err := writeSyncMessage(conn, "AllInstanceNames", "Scenario/Demo"); err != nil {
			return err
		}
		return writeSyncMessage(conn, "AllInstanceNames", "Satellite/ERS1")
	})
	cfg.Logger = log

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	messages, err := client.MultiMessage()
	if err != nil {
		t.Fatalf("multi message: %v", err)
	}
	if len(messages) != 2 || messages[0] != "Scenario/Demo" || messages[1] != "Satellite/ERS1" {
		t.Fatalf("messages: %q", messages)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestAsyncClientHandshakeAndAck(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		if line != "ConControl / AsyncOn\n" {
			return fmt.Errorf("expected AsyncOn handshake first, got %q", line)
		}
		if err := writeEnvelope(conn, "ACK", 1, 1, ""); err != nil {
			return err
		}
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		return writeEnvelope(conn, "ACK", 1, 1, "")
	})
	cfg.Logger = log
	cfg.Async = true

	client := New(cfg)
	if _, ok := client.(*AsyncClient); !ok {
		t.Fatalf("factory built %T, want *AsyncClient", client)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Send("New / */Satellite ERS1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestAsyncClientNack(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		if err := writeEnvelope(conn, "ACK", 1, 1, ""); err != nil {
			return err
		}
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		return writeEnvelope(conn, "NACK", 1, 1, "")
	})
	cfg.Logger = log
	cfg.Async = true

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	err := client.Send("BadCommand / Nope")
	var nack *NackError
	if !errors.As(err, &nack) {
		t.Fatalf("expected NackError, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestAsyncClientMultiMessageOutOfOrder(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		if err := writeEnvelope(conn, "ACK", 1, 1, ""); err != nil {
			return err
		}
		// Delivery order 2, 1, 3 within a three-packet group.
		if err := writeEnvelope(conn, "REPORT_RM", 3, 2, "beta"); err != nil {
			return err
		}
		if err := writeEnvelope(conn, "REPORT_RM", 3, 1, "alpha"); err != nil {
			return err
		}
		return writeEnvelope(conn, "REPORT_RM", 3, 3, "gamma")
	})
	cfg.Logger = log
	cfg.Async = true

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	group, err := client.MultiMessage()
	if err != nil {
		t.Fatalf("multi message: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(group) != len(want) {
		t.Fatalf("group size %d, want %d", len(group), len(want))
	}
	for i := range want {
		if group[i] != want[i] {
			t.Fatalf("slot %d: got %q want %q", i, group[i], want[i])
		}
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestAsyncClientMultiMessageDropsTrailingEmptyPacket(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		if _, err := r.ReadString('\n'); err != nil {
			return err
		}
		if err := writeEnvelope(conn, "ACK", 1, 1, ""); err != nil {
			return err
		}
		if err := writeEnvelope(conn, "REPORT_RM", 3, 1, "alpha"); err != nil {
			return err
		}
		if err := writeEnvelope(conn, "REPORT_RM", 3, 2, "beta"); err != nil {
			return err
		}
		return writeEnvelope(conn, "REPORT_RM", 3, 3, "")
	})
	cfg.Logger = log
	cfg.Async = true

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	group, err := client.MultiMessage()
	if err != nil {
		t.Fatalf("multi message: %v", err)
	}
	if len(group) != 2 || group[0] != "alpha" || group[1] != "beta" {
		t.Fatalf("group: %q", group)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestConnectTwiceFails(t *testing.T) {
	log := testlog.Start(t)

	cfg, done := startFakeEndpoint(t, func(conn net.Conn, r *bufio.Reader) error {
		// Hold the connection open until the client hangs up.
		_, _ = r.ReadString('\n')
		return nil
	})
	cfg.Logger = log

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-done
}

// startFakeEndpoint serves exactly one connection with the supplied script
// and reports its outcome on the returned channel.
func startFakeEndpoint(t *testing.T, handler func(conn net.Conn, r *bufio.Reader) error) (Config, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		done <- handler(conn, bufio.NewReader(conn))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := DefaultConfig()
	cfg.Host = addr.IP.String()
	cfg.Port = addr.Port
	cfg.ConnectAttempts = 1
	cfg.ConnectDelay = 10 * time.Millisecond
	cfg.ReadIdleTimeout = 150 * time.Millisecond
	return cfg, done
}

func writeSyncMessage(conn net.Conn, name, data string) error {
	header := fmt.Sprintf("%-40s", fmt.Sprintf("%s %d", name, len(data)))
	if _, err := conn.Write([]byte(header)); err != nil {
		return err
	}
	_, err := conn.Write([]byte(data))
	return err
}

func writeEnvelope(conn net.Conn, asyncType string, totalPackets, packetNumber int, data string) error {
	header := wire.EncodeAsyncHeader(wire.AsyncHeader{
		HeaderLength: wire.AsyncHeaderLen,
		MajorVersion: 1,
		MinorVersion: 0,
		AsyncType:    asyncType,
		Identifier:   1,
		TotalPackets: totalPackets,
		PacketNumber: packetNumber,
		DataLength:   len(data),
	})
	if _, err := conn.Write(header); err != nil {
		return err
	}
	if data == "" {
		return nil
	}
	_, err := conn.Write([]byte(data))
	return err
}
