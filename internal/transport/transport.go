package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	ErrInvalidEndpoint = errors.New("transport: invalid endpoint")
	ErrConnectFailed   = errors.New("transport: connect failed")
	ErrNotConnected    = errors.New("transport: not connected")
)

// Endpoint identifies the remote Connect socket.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("%w: host required", ErrInvalidEndpoint)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, e.Port)
	}
	return nil
}

// Addr returns the host:port dial string.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Conn owns exactly one TCP connection to the Connect socket.
type Conn struct {
	nc     net.Conn
	closed bool
}

// Dial connects to ep, retrying refused connections up to attempts times
// with a fixed delay between attempts. The target application needs a fixed
// warm-up window, so the delay is deliberately not exponential. Any dial
// error other than connection-refused is fatal immediately. The context
// cancels the inter-attempt sleep.
func Dial(ctx context.Context, ep Endpoint, attempts int, delay time.Duration) (*Conn, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	if attempts < 1 {
		attempts = 1
	}

	var dialer net.Dialer
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		nc, err := dialer.DialContext(ctx, "tcp", ep.Addr())
		if err == nil {
			return &Conn{nc: nc}, nil
		}
		if !refused(err) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectFailed, ep.Addr(), attempts, lastErr)
}

func refused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// ReadExact blocks until exactly n bytes have been read. It never returns a
// short buffer: a stream that ends early surfaces as an error.
func (c *Conn) ReadExact(n int) ([]byte, error) {
	if c.nc == nil {
		return nil, ErrNotConnected
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadUntilIdle accumulates whatever the remote sends until no data arrives
// within timeout, then returns the collected buffer. An empty buffer is not
// an error. This is best-effort by contract: a remote that pauses longer
// than timeout mid-write will be cut short.
func (c *Conn) ReadUntilIdle(timeout time.Duration) ([]byte, error) {
	if c.nc == nil {
		return nil, ErrNotConnected
	}
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		if err := c.nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return buf, err
		}
		n, err := c.nc.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			_ = c.nc.SetReadDeadline(time.Time{})
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return buf, nil
			}
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return buf, err
		}
	}
}

// Send writes b in a single call. Partial writes are not retried.
func (c *Conn) Send(b []byte) error {
	if c.nc == nil {
		return ErrNotConnected
	}
	_, err := c.nc.Write(b)
	return err
}

// Close releases the socket. Safe to call more than once.
func (c *Conn) Close() error {
	if c == nil || c.nc == nil || c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}
