package port

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// netTransport wraps a TCP connection so that reads behave like a serial
// line with a read timeout: a read that times out returns 0 bytes and no error.
type netTransport struct {
	conn    net.Conn
	timeout time.Duration
}

func openNetwork(cfg Config) (Transport, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", cfg.Path, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrIO, cfg.Path, err)
	}
	return &netTransport{conn: conn, timeout: timeout}, nil
}

func (n *netTransport) Read(p []byte) (int, error) {
	if err := n.conn.SetReadDeadline(time.Now().Add(n.timeout)); err != nil {
		return 0, err
	}
	c, err := n.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return c, nil
	}
	return c, err
}

func (n *netTransport) Write(p []byte) (int, error) {
	return n.conn.Write(p)
}

func (n *netTransport) Close() error {
	return n.conn.Close()
}

// Flush drains whatever is already buffered on the socket.
func (n *netTransport) Flush() error {
	buf := make([]byte, 256)
	for {
		if err := n.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return err
		}
		c, err := n.conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return err
		}
		if c == 0 {
			return nil
		}
	}
}
