package port

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

const maxReply = 512

// Conn runs command/reply exchanges over a Transport using the timing
// policy of a Config. A Conn is not safe for concurrent use.
type Conn struct {
	t      Transport
	cfg    Config
	logger log.FieldLogger

	sleep func(time.Duration)
	now   func() time.Time
}

func NewConn(t Transport, cfg Config, logger log.FieldLogger) *Conn {
	return &Conn{
		t:      t,
		cfg:    cfg,
		logger: logger,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Config returns the policy the connection was created with.
func (c *Conn) Config() Config {
	return c.cfg
}

// Write sends data honouring the write and post-write delays.
func (c *Conn) Write(data []byte) error {
	c.logger.Debugf("TX %q", data)

	if c.cfg.WriteDelay <= 0 {
		if _, err := c.t.Write(data); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	} else {
		for i := range data {
			if _, err := c.t.Write(data[i : i+1]); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			c.sleep(c.cfg.WriteDelay)
		}
	}

	if c.cfg.PostWriteDelay > 0 {
		c.sleep(c.cfg.PostWriteDelay)
	}
	return nil
}

// ReadUntil reads bytes until term is seen and returns them, term included.
func (c *Conn) ReadUntil(term byte) ([]byte, error) {
	var (
		reply    []byte
		buf      [1]byte
		deadline = c.now().Add(c.cfg.Timeout)
	)

	for {
		n, err := c.t.Read(buf[:])
		if n == 1 {
			reply = append(reply, buf[0])
			if buf[0] == term {
				c.logger.Debugf("RX %q", reply)
				return reply, nil
			}
			if len(reply) >= maxReply {
				return reply, fmt.Errorf("%w: reply exceeds %d bytes", ErrIO, maxReply)
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return reply, fmt.Errorf("%w: %v", ErrIO, err)
		}
		if !c.now().Before(deadline) {
			return reply, fmt.Errorf("%w after %v waiting for %q", ErrTimeout, c.cfg.Timeout, term)
		}
	}
}

// Transaction writes cmd and waits for a reply terminated by term. Failed
// exchanges are retried up to cfg.Retry more times after flushing input.
func (c *Conn) Transaction(cmd []byte, term byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.Retry; attempt++ {
		if attempt > 0 {
			c.logger.Debugf("retry %d/%d after: %v", attempt, c.cfg.Retry, lastErr)
			if err := c.t.Flush(); err != nil {
				c.logger.Debugf("flush failed: %v", err)
			}
		}

		if err := c.Write(cmd); err != nil {
			lastErr = err
			continue
		}

		reply, err := c.ReadUntil(term)
		if err != nil {
			lastErr = err
			continue
		}
		return bytes.TrimSpace(reply), nil
	}

	return nil, lastErr
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	return c.t.Close()
}
