// Package port is the communication transport used by amplifier backends.
// It owns the byte-level I/O: opening serial lines or TCP sockets and running
// request/response exchanges under the write delay, timeout and retry policy
// carried by a Config.
package port

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrTimeout = errors.New("communication timed out")
	ErrIO      = errors.New("i/o error")
)

// Type is the kind of communication port.
type Type int

const (
	TypeNone Type = iota
	TypeSerial
	TypeNetwork
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeSerial:
		return "serial"
	case TypeNetwork:
		return "network"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Parity of a serial line.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

var parityNames = []string{"None", "Odd", "Even", "Mark", "Space"}

func (p Parity) String() string {
	if int(p) < len(parityNames) && p >= 0 {
		return parityNames[p]
	}
	return fmt.Sprintf("Parity(%d)", int(p))
}

// ParseParity accepts the names printed by Parity.String, case-insensitively.
func ParseParity(s string) (Parity, error) {
	for i, name := range parityNames {
		if strings.EqualFold(s, name) {
			return Parity(i), nil
		}
	}
	return ParityNone, fmt.Errorf("unknown parity %q", s)
}

// Handshake is the serial flow control mode.
type Handshake int

const (
	HandshakeNone Handshake = iota
	HandshakeXONXOFF
	HandshakeHardware
)

var handshakeNames = []string{"None", "XONXOFF", "Hardware"}

func (h Handshake) String() string {
	if int(h) < len(handshakeNames) && h >= 0 {
		return handshakeNames[h]
	}
	return fmt.Sprintf("Handshake(%d)", int(h))
}

func ParseHandshake(s string) (Handshake, error) {
	for i, name := range handshakeNames {
		if strings.EqualFold(s, name) {
			return Handshake(i), nil
		}
	}
	return HandshakeNone, fmt.Errorf("unknown handshake %q", s)
}

const (
	DefaultSerialPath  = "/dev/ttyS0"
	DefaultNetworkPath = "127.0.0.1:4531"
)

// Config describes one communication port and the policy used to talk to it.
type Config struct {
	Type      Type
	Path      string // device node for serial, host:port for network
	Rate      int    // serial speed in baud
	DataBits  int
	StopBits  int
	Parity    Parity
	Handshake Handshake

	WriteDelay     time.Duration // delay between two bytes sent
	PostWriteDelay time.Duration // delay after a complete command
	Timeout        time.Duration // per-exchange read timeout
	Retry          int           // additional attempts after a failed exchange
}

// Transport is an open port.
type Transport interface {
	io.ReadWriteCloser

	// Flush discards any unread input.
	Flush() error
}

// Open opens the transport described by cfg.
func Open(cfg Config) (Transport, error) {
	switch cfg.Type {
	case TypeSerial:
		return openSerial(cfg)
	case TypeNetwork:
		return openNetwork(cfg)
	case TypeNone:
		return nil, fmt.Errorf("port type %s cannot be opened", cfg.Type)
	default:
		return nil, fmt.Errorf("unknown port type %d", cfg.Type)
	}
}
