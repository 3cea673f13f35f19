package port

import (
	"fmt"

	"github.com/tarm/serial"
)

type serialTransport struct {
	*serial.Port
}

func openSerial(cfg Config) (Transport, error) {
	sc := &serial.Config{
		Name:        cfg.Path,
		Baud:        cfg.Rate,
		ReadTimeout: cfg.Timeout,
		Size:        byte(cfg.DataBits),
	}

	switch cfg.Parity {
	case ParityNone:
		sc.Parity = serial.ParityNone
	case ParityOdd:
		sc.Parity = serial.ParityOdd
	case ParityEven:
		sc.Parity = serial.ParityEven
	case ParityMark:
		sc.Parity = serial.ParityMark
	case ParitySpace:
		sc.Parity = serial.ParitySpace
	default:
		return nil, fmt.Errorf("%w: invalid parity %v", ErrIO, cfg.Parity)
	}

	switch cfg.StopBits {
	case 0, 1:
		sc.StopBits = serial.Stop1
	case 2:
		sc.StopBits = serial.Stop2
	default:
		return nil, fmt.Errorf("%w: invalid stop bits %d", ErrIO, cfg.StopBits)
	}

	// tarm/serial has no flow control settings; the line is always opened
	// without handshake.
	if cfg.Handshake != HandshakeNone {
		return nil, fmt.Errorf("%w: handshake %s not supported on %s", ErrIO, cfg.Handshake, cfg.Path)
	}

	p, err := serial.OpenPort(sc)
	if err != nil {
		return nil, fmt.Errorf("%w: open serial %s: %v", ErrIO, cfg.Path, err)
	}
	return &serialTransport{Port: p}, nil
}
