package amp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ampctl/pkg/port"
)

// Errors detected by the core before any backend is called.
var (
	ErrInvalid        = errors.New("invalid argument")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already registered")
	ErrBusy           = errors.New("resource busy")
	ErrNotOpen        = errors.New("amplifier not open")
	ErrUnsupported    = errors.New("not supported by this model")
	ErrTypeMismatch   = errors.New("value kind mismatch")
	ErrNotImplemented = errors.New("not implemented")
	ErrTokenMismatch  = errors.New("token belongs to another model")
	ErrAllocation     = errors.New("cannot allocate amplifier state")
	ErrLoad           = errors.New("backend load failed")
)

// Errors reported by backends about the device itself.
var (
	ErrProtocol = errors.New("protocol error")
	ErrRejected = errors.New("command rejected by device")
)

// NetReply is the reply prefix of the network control protocol; it is
// followed by the negated error code.
const NetReply = "RPRT "

// CodeInternal is the code of any error without a known kind.
const CodeInternal = 7

var errorCodes = []struct {
	code int
	err  error
}{
	{1, ErrInvalid},
	{2, ErrNotFound},
	{3, ErrConflict},
	{4, ErrNotImplemented},
	{5, port.ErrTimeout},
	{6, port.ErrIO},
	{8, ErrProtocol},
	{9, ErrRejected},
	{10, ErrAllocation},
	{11, ErrUnsupported},
	{12, ErrNotOpen},
	{13, ErrTypeMismatch},
	{14, ErrBusy},
	{15, ErrTokenMismatch},
	{16, ErrLoad},
}

// ErrorCode maps err to a small non-negative integer suitable for a wire
// status. nil maps to 0.
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// ErrorFromCode returns the sentinel error for code, or nil for 0.
func ErrorFromCode(code int) error {
	if code < 0 {
		code = -code
	}
	if code == 0 {
		return nil
	}
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return fmt.Errorf("error code %d", code)
}

// ReplyStatus renders err the way the network control protocol reports a
// command result, e.g. "RPRT 0" or "RPRT -11".
func ReplyStatus(err error) string {
	return fmt.Sprintf("%s%d", NetReply, -ErrorCode(err))
}

// ParseReplyStatus decodes the code of a line produced by ReplyStatus.
func ParseReplyStatus(line string) (int, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, NetReply) {
		return 0, fmt.Errorf("missing %q prefix: %w", NetReply, ErrProtocol)
	}
	code, err := strconv.Atoi(strings.TrimSpace(line[len(NetReply):]))
	if err != nil {
		return 0, fmt.Errorf("bad status %q: %w", line, ErrProtocol)
	}
	if code < 0 {
		code = -code
	}
	return code, nil
}
