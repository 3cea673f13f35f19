package elecraft

import (
	"fmt"
	"strconv"
	"strings"

	"ampctl/pkg/amp"
)

// Commands of the KPA1500 serial protocol. Queries are sent as "^XX;" and
// answered with "^XX<value>;". Set commands carry the value and get no
// reply.
const (
	cmdFreq       = "^FR"  // frequency, kHz
	cmdSWR        = "^SW"  // SWR x10
	cmdPwrForward = "^PWF" // forward power, watts
	cmdPwrReflect = "^PWR" // reflected power, watts
	cmdPwrPeak    = "^PWK" // peak power, watts
	cmdPwrInput   = "^PWI" // drive power, watts
	cmdNH         = "^NH"  // tuner inductance, nH
	cmdPF         = "^PF"  // tuner capacitance, pF
	cmdFault      = "^FL"  // fault code
	cmdFaultClear = "^FLC" // clear fault
	cmdPower      = "^ON"  // 0 off, 1 on
	cmdOperate    = "^OS"  // 0 standby, 1 operate
	cmdVersion    = "^RVM" // firmware version
	cmdTemp       = "^TM"  // PA temperature, Celsius
	cmdFan        = "^FC"  // fan speed step
	cmdAntenna    = "^AN"  // antenna 1..3
	cmdBypass     = "^BYP" // tuner bypass, B or N

	terminator = ';'
)

var faultNames = map[int]string{
	0:  "None",
	10: "High Current",
	12: "High Temperature",
	14: "Low Supply Voltage",
	16: "High Supply Voltage",
	60: "High SWR",
	62: "High Reflected Power",
	64: "Excess Drive",
	66: "Antenna Not Tuned",
	70: "Band Mismatch",
}

func faultName(code int) string {
	if name, ok := faultNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Fault %02d", code)
}

func query(cmd string) []byte {
	return []byte(cmd + string(terminator))
}

func set(cmd, value string) []byte {
	return []byte(cmd + value + string(terminator))
}

// parseReply checks that reply answers cmd and returns its value.
func parseReply(cmd string, reply []byte) (string, error) {
	s := string(reply)
	if !strings.HasSuffix(s, string(terminator)) {
		return "", fmt.Errorf("reply %q has no terminator: %w", s, amp.ErrProtocol)
	}
	if !strings.HasPrefix(s, cmd) {
		return "", fmt.Errorf("reply %q does not answer %s: %w", s, cmd, amp.ErrProtocol)
	}
	return s[len(cmd) : len(s)-1], nil
}

func parseInt(cmd, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s value %q: %w", cmd, value, amp.ErrProtocol)
	}
	return n, nil
}
