package mqttbridge

import (
	"fmt"
	"strings"
)

type cmdCode uint8

// Controller commands. A query is "_<code>;" or "_<code>=<arg>;", a set
// carries the new value as argument.
const (
	cmdFreq     cmdCode = 'F' // frequency in Hz
	cmdLevel    cmdCode = 'L' // read a level by name
	cmdExtLevel cmdCode = 'E' // read an extension level by name
	cmdReset    cmdCode = 'R' // MEM, FAULT or AMP
	cmdPower    cmdCode = 'P' // power state name
	cmdVersion  cmdCode = 'V' // firmware version
)

type Response struct {
	Code  cmdCode // The code of the command that was sent
	Value string  // The value of the response
	Error bool    // True if the controller refused the command
}

// telemetryMsg is published periodically by the controller under the
// "telemetry" topic.
type telemetryMsg struct {
	SWR       float64 `json:"swr"`
	Forward   float64 `json:"fwd"`
	Reflected float64 `json:"ref"`
	Input     float64 `json:"in"`
	Peak      float64 `json:"peak"`
	Fault     string  `json:"fault"`
	Temp      float64 `json:"temp"`
	State     string  `json:"state"`
}

func formatCommand(code cmdCode, arg string) string {
	if arg == "" {
		return fmt.Sprintf("_%c;", code)
	}
	return fmt.Sprintf("_%c=%s;", code, arg)
}

// Responses have the format:
// "_ACK_<command>;"
// "_ACK_<command>=<value>;"
// "_NACK_<command>;"
func parseResponse(msg string) (Response, error) {
	var resp Response

	fields := strings.Split(msg, "_")
	if len(fields) != 3 || fields[0] != "" {
		return resp, fmt.Errorf("bad number of fields: %s", msg)
	}
	if !strings.HasSuffix(fields[2], ";") {
		return resp, fmt.Errorf("invalid response suffix: %s", msg)
	}

	switch fields[1] {
	case "ACK":
	case "NACK":
		resp.Error = true
	default:
		return resp, fmt.Errorf("invalid response format: %s", msg)
	}

	cmd := strings.TrimSuffix(fields[2], ";")

	parts := strings.Split(cmd, "=")
	if len(parts[0]) != 1 {
		return resp, fmt.Errorf("invalid command format: %s", msg)
	}
	resp.Code = cmdCode(parts[0][0])

	if len(parts) == 2 {
		resp.Value = parts[1]
	} else if len(parts) != 1 {
		return resp, fmt.Errorf("invalid response value: %s", msg)
	}

	return resp, nil
}
