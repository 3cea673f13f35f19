// Package elecraft drives the Elecraft KPA1500 amplifier and its built-in
// antenna tuner over a serial line.
package elecraft

import (
	"fmt"
	"strconv"
	"time"

	"ampctl/pkg/amp"
	"ampctl/pkg/port"

	log "github.com/sirupsen/logrus"
)

const (
	ModelKPA1500 amp.Model = 201

	driverVersion = "20260301.0"
)

const (
	tokBypass  amp.TokenID = 100
	tokTemp    amp.TokenID = 200
	tokFan     amp.TokenID = 201
	tokAntenna amp.TokenID = 300
)

type Backend struct {
	amp.UnimplementedBackend
}

var _ amp.Prober = Backend{}

func Caps() *amp.Caps {
	return &amp.Caps{
		Model:     ModelKPA1500,
		ModelName: "KPA1500",
		MfgName:   "Elecraft",
		Version:   driverVersion,
		Copyright: "LGPL",
		Status:    amp.StatusBeta,
		Port: amp.PortDefaults{
			Type:           port.TypeSerial,
			RateMin:        4800,
			RateMax:        230400,
			DataBits:       8,
			StopBits:       1,
			Parity:         port.ParityNone,
			Handshake:      port.HandshakeNone,
			PostWriteDelay: 20 * time.Millisecond,
			Timeout:        2 * time.Second,
			Retry:          2,
		},
		ConfParams: []amp.ConfParam{
			{ID: tokBypass, Name: "tuner_bypass", Label: "Tuner bypass",
				Tooltip: "Bypass the internal antenna tuner", Default: "0", Type: amp.ParamCheckButton},
		},
		HasGetLevel: amp.Levels(amp.AllLevels()...),
		LevelGran: map[amp.Level]amp.Gran{
			amp.LevelSWR:          {Min: 1, Max: 99.9, Step: 0.1},
			amp.LevelNH:           {Min: 0, Max: 24000, Step: 1},
			amp.LevelPF:           {Min: 0, Max: 4000, Step: 1},
			amp.LevelPwrInput:     {Min: 0, Max: 100, Step: 1},
			amp.LevelPwrForward:   {Min: 0, Max: 1500, Step: 1},
			amp.LevelPwrReflected: {Min: 0, Max: 1500, Step: 1},
			amp.LevelPwrPeak:      {Min: 0, Max: 1500, Step: 1},
		},
		ExtLevels: []amp.ConfParam{
			{ID: tokTemp, Name: "temperature", Label: "PA temperature",
				Tooltip: "Power amplifier temperature, Celsius", Type: amp.ParamNumeric,
				Numeric: amp.NumericRange{Min: 0, Max: 100, Step: 1}},
			{ID: tokFan, Name: "fan_speed", Label: "Fan speed",
				Tooltip: "Fan speed step", Type: amp.ParamNumeric,
				Numeric: amp.NumericRange{Min: 0, Max: 6, Step: 1}},
		},
		ExtParams: []amp.ConfParam{
			{ID: tokAntenna, Name: "antenna", Label: "Antenna",
				Tooltip: "Selected antenna port", Default: "1", Type: amp.ParamCombo,
				Options: []string{"1", "2", "3"}},
		},
		Backend: Backend{},
	}
}

// Register adds the KPA1500 to r.
func Register(r *amp.Registry) error {
	return r.Register(Caps())
}

func transaction(a *amp.Amp, cmd string) (string, error) {
	conn := a.Conn()
	if conn == nil {
		return "", fmt.Errorf("no transport: %w", amp.ErrInvalid)
	}
	reply, err := conn.Transaction(query(cmd), terminator)
	if err != nil {
		return "", err
	}
	return parseReply(cmd, reply)
}

func queryInt(a *amp.Amp, cmd string) (int, error) {
	value, err := transaction(a, cmd)
	if err != nil {
		return 0, err
	}
	return parseInt(cmd, value)
}

func write(a *amp.Amp, cmd, value string) error {
	conn := a.Conn()
	if conn == nil {
		return fmt.Errorf("no transport: %w", amp.ErrInvalid)
	}
	return conn.Write(set(cmd, value))
}

// Open checks that the amplifier answers before declaring it open.
func (Backend) Open(a *amp.Amp) error {
	version, err := transaction(a, cmdVersion)
	if err != nil {
		return fmt.Errorf("KPA1500 not responding: %w", err)
	}
	a.Logger().Infof("KPA1500 firmware %s", version)
	return nil
}

func (Backend) SetFreq(a *amp.Amp, f amp.Freq) error {
	khz := int(f / 1000)
	if khz < 1000 || khz > 99999 {
		return fmt.Errorf("frequency %v out of range: %w", f, amp.ErrInvalid)
	}
	return write(a, cmdFreq, fmt.Sprintf("%05d", khz))
}

func (Backend) GetFreq(a *amp.Amp) (amp.Freq, error) {
	khz, err := queryInt(a, cmdFreq)
	if err != nil {
		return 0, err
	}
	return amp.Freq(khz) * 1000, nil
}

func (Backend) SetConf(a *amp.Amp, tok amp.Token, val string) error {
	switch tok.ID() {
	case tokBypass:
		switch val {
		case "0":
			return write(a, cmdBypass, "N")
		case "1":
			return write(a, cmdBypass, "B")
		}
		return fmt.Errorf("tuner_bypass %q: %w", val, amp.ErrInvalid)
	case tokAntenna:
		switch val {
		case "1", "2", "3":
			return write(a, cmdAntenna, val)
		}
		return fmt.Errorf("antenna %q: %w", val, amp.ErrInvalid)
	}
	return amp.ErrNotImplemented
}

func (Backend) GetConf(a *amp.Amp, tok amp.Token) (string, error) {
	switch tok.ID() {
	case tokBypass:
		value, err := transaction(a, cmdBypass)
		if err != nil {
			return "", err
		}
		if value == "B" {
			return "1", nil
		}
		return "0", nil
	case tokAntenna:
		return transaction(a, cmdAntenna)
	}
	return "", amp.ErrNotImplemented
}

func (Backend) Reset(a *amp.Amp, kind amp.ResetKind) error {
	if kind != amp.ResetFault {
		return amp.ErrNotImplemented
	}
	return a.Conn().Write(query(cmdFaultClear))
}

var levelCommands = map[amp.Level]string{
	amp.LevelSWR:          cmdSWR,
	amp.LevelNH:           cmdNH,
	amp.LevelPF:           cmdPF,
	amp.LevelPwrInput:     cmdPwrInput,
	amp.LevelPwrForward:   cmdPwrForward,
	amp.LevelPwrReflected: cmdPwrReflect,
	amp.LevelPwrPeak:      cmdPwrPeak,
	amp.LevelFault:        cmdFault,
}

func (Backend) GetLevel(a *amp.Amp, level amp.Level) (amp.Value, error) {
	cmd, ok := levelCommands[level]
	if !ok {
		return amp.Value{}, amp.ErrNotImplemented
	}

	n, err := queryInt(a, cmd)
	if err != nil {
		return amp.Value{}, err
	}

	switch level {
	case amp.LevelSWR:
		return amp.FloatValue(float64(n) / 10), nil
	case amp.LevelFault:
		return amp.StringValue(faultName(n)), nil
	}
	return amp.FloatValue(float64(n)), nil
}

func (Backend) GetExtLevel(a *amp.Amp, tok amp.Token) (amp.Value, error) {
	switch tok.ID() {
	case tokTemp:
		n, err := queryInt(a, cmdTemp)
		if err != nil {
			return amp.Value{}, err
		}
		return amp.FloatValue(float64(n)), nil
	case tokFan:
		n, err := queryInt(a, cmdFan)
		if err != nil {
			return amp.Value{}, err
		}
		return amp.IntValue(n), nil
	}
	return amp.Value{}, amp.ErrNotImplemented
}

func (Backend) SetPowerStat(a *amp.Amp, status amp.PowerStat) error {
	switch status {
	case amp.PowerOff:
		return write(a, cmdPower, "0")
	case amp.PowerOn:
		return write(a, cmdPower, "1")
	case amp.PowerStandby:
		return write(a, cmdOperate, "0")
	case amp.PowerOperate:
		return write(a, cmdOperate, "1")
	}
	return fmt.Errorf("power state %v: %w", status, amp.ErrInvalid)
}

func (Backend) GetPowerStat(a *amp.Amp) (amp.PowerStat, error) {
	on, err := queryInt(a, cmdPower)
	if err != nil {
		return amp.PowerUnknown, err
	}
	if on == 0 {
		return amp.PowerOff, nil
	}

	operate, err := queryInt(a, cmdOperate)
	if err != nil {
		return amp.PowerUnknown, err
	}
	if operate == 1 {
		return amp.PowerOperate, nil
	}
	return amp.PowerStandby, nil
}

func (Backend) GetInfo(a *amp.Amp) (string, error) {
	version, err := transaction(a, cmdVersion)
	if err != nil {
		return "", err
	}
	return "KPA1500 firmware " + version, nil
}

// Probe looks for a KPA1500 on cfg by asking for its firmware version.
func (Backend) Probe(open amp.Opener, cfg port.Config, logger log.FieldLogger) (amp.Model, bool) {
	defaults := Caps().Port
	if cfg.Rate == 0 {
		cfg.Rate = defaults.RateMax
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = defaults.DataBits
		cfg.StopBits = defaults.StopBits
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	t, err := open(cfg)
	if err != nil {
		logger.Debugf("Cannot open port: %v", err)
		return amp.ModelNone, false
	}
	conn := port.NewConn(t, cfg, logger)
	defer conn.Close()

	reply, err := conn.Transaction(query(cmdVersion), terminator)
	if err != nil {
		logger.Debugf("No answer: %v", err)
		return amp.ModelNone, false
	}
	version, err := parseReply(cmdVersion, reply)
	if err != nil {
		return amp.ModelNone, false
	}
	if _, err := strconv.ParseFloat(version, 64); err != nil {
		return amp.ModelNone, false
	}
	return ModelKPA1500, true
}
