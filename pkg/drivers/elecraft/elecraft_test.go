package elecraft

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"ampctl/pkg/amp"
	"ampctl/pkg/port"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKPA answers queries from a table and applies set commands to it.
type fakeKPA struct {
	mu      sync.Mutex
	values  map[string]string
	sets    []string
	pending bytes.Buffer
	out     bytes.Buffer
	drop    int // replies to swallow
	silent  bool
	closed  bool
}

func newFakeKPA() *fakeKPA {
	return &fakeKPA{values: map[string]string{
		cmdVersion:    "01.42",
		cmdFreq:       "07100",
		cmdSWR:        "015",
		cmdPwrForward: "1200",
		cmdPwrReflect: "0012",
		cmdPwrPeak:    "1350",
		cmdPwrInput:   "060",
		cmdNH:         "0850",
		cmdPF:         "0300",
		cmdFault:      "00",
		cmdPower:      "1",
		cmdOperate:    "0",
		cmdTemp:       "041",
		cmdFan:        "2",
		cmdAntenna:    "1",
		cmdBypass:     "N",
	}}
}

func (f *fakeKPA) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range p {
		if b != terminator {
			f.pending.WriteByte(b)
			continue
		}
		f.handle(f.pending.String())
		f.pending.Reset()
	}
	return len(p), nil
}

func (f *fakeKPA) handle(cmd string) {
	if f.silent {
		return
	}
	if v, ok := f.values[cmd]; ok {
		if f.drop > 0 {
			f.drop--
			return
		}
		f.out.WriteString(cmd + v + string(terminator))
		return
	}

	f.sets = append(f.sets, cmd)
	if cmd == cmdFaultClear {
		f.values[cmdFault] = "00"
		return
	}
	for key := range f.values {
		if strings.HasPrefix(cmd, key) && len(cmd) > len(key) {
			if _, longer := f.values[cmd[:len(key)+1]]; !longer {
				f.values[key] = cmd[len(key):]
			}
		}
	}
}

func (f *fakeKPA) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out.Len() == 0 {
		return 0, nil
	}
	return f.out.Read(p)
}

func (f *fakeKPA) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out.Reset()
	return nil
}

func (f *fakeKPA) Close() error {
	f.closed = true
	return nil
}

func newRegistry(t *testing.T, dev *fakeKPA) *amp.Registry {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := amp.NewRegistry(logger, amp.WithOpener(func(port.Config) (port.Transport, error) {
		return dev, nil
	}))
	require.NoError(t, Register(reg))
	return reg
}

func openKPA(t *testing.T, dev *fakeKPA) *amp.Amp {
	t.Helper()
	a, err := newRegistry(t, dev).Init(ModelKPA1500)
	require.NoError(t, err)

	tok, err := a.TokenLookup("timeout")
	require.NoError(t, err)
	require.NoError(t, a.SetConf(tok, "20"))
	tok, err = a.TokenLookup("post_write_delay")
	require.NoError(t, err)
	require.NoError(t, a.SetConf(tok, "0"))

	require.NoError(t, a.Open())
	t.Cleanup(func() {
		a.Close()
		a.Cleanup()
	})
	return a
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name        string
		cmd         string
		reply       string
		expected    string
		expectError bool
	}{
		{name: "Valid value", cmd: cmdSWR, reply: "^SW015;", expected: "015"},
		{name: "Empty value", cmd: cmdBypass, reply: "^BYP;", expected: ""},
		{name: "Missing terminator", cmd: cmdSWR, reply: "^SW015", expectError: true},
		{name: "Other command", cmd: cmdSWR, reply: "^FR07100;", expectError: true},
		{name: "Garbage", cmd: cmdFault, reply: "?;", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := parseReply(tt.cmd, []byte(tt.reply))
			if tt.expectError {
				assert.ErrorIs(t, err, amp.ErrProtocol)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestDefaults(t *testing.T) {
	a, err := newRegistry(t, newFakeKPA()).Init(ModelKPA1500)
	require.NoError(t, err)

	cfg := a.Port()
	assert.Equal(t, port.TypeSerial, cfg.Type)
	assert.Equal(t, 230400, cfg.Rate)
	assert.Equal(t, 8, cfg.DataBits)
	assert.Equal(t, 2, cfg.Retry)
}

func TestLevels(t *testing.T) {
	dev := newFakeKPA()
	a := openKPA(t, dev)

	tests := []struct {
		level    amp.Level
		expected float64
	}{
		{amp.LevelSWR, 1.5},
		{amp.LevelPwrForward, 1200},
		{amp.LevelPwrReflected, 12},
		{amp.LevelPwrPeak, 1350},
		{amp.LevelPwrInput, 60},
		{amp.LevelNH, 850},
		{amp.LevelPF, 300},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			v, err := a.GetLevelFloat(tt.level)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, v, 1e-9)
		})
	}

	fault, err := a.GetLevelString(amp.LevelFault)
	require.NoError(t, err)
	assert.Equal(t, "None", fault)

	dev.values[cmdFault] = "60"
	fault, err = a.GetLevelString(amp.LevelFault)
	require.NoError(t, err)
	assert.Equal(t, "High SWR", fault)

	require.NoError(t, a.Reset(amp.ResetFault))
	assert.Equal(t, "00", dev.values[cmdFault])
	assert.ErrorIs(t, a.Reset(amp.ResetMem), amp.ErrNotImplemented)
}

func TestFrequency(t *testing.T) {
	dev := newFakeKPA()
	a := openKPA(t, dev)

	f, err := a.GetFreq()
	require.NoError(t, err)
	assert.Equal(t, amp.Freq(7.1e6), f)

	require.NoError(t, a.SetFreq(14.2e6))
	assert.Contains(t, dev.sets, "^FR14200")

	f, err = a.GetFreq()
	require.NoError(t, err)
	assert.Equal(t, amp.Freq(14.2e6), f)

	assert.ErrorIs(t, a.SetFreq(136e3), amp.ErrInvalid)
}

func TestPowerStat(t *testing.T) {
	dev := newFakeKPA()
	a := openKPA(t, dev)

	ps, err := a.GetPowerStat()
	require.NoError(t, err)
	assert.Equal(t, amp.PowerStandby, ps)

	require.NoError(t, a.SetPowerStat(amp.PowerOperate))
	ps, err = a.GetPowerStat()
	require.NoError(t, err)
	assert.Equal(t, amp.PowerOperate, ps)

	require.NoError(t, a.SetPowerStat(amp.PowerOff))
	ps, err = a.GetPowerStat()
	require.NoError(t, err)
	assert.Equal(t, amp.PowerOff, ps)
}

func TestConfAndExtLevels(t *testing.T) {
	dev := newFakeKPA()
	a := openKPA(t, dev)

	bypass, err := a.TokenLookup("tuner_bypass")
	require.NoError(t, err)
	require.NoError(t, a.SetConf(bypass, "1"))
	val, err := a.GetConf(bypass)
	require.NoError(t, err)
	assert.Equal(t, "1", val)

	antenna, err := a.ExtTokenLookup("antenna")
	require.NoError(t, err)
	require.NoError(t, a.SetConf(antenna, "3"))
	val, err = a.GetConf(antenna)
	require.NoError(t, err)
	assert.Equal(t, "3", val)

	temp, err := a.ExtTokenLookup("temperature")
	require.NoError(t, err)
	v, err := a.GetExtLevel(temp)
	require.NoError(t, err)
	assert.Equal(t, amp.FloatValue(41), v)

	fan, err := a.ExtTokenLookup("fan_speed")
	require.NoError(t, err)
	v, err = a.GetExtLevel(fan)
	require.NoError(t, err)
	assert.Equal(t, amp.IntValue(2), v)
}

func TestRetryAndTimeout(t *testing.T) {
	dev := newFakeKPA()
	a := openKPA(t, dev)

	dev.drop = 2
	info, err := a.GetInfo()
	require.NoError(t, err, "two retries cover two lost replies")
	assert.Equal(t, "KPA1500 firmware 01.42", info)

	dev.drop = 3
	_, err = a.GetInfo()
	assert.ErrorIs(t, err, port.ErrTimeout)
	assert.Equal(t, 5, amp.ErrorCode(err))
}

func TestOpenSilentDevice(t *testing.T) {
	dev := newFakeKPA()
	dev.silent = true
	a, err := newRegistry(t, dev).Init(ModelKPA1500)
	require.NoError(t, err)

	tok, err := a.TokenLookup("timeout")
	require.NoError(t, err)
	require.NoError(t, a.SetConf(tok, "10"))

	err = a.Open()
	assert.ErrorIs(t, err, port.ErrTimeout)
	assert.False(t, a.IsOpen())
	assert.True(t, dev.closed)
}

func TestProbe(t *testing.T) {
	reg := newRegistry(t, newFakeKPA())
	m, err := reg.Probe(port.Config{Type: port.TypeSerial, Path: "/dev/ttyUSB0"})
	require.NoError(t, err)
	assert.Equal(t, ModelKPA1500, m)

	silent := newFakeKPA()
	silent.silent = true
	reg = newRegistry(t, silent)
	_, err = reg.Probe(port.Config{Type: port.TypeSerial, Path: "/dev/ttyUSB0", Timeout: 10e6})
	assert.ErrorIs(t, err, amp.ErrNotFound)
	assert.True(t, silent.closed)
}

func TestNoTransport(t *testing.T) {
	a, err := newRegistry(t, newFakeKPA()).Init(ModelKPA1500)
	require.NoError(t, err)
	defer a.Cleanup()

	cfg := a.Port()
	cfg.Type = port.TypeNone
	assert.ErrorIs(t, a.SetPort(cfg), amp.ErrInvalid)
	assert.Equal(t, port.TypeSerial, a.Port().Type)

	// A closed instance has no connection; the backend must refuse, not crash.
	var b Backend
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, b.Open(a), amp.ErrInvalid)
		assert.ErrorIs(t, b.SetPowerStat(a, amp.PowerOperate), amp.ErrInvalid)
	})
}
