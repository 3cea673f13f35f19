// Package dummy is a simulated amplifier with an automatic antenna tuner.
// It needs no hardware and supports every generic verb, which makes it the
// reference backend for the command line tool and for tests.
package dummy

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"ampctl/pkg/amp"
	"ampctl/pkg/port"

	bolt "go.etcd.io/bbolt"
)

const (
	Model amp.Model = 1

	modelName     = "Dummy"
	mfgName       = "ampctl"
	driverVersion = "20260301.0"

	defaultFreq = 14.2e6
	gain        = 15.0 // ratio of forward to input power
	impedance   = 50.0
)

const (
	tokPower   amp.TokenID = 100
	tokFault   amp.TokenID = 101
	tokTemp    amp.TokenID = 200
	tokFan     amp.TokenID = 201
	tokAntenna amp.TokenID = 300
)

// Backend is the dummy amplifier. Its memory is a bbolt file named by the
// port path; with no path the memory is lost on close.
type Backend struct {
	amp.UnimplementedBackend
}

type dummyAmp struct {
	db       *bolt.DB
	store    *store
	tempFile string

	freq     amp.Freq
	power    amp.PowerStat
	fault    string
	tuning   Tuning
	settings Settings
	opened   time.Time
}

func Caps() *amp.Caps {
	return &amp.Caps{
		Model:     Model,
		ModelName: modelName,
		MfgName:   mfgName,
		Version:   driverVersion,
		Copyright: "LGPL",
		Status:    amp.StatusStable,
		Port: amp.PortDefaults{
			Type:    port.TypeNone,
			Timeout: time.Second,
		},
		ConfParams: []amp.ConfParam{
			{ID: tokPower, Name: "power", Label: "Power",
				Tooltip: "Output power in operate, watts", Default: strconv.Itoa(defaultPower),
				Type: amp.ParamNumeric, Numeric: amp.NumericRange{Min: 0, Max: 1500, Step: 1}},
			{ID: tokFault, Name: "fault", Label: "Simulated fault",
				Tooltip: "Latch this fault text, empty clears it", Type: amp.ParamString},
		},
		HasGetLevel: amp.Levels(amp.AllLevels()...),
		LevelGran: map[amp.Level]amp.Gran{
			amp.LevelSWR:          {Min: 1, Max: 10, Step: 0.01},
			amp.LevelNH:           {Min: 0, Max: 10000, Step: 1},
			amp.LevelPF:           {Min: 0, Max: 5000, Step: 1},
			amp.LevelPwrInput:     {Min: 0, Max: 100, Step: 1},
			amp.LevelPwrForward:   {Min: 0, Max: 1500, Step: 1},
			amp.LevelPwrReflected: {Min: 0, Max: 1500, Step: 1},
			amp.LevelPwrPeak:      {Min: 0, Max: 1500, Step: 1},
		},
		ExtLevels: []amp.ConfParam{
			{ID: tokTemp, Name: "temperature", Label: "PA temperature",
				Tooltip: "Heat sink temperature, Celsius", Type: amp.ParamNumeric,
				Numeric: amp.NumericRange{Min: 0, Max: 100, Step: 0.1}},
			{ID: tokFan, Name: "fan_speed", Label: "Fan speed",
				Tooltip: "Fan speed step", Type: amp.ParamNumeric,
				Numeric: amp.NumericRange{Min: 0, Max: 6, Step: 1}},
		},
		ExtParams: []amp.ConfParam{
			{ID: tokAntenna, Name: "antenna", Label: "Antenna",
				Tooltip: "Selected antenna port", Default: defaultAntenna, Type: amp.ParamCombo,
				Options: []string{"1", "2", "3"}},
		},
		Backend: Backend{},
	}
}

// Register adds the dummy model to r.
func Register(r *amp.Registry) error {
	return r.Register(Caps())
}

func priv(a *amp.Amp) *dummyAmp {
	return a.State().Priv.(*dummyAmp)
}

func (Backend) Init(a *amp.Amp) error {
	a.State().Priv = &dummyAmp{
		freq:  defaultFreq,
		power: amp.PowerOff,
	}
	return nil
}

func (Backend) Cleanup(a *amp.Amp) error {
	a.State().Priv = nil
	return nil
}

func (Backend) Open(a *amp.Amp) error {
	d := priv(a)

	path := a.Port().Path
	if path == "" {
		f, err := os.CreateTemp("", "ampctl-dummy-*.db")
		if err != nil {
			return fmt.Errorf("%w: %v", port.ErrIO, err)
		}
		f.Close()
		path = f.Name()
		d.tempFile = path
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: a.Port().Timeout})
	if err != nil {
		d.removeTemp()
		return fmt.Errorf("%w: tuner memory %s: %v", port.ErrIO, path, err)
	}
	st, err := newStore(db, a.Logger())
	if err != nil {
		db.Close()
		d.removeTemp()
		return fmt.Errorf("%w: %v", port.ErrIO, err)
	}
	settings, err := st.Settings()
	if err != nil {
		db.Close()
		d.removeTemp()
		return fmt.Errorf("%w: %v", port.ErrIO, err)
	}

	d.db, d.store, d.settings = db, st, settings
	d.opened = time.Now()
	if err := d.tune(); err != nil {
		d.close()
		return err
	}

	a.Logger().Debugf("Tuner memory in %s", path)
	return nil
}

func (Backend) Close(a *amp.Amp) error {
	return priv(a).close()
}

func (d *dummyAmp) close() error {
	var err error
	if d.db != nil {
		err = d.db.Close()
		d.db, d.store = nil, nil
	}
	d.removeTemp()
	return err
}

func (d *dummyAmp) removeTemp() {
	if d.tempFile != "" {
		os.Remove(d.tempFile)
		d.tempFile = ""
	}
}

func band(f amp.Freq) int {
	return int(math.Round(float64(f) / 1e6))
}

// tune recalls the memory of the current band, creating it on first use.
func (d *dummyAmp) tune() error {
	b := band(d.freq)
	t, ok, err := d.store.Tuning(b)
	if err != nil {
		return fmt.Errorf("%w: %v", port.ErrIO, err)
	}
	if !ok {
		w := 2 * math.Pi * float64(d.freq)
		t = Tuning{
			NH:  math.Round(impedance / w * 1e9),
			PF:  math.Round(1 / (w * impedance) * 1e12),
			SWR: 1.1 + 0.05*float64(b%5),
		}
		if err := d.store.SetTuning(b, t); err != nil {
			return fmt.Errorf("%w: %v", port.ErrIO, err)
		}
	}
	d.tuning = t
	return nil
}

func (Backend) SetFreq(a *amp.Amp, f amp.Freq) error {
	d := priv(a)
	d.freq = f
	return d.tune()
}

func (Backend) GetFreq(a *amp.Amp) (amp.Freq, error) {
	return priv(a).freq, nil
}

func (Backend) SetConf(a *amp.Amp, tok amp.Token, val string) error {
	d := priv(a)

	switch tok.ID() {
	case tokPower:
		w, err := strconv.ParseFloat(val, 64)
		if err != nil || w < 0 || w > 1500 {
			return fmt.Errorf("power %q: %w", val, amp.ErrInvalid)
		}
		d.settings.Power = w
	case tokFault:
		d.fault = val
		return nil
	case tokAntenna:
		switch val {
		case "1", "2", "3":
		default:
			return fmt.Errorf("antenna %q: %w", val, amp.ErrInvalid)
		}
		d.settings.Antenna = val
	default:
		return amp.ErrNotImplemented
	}

	if err := d.store.SetSettings(d.settings); err != nil {
		return fmt.Errorf("%w: %v", port.ErrIO, err)
	}
	return nil
}

func (Backend) GetConf(a *amp.Amp, tok amp.Token) (string, error) {
	d := priv(a)

	switch tok.ID() {
	case tokPower:
		return strconv.FormatFloat(d.settings.Power, 'f', -1, 64), nil
	case tokFault:
		return d.fault, nil
	case tokAntenna:
		return d.settings.Antenna, nil
	}
	return "", amp.ErrNotImplemented
}

func (Backend) Reset(a *amp.Amp, kind amp.ResetKind) error {
	d := priv(a)

	switch kind {
	case amp.ResetMem:
		if err := d.store.Clear(); err != nil {
			return fmt.Errorf("%w: %v", port.ErrIO, err)
		}
		return d.tune()
	case amp.ResetFault:
		d.fault = ""
	case amp.ResetAmp:
		d.fault = ""
		d.power = amp.PowerOff
	}
	return nil
}

func (d *dummyAmp) forward() float64 {
	if d.power != amp.PowerOperate || d.fault != "" {
		return 0
	}
	return d.settings.Power
}

func (Backend) GetLevel(a *amp.Amp, level amp.Level) (amp.Value, error) {
	d := priv(a)
	fwd := d.forward()

	switch level {
	case amp.LevelSWR:
		return amp.FloatValue(d.tuning.SWR), nil
	case amp.LevelNH:
		return amp.FloatValue(d.tuning.NH), nil
	case amp.LevelPF:
		return amp.FloatValue(d.tuning.PF), nil
	case amp.LevelPwrInput:
		return amp.FloatValue(fwd / gain), nil
	case amp.LevelPwrForward:
		return amp.FloatValue(fwd), nil
	case amp.LevelPwrReflected:
		rho := (d.tuning.SWR - 1) / (d.tuning.SWR + 1)
		return amp.FloatValue(math.Round(fwd*rho*rho*10) / 10), nil
	case amp.LevelPwrPeak:
		return amp.FloatValue(fwd * 1.1), nil
	case amp.LevelFault:
		if d.fault == "" {
			return amp.StringValue("None"), nil
		}
		return amp.StringValue(d.fault), nil
	}
	return amp.Value{}, amp.ErrNotImplemented
}

func (Backend) GetExtLevel(a *amp.Amp, tok amp.Token) (amp.Value, error) {
	d := priv(a)

	// The heat sink warms up with output power over the first minutes.
	warm := math.Min(time.Since(d.opened).Minutes()/5, 1)
	temp := 25 + warm*d.forward()/30

	switch tok.ID() {
	case tokTemp:
		return amp.FloatValue(math.Round(temp*10) / 10), nil
	case tokFan:
		return amp.IntValue(min(int(math.Max(temp-30, 0)/8), 6)), nil
	}
	return amp.Value{}, amp.ErrNotImplemented
}

func (Backend) SetPowerStat(a *amp.Amp, status amp.PowerStat) error {
	priv(a).power = status
	return nil
}

func (Backend) GetPowerStat(a *amp.Amp) (amp.PowerStat, error) {
	return priv(a).power, nil
}

func (Backend) GetInfo(a *amp.Amp) (string, error) {
	n, err := priv(a).store.Count()
	if err != nil {
		return "", fmt.Errorf("%w: %v", port.ErrIO, err)
	}
	return fmt.Sprintf("%s %s, %d tuner memories", modelName, driverVersion, n), nil
}
