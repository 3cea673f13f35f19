package amp

import (
	"ampctl/pkg/port"

	log "github.com/sirupsen/logrus"
)

// Backend is the device specific half of an amplifier model. The core
// validates every request against the model's Caps before calling it, so
// implementations only deal with the device protocol.
//
// A Backend value is shared by all instances of the models it registers;
// per-instance data belongs in State.Priv.
type Backend interface {
	Init(a *Amp) error
	Cleanup(a *Amp) error
	Open(a *Amp) error
	Close(a *Amp) error

	SetFreq(a *Amp, f Freq) error
	GetFreq(a *Amp) (Freq, error)

	SetConf(a *Amp, tok Token, val string) error
	GetConf(a *Amp, tok Token) (string, error)

	Reset(a *Amp, kind ResetKind) error
	GetLevel(a *Amp, level Level) (Value, error)
	GetExtLevel(a *Amp, tok Token) (Value, error)
	SetPowerStat(a *Amp, status PowerStat) error
	GetPowerStat(a *Amp) (PowerStat, error)

	GetInfo(a *Amp) (string, error)
}

// Prober is implemented by backends that can recognise their device on a
// port. open is the transport factory of the registry and logger its
// logger.
type Prober interface {
	Probe(open Opener, cfg port.Config, logger log.FieldLogger) (Model, bool)
}

// UnimplementedBackend answers every verb with ErrNotImplemented. Backends
// embed it and override what their device supports.
type UnimplementedBackend struct{}

var _ Backend = UnimplementedBackend{}

func (UnimplementedBackend) Init(*Amp) error    { return ErrNotImplemented }
func (UnimplementedBackend) Cleanup(*Amp) error { return ErrNotImplemented }
func (UnimplementedBackend) Open(*Amp) error    { return ErrNotImplemented }
func (UnimplementedBackend) Close(*Amp) error   { return ErrNotImplemented }

func (UnimplementedBackend) SetFreq(*Amp, Freq) error { return ErrNotImplemented }
func (UnimplementedBackend) GetFreq(*Amp) (Freq, error) {
	return 0, ErrNotImplemented
}

func (UnimplementedBackend) SetConf(*Amp, Token, string) error { return ErrNotImplemented }
func (UnimplementedBackend) GetConf(*Amp, Token) (string, error) {
	return "", ErrNotImplemented
}

func (UnimplementedBackend) Reset(*Amp, ResetKind) error { return ErrNotImplemented }
func (UnimplementedBackend) GetLevel(*Amp, Level) (Value, error) {
	return Value{}, ErrNotImplemented
}
func (UnimplementedBackend) GetExtLevel(*Amp, Token) (Value, error) {
	return Value{}, ErrNotImplemented
}
func (UnimplementedBackend) SetPowerStat(*Amp, PowerStat) error { return ErrNotImplemented }
func (UnimplementedBackend) GetPowerStat(*Amp) (PowerStat, error) {
	return PowerUnknown, ErrNotImplemented
}

func (UnimplementedBackend) GetInfo(*Amp) (string, error) { return "", ErrNotImplemented }
