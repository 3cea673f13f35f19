package amp

import "fmt"

// The verbs below validate the request against the instance and its caps,
// then hand it to the backend. Backend errors are returned as they are.

func (a *Amp) SetFreq(f Freq) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if f <= 0 {
		return fmt.Errorf("frequency %v: %w", f, ErrInvalid)
	}
	return a.caps.Backend.SetFreq(a, f)
}

func (a *Amp) GetFreq() (Freq, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}
	return a.caps.Backend.GetFreq(a)
}

// GetLevel reads level into val. The caller declares the kind it expects
// in val.Kind; it must match the kind of the level.
func (a *Amp) GetLevel(level Level, val *Value) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if val == nil || !level.Valid() {
		return fmt.Errorf("level %v: %w", level, ErrInvalid)
	}
	if !a.state.hasGetLevel.Has(level) {
		return fmt.Errorf("get level %v: %w", level, ErrUnsupported)
	}
	if val.Kind != level.Kind() {
		return fmt.Errorf("level %v is %v, not %v: %w", level, level.Kind(), val.Kind, ErrTypeMismatch)
	}

	v, err := a.caps.Backend.GetLevel(a, level)
	if err != nil {
		return err
	}
	// A reply of the wrong kind would break the caller's declared slot.
	if v.Kind != level.Kind() {
		return fmt.Errorf("backend returned %v for %v: %w", v.Kind, level, ErrTypeMismatch)
	}
	*val = v
	return nil
}

// GetLevelFloat reads a numeric level.
func (a *Amp) GetLevelFloat(level Level) (float64, error) {
	v := Value{Kind: KindFloat}
	if err := a.GetLevel(level, &v); err != nil {
		return 0, err
	}
	return v.F, nil
}

// GetLevelString reads a textual level.
func (a *Amp) GetLevelString(level Level) (string, error) {
	v := Value{Kind: KindString}
	if err := a.GetLevel(level, &v); err != nil {
		return "", err
	}
	return v.S, nil
}

// GetExtLevel reads one of the model's extension levels.
func (a *Amp) GetExtLevel(tok Token) (Value, error) {
	if err := a.checkOpen(); err != nil {
		return Value{}, err
	}
	if err := a.checkToken(tok); err != nil {
		return Value{}, err
	}
	if findParam(a.caps.ExtLevels, tok.id) == nil {
		return Value{}, fmt.Errorf("ext level %d: %w", tok.id, ErrUnsupported)
	}
	return a.caps.Backend.GetExtLevel(a, tok)
}

func (a *Amp) Reset(kind ResetKind) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if kind < ResetMem || kind > ResetAmp {
		return fmt.Errorf("reset %v: %w", kind, ErrInvalid)
	}
	return a.caps.Backend.Reset(a, kind)
}

func (a *Amp) SetPowerStat(status PowerStat) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if _, ok := powerStatNames[status]; !ok || status == PowerUnknown {
		return fmt.Errorf("power state %v: %w", status, ErrInvalid)
	}
	return a.caps.Backend.SetPowerStat(a, status)
}

func (a *Amp) GetPowerStat() (PowerStat, error) {
	if err := a.checkOpen(); err != nil {
		return PowerUnknown, err
	}
	return a.caps.Backend.GetPowerStat(a)
}

// GetInfo returns a human readable description of the device, usually
// its firmware identification.
func (a *Amp) GetInfo() (string, error) {
	if err := a.checkOpen(); err != nil {
		return "", err
	}
	return a.caps.Backend.GetInfo(a)
}
