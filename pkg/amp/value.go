package amp

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tells which field of a Value is meaningful.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindFloat
	KindInt
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	}
	return "none"
}

// Value is a typed level or parameter value.
type Value struct {
	Kind ValueKind
	F    float64
	I    int
	S    string
}

func FloatValue(f float64) Value { return Value{Kind: KindFloat, F: f} }
func IntValue(i int) Value       { return Value{Kind: KindInt, I: i} }
func StringValue(s string) Value { return Value{Kind: KindString, S: s} }

func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(v.F, 'f', -1, 64)
	case KindInt:
		return strconv.Itoa(v.I)
	case KindString:
		return v.S
	}
	return ""
}

// Gran is the resolution of a level: its range and step.
type Gran struct {
	Min  float64
	Max  float64
	Step float64
}

func (g Gran) String() string {
	return fmt.Sprintf("%g..%g/%g", g.Min, g.Max, g.Step)
}

// Freq is a frequency in hertz.
type Freq float64

// PowerStat is the power state of an amplifier.
type PowerStat int

const (
	PowerOff     PowerStat = 0
	PowerOn      PowerStat = 1
	PowerStandby PowerStat = 2
	PowerOperate PowerStat = 4
	PowerUnknown PowerStat = 8
)

var powerStatNames = map[PowerStat]string{
	PowerOff:     "OFF",
	PowerOn:      "ON",
	PowerStandby: "STANDBY",
	PowerOperate: "OPERATE",
	PowerUnknown: "UNKNOWN",
}

func (p PowerStat) String() string {
	if name, ok := powerStatNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PowerStat(%d)", int(p))
}

// ParsePowerStat accepts a state name or its numeric value.
func ParsePowerStat(s string) (PowerStat, error) {
	for p, name := range powerStatNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := powerStatNames[PowerStat(n)]; ok {
			return PowerStat(n), nil
		}
	}
	return PowerUnknown, fmt.Errorf("power state %q: %w", s, ErrInvalid)
}

// ResetKind selects what Reset clears.
type ResetKind int

const (
	ResetMem   ResetKind = iota // erase tuner memory
	ResetFault                  // clear any latched fault
	ResetAmp                    // reset the amplifier itself
)

var resetNames = []string{"MEM", "FAULT", "AMP"}

func (r ResetKind) String() string {
	if r >= 0 && int(r) < len(resetNames) {
		return resetNames[r]
	}
	return fmt.Sprintf("ResetKind(%d)", int(r))
}

func ParseResetKind(s string) (ResetKind, error) {
	for i, name := range resetNames {
		if strings.EqualFold(name, s) {
			return ResetKind(i), nil
		}
	}
	return 0, fmt.Errorf("reset kind %q: %w", s, ErrInvalid)
}
