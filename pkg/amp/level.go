package amp

import (
	"fmt"
	"math/bits"
	"strings"
)

// Level is one adjustable or readable amplifier quantity. Every Level is a
// single bit so that a set of levels fits in a LevelSet.
type Level uint32

const (
	LevelNone         Level = 0
	LevelSWR          Level = 1 << 0 // standing wave ratio, 1.0 or greater
	LevelNH           Level = 1 << 1 // tuner inductance, nanohenries
	LevelPF           Level = 1 << 2 // tuner capacitance, picofarads
	LevelPwrInput     Level = 1 << 3 // drive power, watts
	LevelPwrForward   Level = 1 << 4 // forward power, watts
	LevelPwrReflected Level = 1 << 5 // reflected power, watts
	LevelPwrPeak      Level = 1 << 6 // peak power, watts
	LevelFault        Level = 1 << 7 // fault description
)

const (
	floatLevels  = LevelSWR | LevelNH | LevelPF | LevelPwrInput | LevelPwrForward | LevelPwrReflected | LevelPwrPeak
	stringLevels = LevelFault

	allLevels = LevelSWR | LevelNH | LevelPF | LevelPwrInput | LevelPwrForward |
		LevelPwrReflected | LevelPwrPeak | LevelFault
)

// The value-kind classes must be disjoint and cover every level. Either
// array below gets a non-zero length and fails to compile otherwise.
var (
	_ [0]struct{} = [floatLevels & stringLevels]struct{}{}
	_ [0]struct{} = [allLevels ^ (floatLevels | stringLevels)]struct{}{}
)

var levelNames = map[Level]string{
	LevelSWR:          "SWR",
	LevelNH:           "NH",
	LevelPF:           "PF",
	LevelPwrInput:     "PWRINPUT",
	LevelPwrForward:   "PWRFORWARD",
	LevelPwrReflected: "PWRREFLECTED",
	LevelPwrPeak:      "PWRPEAK",
	LevelFault:        "FAULT",
}

// IsFloat reports whether the level carries a numeric value.
func (l Level) IsFloat() bool {
	return l.Valid() && l&floatLevels != 0
}

// IsString reports whether the level carries a textual value.
func (l Level) IsString() bool {
	return l.Valid() && l&stringLevels != 0
}

// Valid reports whether l is exactly one defined level.
func (l Level) Valid() bool {
	return l != LevelNone && l&allLevels == l && bits.OnesCount32(uint32(l)) == 1
}

// Kind returns the value kind of the level, or KindNone for invalid levels.
func (l Level) Kind() ValueKind {
	switch {
	case l.IsFloat():
		return KindFloat
	case l.IsString():
		return KindString
	}
	return KindNone
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	if l == LevelNone {
		return ""
	}
	return fmt.Sprintf("Level(%#x)", uint32(l))
}

// ParseLevel returns the level with the given name, ignoring case.
func ParseLevel(name string) (Level, error) {
	for l, n := range levelNames {
		if strings.EqualFold(n, name) {
			return l, nil
		}
	}
	return LevelNone, fmt.Errorf("level %q: %w", name, ErrNotFound)
}

// AllLevels returns every defined level in bit order.
func AllLevels() []Level {
	return LevelSet(allLevels).Levels()
}

// LevelSet is a fixed-width set of levels.
type LevelSet uint32

// Levels builds a set from individual levels.
func Levels(levels ...Level) LevelSet {
	var s LevelSet
	return s.With(levels...)
}

// Has reports whether every bit of l is in the set. LevelNone is never
// contained.
func (s LevelSet) Has(l Level) bool {
	return l != LevelNone && Level(s)&l == l
}

func (s LevelSet) With(levels ...Level) LevelSet {
	for _, l := range levels {
		s |= LevelSet(l)
	}
	return s
}

func (s LevelSet) Union(o LevelSet) LevelSet {
	return s | o
}

func (s LevelSet) Intersect(o LevelSet) LevelSet {
	return s & o
}

func (s LevelSet) Empty() bool {
	return s == 0
}

// Levels lists the members in ascending bit order.
func (s LevelSet) Levels() []Level {
	var out []Level
	for v := uint32(s); v != 0; v &= v - 1 {
		out = append(out, Level(1)<<bits.TrailingZeros32(v))
	}
	return out
}

func (s LevelSet) String() string {
	names := make([]string, 0, bits.OnesCount32(uint32(s)))
	for _, l := range s.Levels() {
		names = append(names, l.String())
	}
	return strings.Join(names, " ")
}
