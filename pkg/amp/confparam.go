package amp

import "fmt"

// TokenID is the number a backend assigns to one of its parameters.
type TokenID int

const (
	// TokenInvalid is never assigned to a parameter.
	TokenInvalid TokenID = 0

	// TokenBackendBase is the first ID available to backends. IDs below it
	// are reserved for the frontend port parameters.
	TokenBackendBase TokenID = 100
)

// Token identifies a configuration or extension parameter of one
// descriptor. Tokens are obtained from an Amp and are only accepted by
// instances of the same descriptor.
type Token struct {
	caps *Caps
	id   TokenID
}

func (t Token) ID() TokenID { return t.id }

func (t Token) Valid() bool { return t.id != TokenInvalid && t.caps != nil }

// IsFrontend reports whether the token addresses a port parameter handled
// by the core rather than the backend.
func (t Token) IsFrontend() bool {
	return t.id > TokenInvalid && t.id < TokenBackendBase
}

func (t Token) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d@%d", t.id, t.caps.Model)
}

// ParamType is the value type of a configuration parameter.
type ParamType int

const (
	ParamString ParamType = iota
	ParamCombo
	ParamNumeric
	ParamCheckButton
	ParamButton
	ParamBinary
)

var paramTypeNames = []string{"STRING", "COMBO", "NUMERIC", "CHECKBUTTON", "BUTTON", "BINARY"}

func (p ParamType) String() string {
	if p >= 0 && int(p) < len(paramTypeNames) {
		return paramTypeNames[p]
	}
	return fmt.Sprintf("ParamType(%d)", int(p))
}

// NumericRange bounds a ParamNumeric value.
type NumericRange struct {
	Min  float64
	Max  float64
	Step float64
}

// ConfParam describes one named parameter.
type ConfParam struct {
	ID      TokenID
	Name    string
	Label   string
	Tooltip string
	Default string
	Type    ParamType

	Numeric NumericRange // ParamNumeric only
	Options []string     // ParamCombo only
}
