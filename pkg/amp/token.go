package amp

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"time"

	"ampctl/pkg/port"
)

// Frontend parameters configure the port of any instance, whatever its
// model.
const (
	TokPathname       TokenID = 1
	TokWriteDelay     TokenID = 2
	TokPostWriteDelay TokenID = 3
	TokTimeout        TokenID = 4
	TokRetry          TokenID = 5

	TokSerialSpeed     TokenID = 10
	TokDataBits        TokenID = 11
	TokStopBits        TokenID = 12
	TokSerialParity    TokenID = 13
	TokSerialHandshake TokenID = 14
)

var frontendParams = []ConfParam{
	{ID: TokPathname, Name: "amp_pathname", Label: "Amp path name",
		Tooltip: "Path name to the device file of the amplifier", Default: port.DefaultSerialPath, Type: ParamString},
	{ID: TokWriteDelay, Name: "write_delay", Label: "Write delay",
		Tooltip: "Delay in ms between each byte sent out", Default: "0", Type: ParamNumeric,
		Numeric: NumericRange{Min: 0, Max: 1000, Step: 1}},
	{ID: TokPostWriteDelay, Name: "post_write_delay", Label: "Post write delay",
		Tooltip: "Delay in ms between each command sent out", Default: "0", Type: ParamNumeric,
		Numeric: NumericRange{Min: 0, Max: 1000, Step: 1}},
	{ID: TokTimeout, Name: "timeout", Label: "Timeout",
		Tooltip: "Timeout in ms", Default: "0", Type: ParamNumeric,
		Numeric: NumericRange{Min: 0, Max: 10000, Step: 1}},
	{ID: TokRetry, Name: "retry", Label: "Retry",
		Tooltip: "Max number of retry", Default: "0", Type: ParamNumeric,
		Numeric: NumericRange{Min: 0, Max: 10, Step: 1}},
	{ID: TokSerialSpeed, Name: "serial_speed", Label: "Serial speed",
		Tooltip: "Serial port baud rate", Default: "0", Type: ParamNumeric,
		Numeric: NumericRange{Min: 300, Max: 500000, Step: 1}},
	{ID: TokDataBits, Name: "data_bits", Label: "Serial data bits",
		Tooltip: "Serial port data bits", Default: "8", Type: ParamNumeric,
		Numeric: NumericRange{Min: 5, Max: 8, Step: 1}},
	{ID: TokStopBits, Name: "stop_bits", Label: "Serial stop bits",
		Tooltip: "Serial port stop bits", Default: "1", Type: ParamNumeric,
		Numeric: NumericRange{Min: 0, Max: 3, Step: 1}},
	{ID: TokSerialParity, Name: "serial_parity", Label: "Serial parity",
		Tooltip: "Serial port parity", Default: "None", Type: ParamCombo,
		Options: []string{"None", "Odd", "Even", "Mark", "Space"}},
	{ID: TokSerialHandshake, Name: "serial_handshake", Label: "Serial handshake",
		Tooltip: "Serial port handshake", Default: "None", Type: ParamCombo,
		Options: []string{"None", "XONXOFF", "Hardware"}},
}

// FrontendParams returns the port parameters accepted by every instance.
func FrontendParams() []ConfParam {
	return slices.Clone(frontendParams)
}

func findParam(params []ConfParam, id TokenID) *ConfParam {
	for i := range params {
		if params[i].ID == id {
			return &params[i]
		}
	}
	return nil
}

func findParamByName(params []ConfParam, name string) *ConfParam {
	for i := range params {
		if params[i].Name == name {
			return &params[i]
		}
	}
	return nil
}

func (a *Amp) token(id TokenID) Token {
	return Token{caps: a.caps, id: id}
}

// checkToken rejects tokens minted for another descriptor.
func (a *Amp) checkToken(tok Token) error {
	if !tok.Valid() {
		return fmt.Errorf("token %v: %w", tok, ErrInvalid)
	}
	if tok.caps != a.caps {
		return fmt.Errorf("token %v used on model %d: %w", tok, a.caps.Model, ErrTokenMismatch)
	}
	return nil
}

// ConfParamLookup finds a configuration parameter by name. Like the
// command line tools, it also accepts the decimal token id.
func (a *Amp) ConfParamLookup(name string) (*ConfParam, error) {
	if p := findParamByName(frontendParams, name); p != nil {
		return p, nil
	}
	if p := findParamByName(a.caps.ConfParams, name); p != nil {
		return p, nil
	}
	if id, err := strconv.Atoi(name); err == nil && id != int(TokenInvalid) {
		if p := findParam(frontendParams, TokenID(id)); p != nil {
			return p, nil
		}
		if p := findParam(a.caps.ConfParams, TokenID(id)); p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("conf parameter %q: %w", name, ErrNotFound)
}

// ConfParamByToken returns the configuration parameter tok refers to.
func (a *Amp) ConfParamByToken(tok Token) (*ConfParam, error) {
	if err := a.checkToken(tok); err != nil {
		return nil, err
	}
	if p := findParam(frontendParams, tok.id); p != nil {
		return p, nil
	}
	if p := findParam(a.caps.ConfParams, tok.id); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("conf token %v: %w", tok, ErrNotFound)
}

// TokenLookup returns the token of the named configuration parameter.
func (a *Amp) TokenLookup(name string) (Token, error) {
	p, err := a.ConfParamLookup(name)
	if err != nil {
		return Token{}, err
	}
	return a.token(p.ID), nil
}

// ExtLookup finds an extension level or parameter by name.
func (a *Amp) ExtLookup(name string) (*ConfParam, error) {
	if p := findParamByName(a.caps.ExtLevels, name); p != nil {
		return p, nil
	}
	if p := findParamByName(a.caps.ExtParams, name); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("ext parameter %q: %w", name, ErrNotFound)
}

// ExtTokenLookup returns the token of the named extension level or
// parameter.
func (a *Amp) ExtTokenLookup(name string) (Token, error) {
	p, err := a.ExtLookup(name)
	if err != nil {
		return Token{}, err
	}
	return a.token(p.ID), nil
}

// ConfParams yields the frontend parameters followed by the model's own.
func (a *Amp) ConfParams() iter.Seq[*ConfParam] {
	return func(yield func(*ConfParam) bool) {
		for _, params := range [][]ConfParam{frontendParams, a.caps.ConfParams} {
			for i := range params {
				if !yield(&params[i]) {
					return
				}
			}
		}
	}
}

// SetConf sets a configuration parameter. Port parameters may only be
// changed while the instance is Closed; backend parameters need it Open.
func (a *Amp) SetConf(tok Token, val string) error {
	if err := a.checkToken(tok); err != nil {
		return err
	}
	if tok.IsFrontend() {
		if err := a.checkClosed(); err != nil {
			return err
		}
		return a.setFrontendConf(tok.id, val)
	}

	if err := a.checkOpen(); err != nil {
		return err
	}
	if findParam(a.caps.ConfParams, tok.id) == nil && findParam(a.caps.ExtParams, tok.id) == nil {
		return fmt.Errorf("conf token %v: %w", tok, ErrUnsupported)
	}
	return a.caps.Backend.SetConf(a, tok, val)
}

// GetConf reads a configuration parameter.
func (a *Amp) GetConf(tok Token) (string, error) {
	if err := a.checkToken(tok); err != nil {
		return "", err
	}
	if tok.IsFrontend() {
		return a.getFrontendConf(tok.id)
	}

	if err := a.checkOpen(); err != nil {
		return "", err
	}
	if findParam(a.caps.ConfParams, tok.id) == nil && findParam(a.caps.ExtParams, tok.id) == nil {
		return "", fmt.Errorf("conf token %v: %w", tok, ErrUnsupported)
	}
	return a.caps.Backend.GetConf(a, tok)
}

func (a *Amp) setFrontendConf(id TokenID, val string) error {
	p := &a.state.Port

	atoi := func() (int, error) {
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("value %q: %w", val, ErrInvalid)
		}
		return n, nil
	}

	switch id {
	case TokPathname:
		p.Path = val
	case TokWriteDelay, TokPostWriteDelay, TokTimeout:
		n, err := atoi()
		if err != nil {
			return err
		}
		d := time.Duration(n) * time.Millisecond
		switch id {
		case TokWriteDelay:
			p.WriteDelay = d
		case TokPostWriteDelay:
			p.PostWriteDelay = d
		default:
			p.Timeout = d
		}
	case TokRetry:
		n, err := atoi()
		if err != nil {
			return err
		}
		p.Retry = n
	case TokSerialSpeed, TokDataBits, TokStopBits:
		if p.Type != port.TypeSerial {
			return fmt.Errorf("%s port has no serial settings: %w", p.Type, ErrInvalid)
		}
		n, err := atoi()
		if err != nil {
			return err
		}
		switch id {
		case TokSerialSpeed:
			if rmin, rmax := a.caps.Port.RateMin, a.caps.Port.RateMax; rmax > 0 && (n < rmin || n > rmax) {
				return fmt.Errorf("speed %d outside %d..%d: %w", n, rmin, rmax, ErrInvalid)
			}
			p.Rate = n
		case TokDataBits:
			p.DataBits = n
		default:
			p.StopBits = n
		}
	case TokSerialParity:
		if p.Type != port.TypeSerial {
			return fmt.Errorf("%s port has no parity: %w", p.Type, ErrInvalid)
		}
		parity, err := port.ParseParity(val)
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		p.Parity = parity
	case TokSerialHandshake:
		if p.Type != port.TypeSerial {
			return fmt.Errorf("%s port has no handshake: %w", p.Type, ErrInvalid)
		}
		hs, err := port.ParseHandshake(val)
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		p.Handshake = hs
	default:
		return fmt.Errorf("frontend token %d: %w", id, ErrNotFound)
	}
	return nil
}

func (a *Amp) getFrontendConf(id TokenID) (string, error) {
	p := a.state.Port
	ms := func(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }

	switch id {
	case TokPathname:
		return p.Path, nil
	case TokWriteDelay:
		return ms(p.WriteDelay), nil
	case TokPostWriteDelay:
		return ms(p.PostWriteDelay), nil
	case TokTimeout:
		return ms(p.Timeout), nil
	case TokRetry:
		return strconv.Itoa(p.Retry), nil
	case TokSerialSpeed:
		return strconv.Itoa(p.Rate), nil
	case TokDataBits:
		return strconv.Itoa(p.DataBits), nil
	case TokStopBits:
		return strconv.Itoa(p.StopBits), nil
	case TokSerialParity:
		return p.Parity.String(), nil
	case TokSerialHandshake:
		return p.Handshake.String(), nil
	}
	return "", fmt.Errorf("frontend token %d: %w", id, ErrNotFound)
}
