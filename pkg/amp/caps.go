package amp

import (
	"fmt"
	"time"

	"ampctl/pkg/port"
)

// Model identifies an amplifier model across the registry.
type Model int

// ModelNone is never registered.
const ModelNone Model = 0

// Family is the backend module number a model belongs to.
func (m Model) Family() int {
	return int(m) / 100
}

// DriverStatus classifies the maturity of a backend.
type DriverStatus int

const (
	StatusAlpha DriverStatus = iota
	StatusUntested
	StatusBeta
	StatusStable
	StatusBuggy
)

var driverStatusNames = []string{"Alpha", "Untested", "Beta", "Stable", "Buggy"}

func (s DriverStatus) String() string {
	if s >= 0 && int(s) < len(driverStatusNames) {
		return driverStatusNames[s]
	}
	return fmt.Sprintf("DriverStatus(%d)", int(s))
}

// PortDefaults is the communication policy a model expects. It is copied
// into every instance and handed to the transport when the instance opens.
type PortDefaults struct {
	Type      port.Type
	RateMin   int
	RateMax   int
	DataBits  int
	StopBits  int
	Parity    port.Parity
	Handshake port.Handshake

	WriteDelay     time.Duration
	PostWriteDelay time.Duration
	Timeout        time.Duration
	Retry          int
}

// Config returns the initial port configuration of a new instance.
func (d PortDefaults) Config() port.Config {
	cfg := port.Config{
		Type:           d.Type,
		Rate:           d.RateMax,
		DataBits:       d.DataBits,
		StopBits:       d.StopBits,
		Parity:         d.Parity,
		Handshake:      d.Handshake,
		WriteDelay:     d.WriteDelay,
		PostWriteDelay: d.PostWriteDelay,
		Timeout:        d.Timeout,
		Retry:          d.Retry,
	}
	switch d.Type {
	case port.TypeSerial:
		cfg.Path = port.DefaultSerialPath
	case port.TypeNetwork:
		cfg.Path = port.DefaultNetworkPath
	}
	return cfg
}

// Caps describes one amplifier model. It is written by the backend,
// registered once and shared read-only by every instance of the model; it
// must not be modified after Register.
type Caps struct {
	Model     Model
	ModelName string
	MfgName   string
	Version   string
	Copyright string
	Status    DriverStatus

	Port PortDefaults

	ConfParams []ConfParam

	HasGetLevel LevelSet
	HasSetLevel LevelSet
	LevelGran   map[Level]Gran

	ExtLevels []ConfParam
	ExtParams []ConfParam

	Backend Backend
}

func (c *Caps) String() string {
	return fmt.Sprintf("%d %s %s", c.Model, c.MfgName, c.ModelName)
}

// validate checks the invariants Register relies on.
func (c *Caps) validate() error {
	if c.Model == ModelNone {
		return fmt.Errorf("model id 0: %w", ErrInvalid)
	}
	if c.Backend == nil {
		return fmt.Errorf("model %d has no backend: %w", c.Model, ErrInvalid)
	}
	for l := range c.LevelGran {
		if !l.Valid() {
			return fmt.Errorf("model %d: granularity for %v: %w", c.Model, l, ErrInvalid)
		}
	}

	ids := make(map[TokenID]string)
	checkIDs := func(params []ConfParam) error {
		for _, p := range params {
			if p.ID < TokenBackendBase {
				return fmt.Errorf("model %d: parameter %q id %d below %d: %w",
					c.Model, p.Name, p.ID, TokenBackendBase, ErrInvalid)
			}
			if other, dup := ids[p.ID]; dup {
				return fmt.Errorf("model %d: parameters %q and %q share id %d: %w",
					c.Model, other, p.Name, p.ID, ErrInvalid)
			}
			ids[p.ID] = p.Name
		}
		return nil
	}
	checkNames := func(params []ConfParam, seen map[string]bool) error {
		for _, p := range params {
			if p.Name == "" {
				return fmt.Errorf("model %d: parameter %d has no name: %w", c.Model, p.ID, ErrInvalid)
			}
			if seen[p.Name] {
				return fmt.Errorf("model %d: duplicate parameter %q: %w", c.Model, p.Name, ErrInvalid)
			}
			seen[p.Name] = true
		}
		return nil
	}

	for _, params := range [][]ConfParam{c.ConfParams, c.ExtLevels, c.ExtParams} {
		if err := checkIDs(params); err != nil {
			return err
		}
	}

	confNames := make(map[string]bool)
	for _, p := range frontendParams {
		confNames[p.Name] = true
	}
	if err := checkNames(c.ConfParams, confNames); err != nil {
		return err
	}

	extNames := make(map[string]bool)
	if err := checkNames(c.ExtLevels, extNames); err != nil {
		return err
	}
	return checkNames(c.ExtParams, extNames)
}
