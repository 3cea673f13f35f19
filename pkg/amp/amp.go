package amp

import (
	"errors"
	"fmt"
	"maps"

	"ampctl/pkg/port"

	log "github.com/sirupsen/logrus"
)

type commState int

const (
	stateClosed commState = iota
	stateOpen
	stateDestroyed
)

func (s commState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// State is the private, mutable part of an instance.
type State struct {
	Port port.Config

	comm      commState
	transport port.Transport
	conn      *port.Conn

	hasGetLevel LevelSet
	levelGran   map[Level]Gran

	// Priv holds backend data for this instance.
	Priv any
	// Obj is an opaque value owned by the caller, e.g. for event hookup.
	Obj any
}

// Amp is a handle on one amplifier. It is not safe for concurrent use:
// callers sharing an Amp between goroutines must serialise calls.
type Amp struct {
	caps   *Caps
	state  State
	reg    *Registry
	logger log.FieldLogger
}

// Init creates an instance of model. The instance starts Closed with its
// port configured from the model defaults.
func (r *Registry) Init(model Model) (*Amp, error) {
	caps, err := r.acquire(model)
	if err != nil {
		return nil, err
	}

	a := &Amp{
		caps: caps,
		reg:  r,
		logger: r.logger.WithFields(log.Fields{
			"model": caps.Model,
			"name":  caps.ModelName,
		}),
		state: State{
			Port:        caps.Port.Config(),
			comm:        stateClosed,
			hasGetLevel: caps.HasGetLevel,
			levelGran:   maps.Clone(caps.LevelGran),
		},
	}
	if a.state.levelGran == nil {
		a.state.levelGran = make(map[Level]Gran)
	}

	if err := caps.Backend.Init(a); err != nil && !errors.Is(err, ErrNotImplemented) {
		r.release(model)
		return nil, fmt.Errorf("model %d: %w: %w", model, ErrAllocation, err)
	}

	a.logger.Debug("Initialised")
	return a, nil
}

// Caps returns the shared descriptor of the instance.
func (a *Amp) Caps() *Caps {
	return a.caps
}

// State gives backends access to the instance state.
func (a *Amp) State() *State {
	return &a.state
}

func (a *Amp) Logger() log.FieldLogger {
	return a.logger
}

func (a *Amp) IsOpen() bool {
	return a.state.comm == stateOpen
}

// Port returns the current port configuration.
func (a *Amp) Port() port.Config {
	return a.state.Port
}

// SetPort replaces the port configuration. The instance must be Closed and
// the port type must stay the one of the model.
func (a *Amp) SetPort(cfg port.Config) error {
	if err := a.checkClosed(); err != nil {
		return err
	}
	if cfg.Type != a.caps.Port.Type {
		return fmt.Errorf("port type %v, model %d uses %v: %w", cfg.Type, a.caps.Model, a.caps.Port.Type, ErrInvalid)
	}
	a.state.Port = cfg
	return nil
}

// Transport returns the open transport, nil when the port type is none or
// the instance is closed.
func (a *Amp) Transport() port.Transport {
	return a.state.transport
}

// Conn returns the command/reply connection over the open transport.
func (a *Amp) Conn() *port.Conn {
	return a.state.conn
}

// Open opens the transport and then the backend. On failure the instance
// stays Closed.
func (a *Amp) Open() error {
	switch a.state.comm {
	case stateOpen:
		return fmt.Errorf("already open: %w", ErrBusy)
	case stateDestroyed:
		return fmt.Errorf("instance cleaned up: %w", ErrInvalid)
	}

	if a.state.Port.Type != port.TypeNone {
		t, err := a.reg.open(a.state.Port)
		if err != nil {
			return err
		}
		a.state.transport = t
		a.state.conn = port.NewConn(t, a.state.Port, a.logger.WithField("port", a.state.Port.Path))
	}

	if err := a.caps.Backend.Open(a); err != nil && !errors.Is(err, ErrNotImplemented) {
		a.closeTransport()
		return err
	}

	a.state.comm = stateOpen
	a.logger.Infof("Opened on %s", a.describePort())
	return nil
}

// Close closes the backend and the transport. Closing a Closed instance
// does nothing.
func (a *Amp) Close() error {
	switch a.state.comm {
	case stateClosed:
		return nil
	case stateDestroyed:
		return fmt.Errorf("instance cleaned up: %w", ErrInvalid)
	}

	err := a.caps.Backend.Close(a)
	if errors.Is(err, ErrNotImplemented) {
		err = nil
	}
	a.closeTransport()
	a.state.comm = stateClosed

	a.logger.Info("Closed")
	return err
}

// Cleanup releases the instance. It must be Closed; the descriptor stays
// registered.
func (a *Amp) Cleanup() error {
	switch a.state.comm {
	case stateOpen:
		return fmt.Errorf("close before cleanup: %w", ErrBusy)
	case stateDestroyed:
		return fmt.Errorf("instance cleaned up: %w", ErrInvalid)
	}

	err := a.caps.Backend.Cleanup(a)
	if errors.Is(err, ErrNotImplemented) {
		err = nil
	}

	a.state = State{comm: stateDestroyed}
	a.reg.release(a.caps.Model)
	a.logger.Debug("Cleaned up")
	return err
}

func (a *Amp) closeTransport() {
	if a.state.transport == nil {
		return
	}
	if err := a.state.transport.Close(); err != nil {
		a.logger.Warnf("Failed to close port: %v", err)
	}
	a.state.transport = nil
	a.state.conn = nil
}

func (a *Amp) describePort() string {
	if a.state.Port.Type == port.TypeNone {
		return "no port"
	}
	return fmt.Sprintf("%s %s", a.state.Port.Type, a.state.Port.Path)
}

// checkOpen guards every data operation.
func (a *Amp) checkOpen() error {
	switch a.state.comm {
	case stateOpen:
		return nil
	case stateDestroyed:
		return fmt.Errorf("instance cleaned up: %w", ErrNotOpen)
	}
	return ErrNotOpen
}

func (a *Amp) checkClosed() error {
	switch a.state.comm {
	case stateClosed:
		return nil
	case stateOpen:
		return fmt.Errorf("port in use: %w", ErrBusy)
	}
	return fmt.Errorf("instance cleaned up: %w", ErrInvalid)
}

// HasGetLevel returns the subset of levels this instance can read.
func (a *Amp) HasGetLevel(levels LevelSet) LevelSet {
	return a.state.hasGetLevel.Intersect(levels)
}

// HasSetLevel returns the subset of levels the model can set.
func (a *Amp) HasSetLevel(levels LevelSet) LevelSet {
	return a.caps.HasSetLevel.Intersect(levels)
}

// RestrictGetLevel narrows the readable levels of this instance to those
// also in levels. It never adds levels the model does not advertise.
func (a *Amp) RestrictGetLevel(levels LevelSet) {
	a.state.hasGetLevel = a.state.hasGetLevel.Intersect(levels)
	for l := range a.state.levelGran {
		if !a.state.hasGetLevel.Has(l) {
			delete(a.state.levelGran, l)
		}
	}
}

// LevelGran returns the granularity of level for this instance.
func (a *Amp) LevelGran(level Level) (Gran, error) {
	g, ok := a.state.levelGran[level]
	if !ok {
		return Gran{}, fmt.Errorf("granularity of %v: %w", level, ErrUnsupported)
	}
	return g, nil
}
