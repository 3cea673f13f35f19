package amp

import (
	"errors"
	"fmt"
	"testing"

	"ampctl/pkg/port"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubBackend records every verb that reaches it.
type stubBackend struct {
	UnimplementedBackend
	mock.Mock
}

func (s *stubBackend) SetFreq(a *Amp, f Freq) error { return s.Called(a, f).Error(0) }
func (s *stubBackend) GetFreq(a *Amp) (Freq, error) {
	ret := s.Called(a)
	return ret.Get(0).(Freq), ret.Error(1)
}
func (s *stubBackend) SetConf(a *Amp, tok Token, val string) error {
	return s.Called(a, tok, val).Error(0)
}
func (s *stubBackend) GetConf(a *Amp, tok Token) (string, error) {
	ret := s.Called(a, tok)
	return ret.String(0), ret.Error(1)
}
func (s *stubBackend) Reset(a *Amp, kind ResetKind) error { return s.Called(a, kind).Error(0) }
func (s *stubBackend) GetLevel(a *Amp, level Level) (Value, error) {
	ret := s.Called(a, level)
	return ret.Get(0).(Value), ret.Error(1)
}
func (s *stubBackend) GetExtLevel(a *Amp, tok Token) (Value, error) {
	ret := s.Called(a, tok)
	return ret.Get(0).(Value), ret.Error(1)
}
func (s *stubBackend) SetPowerStat(a *Amp, status PowerStat) error {
	return s.Called(a, status).Error(0)
}
func (s *stubBackend) GetPowerStat(a *Amp) (PowerStat, error) {
	ret := s.Called(a)
	return ret.Get(0).(PowerStat), ret.Error(1)
}
func (s *stubBackend) GetInfo(a *Amp) (string, error) {
	ret := s.Called(a)
	return ret.String(0), ret.Error(1)
}

// lifecycleBackend fails the lifecycle verbs on request.
type lifecycleBackend struct {
	UnimplementedBackend
	initErr error
	openErr error
	opened  int
	closed  int
}

func (b *lifecycleBackend) Init(*Amp) error { return b.initErr }
func (b *lifecycleBackend) Open(*Amp) error {
	b.opened++
	return b.openErr
}
func (b *lifecycleBackend) Close(*Amp) error {
	b.closed++
	return nil
}

const stubModel Model = 1

func stubCaps(model Model, backend Backend) *Caps {
	return &Caps{
		Model:       model,
		ModelName:   "Stub",
		MfgName:     "Test",
		Version:     "1.0",
		Status:      StatusAlpha,
		Port:        PortDefaults{Type: port.TypeNone, Timeout: 10, Retry: 1},
		HasGetLevel: Levels(LevelSWR),
		LevelGran:   map[Level]Gran{LevelSWR: {Min: 1, Max: 10, Step: 0.1}},
		ConfParams: []ConfParam{
			{ID: 100, Name: "mode", Label: "Mode", Default: "auto", Type: ParamString},
			{ID: 101, Name: "bypass", Label: "Bypass", Default: "0", Type: ParamCheckButton},
		},
		ExtLevels: []ConfParam{
			{ID: 200, Name: "temperature", Label: "Temperature", Type: ParamNumeric},
		},
		Backend: backend,
	}
}

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewRegistry(logger, opts...)
}

func openStub(t *testing.T) (*Registry, *Amp, *stubBackend) {
	t.Helper()
	stub := &stubBackend{}
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(stubCaps(stubModel, stub)))

	a, err := reg.Init(stubModel)
	require.NoError(t, err)
	require.NoError(t, a.Open())
	return reg, a, stub
}

func TestSWRScenario(t *testing.T) {
	reg, a, stub := openStub(t)
	caps, err := reg.Lookup(stubModel)
	require.NoError(t, err)

	stub.On("GetLevel", a, LevelSWR).Return(FloatValue(1.3), nil).Once()

	swr, err := a.GetLevelFloat(LevelSWR)
	require.NoError(t, err)
	assert.InDelta(t, 1.3, swr, 1e-9)

	_, err = a.GetLevelString(LevelFault)
	assert.ErrorIs(t, err, ErrUnsupported)
	stub.AssertNotCalled(t, "GetLevel", a, LevelFault)
	stub.AssertNumberOfCalls(t, "GetLevel", 1)

	require.NoError(t, a.Close())
	require.NoError(t, a.Cleanup())

	after, err := reg.Lookup(stubModel)
	require.NoError(t, err)
	assert.Same(t, caps, after)
	assert.Equal(t, 0, reg.Live(stubModel))
}

func TestInitUnknownModel(t *testing.T) {
	reg := newTestRegistry(t)

	a, err := reg.Init(42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, a)
	assert.Equal(t, 0, reg.Live(42))
}

func TestInitBackendFailure(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(stubCaps(stubModel, &lifecycleBackend{initErr: errors.New("no memory")})))

	_, err := reg.Init(stubModel)
	assert.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, 0, reg.Live(stubModel))
}

func TestVerbsRequireOpen(t *testing.T) {
	tok := func(a *Amp) Token { return a.token(100) }
	ext := func(a *Amp) Token { return a.token(200) }

	verbs := []struct {
		name string
		call func(a *Amp) error
	}{
		{"SetFreq", func(a *Amp) error { return a.SetFreq(14.2e6) }},
		{"GetFreq", func(a *Amp) error { _, err := a.GetFreq(); return err }},
		{"GetLevel", func(a *Amp) error { _, err := a.GetLevelFloat(LevelSWR); return err }},
		{"GetExtLevel", func(a *Amp) error { _, err := a.GetExtLevel(ext(a)); return err }},
		{"Reset", func(a *Amp) error { return a.Reset(ResetFault) }},
		{"SetPowerStat", func(a *Amp) error { return a.SetPowerStat(PowerOperate) }},
		{"GetPowerStat", func(a *Amp) error { _, err := a.GetPowerStat(); return err }},
		{"GetInfo", func(a *Amp) error { _, err := a.GetInfo(); return err }},
		{"SetConf", func(a *Amp) error { return a.SetConf(tok(a), "manual") }},
		{"GetConf", func(a *Amp) error { _, err := a.GetConf(tok(a)); return err }},
	}

	for _, v := range verbs {
		t.Run(v.name, func(t *testing.T) {
			stub := &stubBackend{}
			reg := newTestRegistry(t)
			require.NoError(t, reg.Register(stubCaps(stubModel, stub)))
			a, err := reg.Init(stubModel)
			require.NoError(t, err)

			assert.ErrorIs(t, v.call(a), ErrNotOpen, "before open")

			require.NoError(t, a.Open())
			require.NoError(t, a.Close())
			assert.ErrorIs(t, v.call(a), ErrNotOpen, "after close")

			require.NoError(t, a.Cleanup())
			assert.ErrorIs(t, v.call(a), ErrNotOpen, "after cleanup")

			stub.AssertExpectations(t)
			assert.Empty(t, stub.Calls)
		})
	}
}

func TestGetLevelTypeMismatch(t *testing.T) {
	_, a, stub := openStub(t)

	v := Value{Kind: KindString}
	err := a.GetLevel(LevelSWR, &v)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Empty(t, stub.Calls)

	err = a.GetLevel(LevelSWR, nil)
	assert.ErrorIs(t, err, ErrInvalid)

	stub.On("GetLevel", a, LevelSWR).Return(StringValue("oops"), nil).Once()
	_, err = a.GetLevelFloat(LevelSWR)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBackendErrorsPropagate(t *testing.T) {
	_, a, stub := openStub(t)

	timeout := fmt.Errorf("read: %w", port.ErrTimeout)
	stub.On("GetFreq", a).Return(Freq(0), timeout).Once()
	stub.On("GetInfo", a).Return("", ErrRejected).Once()

	_, err := a.GetFreq()
	assert.Equal(t, timeout, err)

	_, err = a.GetInfo()
	assert.Equal(t, ErrRejected, err)
	stub.AssertExpectations(t)
}

func TestDispatchValidation(t *testing.T) {
	_, a, stub := openStub(t)

	assert.ErrorIs(t, a.SetFreq(0), ErrInvalid)
	assert.ErrorIs(t, a.SetFreq(-1), ErrInvalid)
	assert.ErrorIs(t, a.Reset(ResetKind(9)), ErrInvalid)
	assert.ErrorIs(t, a.SetPowerStat(PowerUnknown), ErrInvalid)
	assert.ErrorIs(t, a.SetPowerStat(PowerStat(3)), ErrInvalid)
	assert.Empty(t, stub.Calls)

	stub.On("SetFreq", a, Freq(7.1e6)).Return(nil).Once()
	stub.On("Reset", a, ResetMem).Return(nil).Once()
	stub.On("SetPowerStat", a, PowerStandby).Return(nil).Once()
	stub.On("GetPowerStat", a).Return(PowerStandby, nil).Once()

	assert.NoError(t, a.SetFreq(7.1e6))
	assert.NoError(t, a.Reset(ResetMem))
	assert.NoError(t, a.SetPowerStat(PowerStandby))
	ps, err := a.GetPowerStat()
	require.NoError(t, err)
	assert.Equal(t, PowerStandby, ps)
	stub.AssertExpectations(t)
}

func TestUnimplementedVerbs(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(stubCaps(stubModel, UnimplementedBackend{})))

	a, err := reg.Init(stubModel)
	require.NoError(t, err)
	require.NoError(t, a.Open())

	_, err = a.GetInfo()
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, err = a.GetLevelFloat(LevelSWR)
	assert.ErrorIs(t, err, ErrNotImplemented)

	require.NoError(t, a.Close())
	require.NoError(t, a.Cleanup())
}

func TestLifecycle(t *testing.T) {
	backend := &lifecycleBackend{}
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(stubCaps(stubModel, backend)))

	a, err := reg.Init(stubModel)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Live(stubModel))

	assert.NoError(t, a.Close(), "close while closed")
	assert.Equal(t, 0, backend.closed)

	require.NoError(t, a.Open())
	assert.True(t, a.IsOpen())
	assert.ErrorIs(t, a.Open(), ErrBusy)
	assert.ErrorIs(t, a.Cleanup(), ErrBusy)
	assert.ErrorIs(t, reg.Unregister(stubModel), ErrBusy)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, backend.closed)

	require.NoError(t, a.Cleanup())
	assert.Equal(t, 0, reg.Live(stubModel))
	assert.ErrorIs(t, a.Open(), ErrInvalid)
	assert.ErrorIs(t, a.Close(), ErrInvalid)
	assert.ErrorIs(t, a.Cleanup(), ErrInvalid)

	assert.NoError(t, reg.Unregister(stubModel))
}

type memTransport struct {
	closed bool
}

func (m *memTransport) Read([]byte) (int, error)    { return 0, nil }
func (m *memTransport) Write(p []byte) (int, error) { return len(p), nil }
func (m *memTransport) Flush() error                { return nil }
func (m *memTransport) Close() error {
	m.closed = true
	return nil
}

func TestOpenTransport(t *testing.T) {
	var opened []port.Config
	tr := &memTransport{}
	opener := func(cfg port.Config) (port.Transport, error) {
		opened = append(opened, cfg)
		return tr, nil
	}

	backend := &lifecycleBackend{openErr: port.ErrIO}
	reg := newTestRegistry(t, WithOpener(opener))
	caps := stubCaps(stubModel, backend)
	caps.Port = PortDefaults{Type: port.TypeSerial, RateMin: 1200, RateMax: 9600, DataBits: 8, StopBits: 1, Retry: 3}
	require.NoError(t, reg.Register(caps))

	a, err := reg.Init(stubModel)
	require.NoError(t, err)
	assert.Equal(t, 9600, a.Port().Rate)
	assert.Equal(t, port.DefaultSerialPath, a.Port().Path)

	err = a.Open()
	assert.ErrorIs(t, err, port.ErrIO)
	assert.False(t, a.IsOpen())
	assert.True(t, tr.closed)
	assert.Nil(t, a.Transport())

	backend.openErr = nil
	tr.closed = false
	require.NoError(t, a.Open())
	require.NotNil(t, a.Conn())
	assert.Equal(t, 3, a.Conn().Config().Retry)
	require.Len(t, opened, 2)
	assert.Equal(t, a.Port(), opened[1])

	require.NoError(t, a.Close())
	assert.True(t, tr.closed)
	assert.Nil(t, a.Conn())
}

func TestSetPort(t *testing.T) {
	_, a, _ := openStub(t)

	cfg := a.Port()
	cfg.Path = "/dev/ttyUSB1"
	assert.ErrorIs(t, a.SetPort(cfg), ErrBusy)

	require.NoError(t, a.Close())
	require.NoError(t, a.SetPort(cfg))
	assert.Equal(t, "/dev/ttyUSB1", a.Port().Path)

	other := cfg
	other.Type = port.TypeNetwork
	assert.ErrorIs(t, a.SetPort(other), ErrInvalid)
	assert.Equal(t, cfg.Type, a.Port().Type)
}

func TestRestrictGetLevel(t *testing.T) {
	reg := newTestRegistry(t)
	caps := stubCaps(stubModel, &stubBackend{})
	caps.HasGetLevel = Levels(LevelSWR, LevelPwrForward)
	caps.LevelGran[LevelPwrForward] = Gran{Min: 0, Max: 1500, Step: 1}
	require.NoError(t, reg.Register(caps))

	a, err := reg.Init(stubModel)
	require.NoError(t, err)

	a.RestrictGetLevel(Levels(LevelPwrForward, LevelFault))
	assert.Equal(t, Levels(LevelPwrForward), a.HasGetLevel(Levels(AllLevels()...)))

	_, err = a.LevelGran(LevelSWR)
	assert.ErrorIs(t, err, ErrUnsupported)
	g, err := a.LevelGran(LevelPwrForward)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, g.Max)

	assert.Equal(t, Levels(LevelSWR, LevelPwrForward), caps.HasGetLevel, "descriptor must not change")
	_, ok := caps.LevelGran[LevelSWR]
	assert.True(t, ok)
}
