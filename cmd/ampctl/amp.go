package main

import (
	"fmt"
	"strconv"

	"ampctl/pkg/amp"
	"ampctl/pkg/drivers"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

func newRegistry() (*amp.Registry, error) {
	reg := amp.NewRegistry(log.WithField("component", "registry"))
	if err := drivers.Install(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// openAmp creates and opens an instance of the selected model. Port
// settings are applied before the instance opens, backend settings after.
func openAmp(s *settings) (*amp.Amp, func(), error) {
	reg, err := newRegistry()
	if err != nil {
		return nil, nil, err
	}
	if err := reg.CheckBackend(s.model); err != nil {
		return nil, nil, err
	}

	a, err := reg.Init(s.model)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Cleanup(); err != nil {
			log.Warnf("Cleanup failed: %v", err)
		}
	}

	var deferred []confSetting
	for _, setting := range s.portSettings() {
		tok, err := a.TokenLookup(setting.name)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if !tok.IsFrontend() {
			deferred = append(deferred, setting)
			continue
		}
		if err := a.SetConf(tok, setting.value); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("set %s: %w", setting.name, err)
		}
	}

	if err := a.Open(); err != nil {
		cleanup()
		return nil, nil, err
	}
	done := func() {
		if err := a.Close(); err != nil {
			log.Warnf("Close failed: %v", err)
		}
		cleanup()
	}

	for _, setting := range deferred {
		tok, _ := a.TokenLookup(setting.name)
		if err := a.SetConf(tok, setting.value); err != nil {
			done()
			return nil, nil, fmt.Errorf("set %s: %w", setting.name, err)
		}
	}
	return a, done, nil
}

// withAmp runs fn on an open instance.
func withAmp(fn func(c *cli.Context, a *amp.Amp) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, done, err := openAmp(settingsFrom(c))
		if err != nil {
			return err
		}
		defer done()
		return fn(c, a)
	}
}

func needArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("usage: %s %s: %w", c.Command.Name, c.Command.ArgsUsage, amp.ErrInvalid)
	}
	return nil
}

func ampCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "info",
			Usage:  "Print the device identification",
			Action: withAmp(getInfo),
		},
		{
			Name:   "get-freq",
			Usage:  "Print the frequency in Hz",
			Action: withAmp(getFreq),
		},
		{
			Name:      "set-freq",
			Usage:     "Set the frequency in Hz",
			ArgsUsage: "<hz>",
			Action:    withAmp(setFreq),
		},
		{
			Name:      "get-level",
			Usage:     "Print a level, or every readable level",
			ArgsUsage: "[level]",
			Action:    withAmp(getLevel),
		},
		{
			Name:      "get-ext-level",
			Usage:     "Print a model specific level",
			ArgsUsage: "<name>",
			Action:    withAmp(getExtLevel),
		},
		{
			Name:      "reset",
			Usage:     "Reset the tuner memory, a fault or the amplifier",
			ArgsUsage: "<MEM|FAULT|AMP>",
			Action:    withAmp(reset),
		},
		{
			Name:   "get-power",
			Usage:  "Print the power state",
			Action: withAmp(getPower),
		},
		{
			Name:      "set-power",
			Usage:     "Set the power state",
			ArgsUsage: "<OFF|ON|STANDBY|OPERATE>",
			Action:    withAmp(setPower),
		},
		{
			Name:      "get-conf",
			Usage:     "Print a configuration parameter",
			ArgsUsage: "<name>",
			Action:    withAmp(getConf),
		},
		{
			Name:      "set-conf",
			Usage:     "Set a backend configuration parameter",
			ArgsUsage: "<name> <value>",
			Action:    withAmp(setConf),
		},
	}
}

func getInfo(c *cli.Context, a *amp.Amp) error {
	info, err := a.GetInfo()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, info)
	return nil
}

func getFreq(c *cli.Context, a *amp.Amp) error {
	f, err := a.GetFreq()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%.0f\n", float64(f))
	return nil
}

func setFreq(c *cli.Context, a *amp.Amp) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(c.Args().First(), 64)
	if err != nil {
		return fmt.Errorf("frequency %q: %w", c.Args().First(), amp.ErrInvalid)
	}
	return a.SetFreq(amp.Freq(f))
}

func getLevel(c *cli.Context, a *amp.Amp) error {
	if c.NArg() == 0 {
		for _, l := range a.HasGetLevel(amp.Levels(amp.AllLevels()...)).Levels() {
			if err := printLevel(c, a, l, true); err != nil {
				return err
			}
		}
		return nil
	}
	if err := needArgs(c, 1); err != nil {
		return err
	}

	l, err := amp.ParseLevel(c.Args().First())
	if err != nil {
		return err
	}
	return printLevel(c, a, l, false)
}

func printLevel(c *cli.Context, a *amp.Amp, l amp.Level, named bool) error {
	v := amp.Value{Kind: l.Kind()}
	if err := a.GetLevel(l, &v); err != nil {
		return err
	}
	if named {
		fmt.Fprintf(c.App.Writer, "%s: %s\n", l, v)
	} else {
		fmt.Fprintln(c.App.Writer, v)
	}
	return nil
}

func getExtLevel(c *cli.Context, a *amp.Amp) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	tok, err := a.ExtTokenLookup(c.Args().First())
	if err != nil {
		return err
	}
	v, err := a.GetExtLevel(tok)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, v)
	return nil
}

func reset(c *cli.Context, a *amp.Amp) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	kind, err := amp.ParseResetKind(c.Args().First())
	if err != nil {
		return err
	}
	return a.Reset(kind)
}

func getPower(c *cli.Context, a *amp.Amp) error {
	ps, err := a.GetPowerStat()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, ps)
	return nil
}

func setPower(c *cli.Context, a *amp.Amp) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	ps, err := amp.ParsePowerStat(c.Args().First())
	if err != nil {
		return err
	}
	return a.SetPowerStat(ps)
}

func getConf(c *cli.Context, a *amp.Amp) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	tok, err := a.TokenLookup(c.Args().First())
	if err != nil {
		return err
	}
	val, err := a.GetConf(tok)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, val)
	return nil
}

// setConf changes a backend parameter of the open instance. Port
// parameters are set with --set-conf since they need a closed instance.
func setConf(c *cli.Context, a *amp.Amp) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	tok, err := a.TokenLookup(c.Args().Get(0))
	if err != nil {
		return err
	}
	return a.SetConf(tok, c.Args().Get(1))
}
