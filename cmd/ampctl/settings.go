package main

import (
	"fmt"
	"strconv"
	"strings"

	"ampctl/pkg/amp"
	"ampctl/pkg/config"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

type confSetting struct {
	name  string
	value string
}

// settings is the configuration file merged with the command line.
type settings struct {
	model     amp.Model
	ampFile   string
	speed     int
	level     log.Level
	conf      []confSetting
	listen    string
	discovery bool
}

const settingsKey = "settings"

func loadSettings(c *cli.Context) (*settings, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	s := settings{
		model:     amp.Model(c.Int("model")),
		ampFile:   cfg.AmpFile,
		speed:     cfg.SerialSpeed,
		level:     level,
		listen:    cfg.Catalog.Listen,
		discovery: cfg.Catalog.Discovery,
	}
	if !c.IsSet("model") && cfg.Model != 0 {
		s.model = amp.Model(cfg.Model)
	}
	if c.IsSet("amp-file") {
		s.ampFile = c.String("amp-file")
	}
	if c.IsSet("serial-speed") {
		s.speed = c.Int("serial-speed")
	}
	if c.Bool("debug") {
		s.level = log.DebugLevel
	}

	for _, name := range cfg.ConfNames() {
		s.conf = append(s.conf, confSetting{name: name, value: cfg.Conf[name]})
	}
	for _, kv := range c.StringSlice("set-conf") {
		setting, err := parseConfSetting(kv)
		if err != nil {
			return nil, err
		}
		s.conf = append(s.conf, setting)
	}
	return &s, nil
}

// parseConfSetting splits a "name=value" command line setting.
func parseConfSetting(kv string) (confSetting, error) {
	name, value, ok := strings.Cut(kv, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return confSetting{}, fmt.Errorf("conf setting %q is not name=value: %w", kv, amp.ErrInvalid)
	}
	return confSetting{name: name, value: value}, nil
}

func settingsFrom(c *cli.Context) *settings {
	return c.App.Metadata[settingsKey].(*settings)
}

// portSettings lists the settings to apply to a new instance, the port
// path and speed first.
func (s *settings) portSettings() []confSetting {
	var out []confSetting
	if s.ampFile != "" {
		out = append(out, confSetting{name: "amp_pathname", value: s.ampFile})
	}
	if s.speed > 0 {
		out = append(out, confSetting{name: "serial_speed", value: strconv.Itoa(s.speed)})
	}
	return append(out, s.conf...)
}
