package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"ampctl/pkg/amp"
	"ampctl/pkg/catalog"
	"ampctl/pkg/drivers/dummy"
	"ampctl/pkg/port"
	"ampctl/templates"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

const version = "1.0"

func list(c *cli.Context) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	reg.LoadAllBackends()

	fmt.Fprintf(c.App.Writer, "%6s  %-16s %-20s %-12s %s\n", "Model", "Mfg", "Name", "Version", "Status")
	for caps := range reg.Enumerate(nil) {
		fmt.Fprintf(c.App.Writer, "%6d  %-16s %-20s %-12s %s\n",
			caps.Model, caps.MfgName, caps.ModelName, caps.Version, caps.Status)
	}
	return nil
}

func dumpCaps(c *cli.Context) error {
	s := settingsFrom(c)

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	if err := reg.CheckBackend(s.model); err != nil {
		return err
	}
	caps, err := reg.Lookup(s.model)
	if err != nil {
		return err
	}

	tmpl, err := templates.LoadTextTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}
	return tmpl.ExecuteTemplate(c.App.Writer, "caps", catalog.Describe(caps))
}

func probe(c *cli.Context) error {
	s := settingsFrom(c)

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	reg.LoadAllBackends()

	cfg := port.Config{Type: port.TypeSerial, Path: s.ampFile, Rate: s.speed}
	if cfg.Path == "" {
		cfg.Path = port.DefaultSerialPath
	}

	model, err := reg.Probe(cfg)
	if err != nil {
		return err
	}
	caps, err := reg.Lookup(model)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, caps)
	return nil
}

func serve(c *cli.Context) error {
	s := settingsFrom(c)
	listen := s.listen
	if c.IsSet("listen") {
		listen = c.String("listen")
	}

	log.Info("ampctl catalog")

	tmpl, err := templates.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	report := reg.LoadAllBackends()
	log.Infof("Loaded backends %v", report.Loaded)

	hostname, _ := os.Hostname()
	server := catalog.NewServer(catalog.Description{
		Name:     "ampctl catalog",
		Version:  version,
		Location: hostname,
	}, reg, tmpl, log.WithField("component", "catalog"))

	srv := &http.Server{
		Addr:    listen,
		Handler: server.AddRoutes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if s.discovery || c.Bool("discovery") {
		_, portStr, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("listen address %q: %v", listen, err)
		}
		catalogPort, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("listen port %q: %v", portStr, err)
		}

		dr, err := catalog.NewDiscoveryResponder("0.0.0.0", catalog.DiscoveryPort, catalogPort,
			server.Description().ServerID, log.WithField("component", "discovery"))
		if err != nil {
			return fmt.Errorf("failed to start discovery responder: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dr.Run(ctx); err != nil {
				log.Errorf("Discovery responder failed: %v", err)
			}
			log.Debug("Discovery responder stopped")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Debugf("Catalog started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", srv.Addr, err)
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down catalog...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("catalog forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Catalog stopped")
	return nil
}

func before(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	log.SetLevel(s.level)
	c.App.Metadata = map[string]any{settingsKey: s}
	return nil
}

func newApp(out io.Writer) *cli.App {
	commands := []*cli.Command{
		{
			Name:   "list",
			Usage:  "List the known models",
			Action: list,
		},
		{
			Name:   "caps",
			Usage:  "Print the capabilities of the selected model",
			Action: dumpCaps,
		},
		{
			Name:   "probe",
			Usage:  "Find which model is attached to the serial port",
			Action: probe,
		},
		{
			Name:  "serve",
			Usage: "Publish the model catalog over HTTP",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "listen",
					Aliases: []string{"l"},
					Usage:   "Address to listen on",
					Value:   ":8090",
					EnvVars: []string{"AMPCTL_LISTEN"},
				},
				&cli.BoolFlag{
					Name:    "discovery",
					Usage:   "Answer UDP discovery requests",
					EnvVars: []string{"AMPCTL_DISCOVERY"},
				},
			},
			Action: serve,
		},
	}

	return &cli.App{
		Name:    "ampctl",
		Usage:   "Control amplifiers and antenna tuners",
		Version: version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Read settings from a YAML file",
				EnvVars: []string{"AMPCTL_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Amplifier model number, see list",
				Value:   int(dummy.Model),
				EnvVars: []string{"AMPCTL_MODEL"},
			},
			&cli.StringFlag{
				Name:    "amp-file",
				Aliases: []string{"r"},
				Usage:   "Device path, host:port or broker URL",
				EnvVars: []string{"AMPCTL_FILE"},
			},
			&cli.IntFlag{
				Name:    "serial-speed",
				Aliases: []string{"s"},
				Usage:   "Serial speed in baud",
			},
			&cli.StringSliceFlag{
				Name:    "set-conf",
				Aliases: []string{"C"},
				Usage:   "Set a configuration parameter, name=value",
			},
		},
		Before:   before,
		Commands: append(commands, ampCommands()...),
	}
}

func main() {
	app := newApp(os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Println(amp.ReplyStatus(err))
		log.Fatalf("Error: %v", err)
	}
}
