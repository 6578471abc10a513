// gorbl-sim runs the simulated controller on a serial device or on
// stdin/stdout, optionally mirroring its output over websockets and its
// status to a Modbus TCP endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"gorbl/core"
	"gorbl/host/bridge"
	"gorbl/host/mirror"
	"gorbl/host/serial"
	"gorbl/settings"
	"gorbl/standalone"
	"gorbl/standalone/config"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device; overrides the configuration")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}
	if *device != "" {
		cfg.Link.Device = *device
		cfg.Link.Stdio = false
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level")
	}

	// Firmware packages report through the core debug hook
	core.SetDebugWriter(func(msg string) { log.Debug(msg) })
	core.SetDebugEnabled(log.IsLevelEnabled(logrus.DebugLevel))
	core.InitAsyncDebug()

	if err := run(log, cfg); err != nil {
		log.WithError(err).Fatal("simulator stopped")
	}
}

func run(log *logrus.Logger, cfg *config.Config) error {
	port, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	if err := os.MkdirAll(cfg.NVSDir, 0o755); err != nil {
		return err
	}

	rcfg := cfg.ReportConfig()
	m, err := standalone.NewMachine(log, cfg, port, settings.FileBackend{Dir: cfg.NVSDir}, &rcfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Bridge.Enabled {
		b := bridge.New(log, m.Transport, m.NewInput())
		go func() {
			if err := b.Start(cfg.Bridge.Listen); err != nil {
				log.WithError(err).Error("bridge failed")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = b.Shutdown(sctx)
		}()
	}

	if cfg.Mirror.Enabled {
		mc := cfg.Mirror
		ep, err := mirror.Dial(mc.Endpoint, mc.Timeout)
		if err != nil {
			return err
		}
		defer ep.Close()
		mr := mirror.New(log.WithField("endpoint", mc.Endpoint), ep, mirror.MachineSampler(m), mirror.Config{
			UnitID:       mc.UnitID,
			BaseRegister: mc.BaseRegister,
			Interval:     mc.Interval,
		})
		go mr.Run(ctx)
	}

	if err := m.Start(); err != nil {
		return err
	}
	go pump(ctx, log, port, m, stop)

	log.WithFields(logrus.Fields{
		"device": cfg.Link.Device,
		"stdio":  cfg.Link.Stdio,
	}).Info("controller running")

	err = m.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openLink(cfg *config.Config) (serial.Port, error) {
	if cfg.Link.Stdio {
		return serial.Stdio(), nil
	}
	sc := serial.DefaultConfig(cfg.Link.Device)
	sc.Baud = cfg.Link.Baud
	sc.ReadTimeout = 0
	return serial.Open(sc)
}

// pump copies link input into the controller. The link closing ends the
// run.
func pump(ctx context.Context, log logrus.FieldLogger, port io.Reader, m *standalone.Machine, stop func()) {
	defer stop()
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if n > 0 {
			if _, werr := m.Write(buf[:n]); werr != nil {
				log.WithError(werr).Warn("input dropped")
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Error("link read failed")
			}
			return
		}
	}
}
