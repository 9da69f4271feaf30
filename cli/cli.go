// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package cli holds the flag and connection handling shared by the goswim
// command line tools.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bbnote/goswim"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// EnvPrefix is prepended to the upper cased flag name to look up defaults in
// the environment, e.g. GOSWIM_DEVICE for --device.
const EnvPrefix = "GOSWIM_"

type ProbeFlags struct {
	Device            string
	USB               bool
	SerialNo          string
	ConnectUnderReset bool
	HighSpeed         bool
	Timeout           int
	LogLevel          string
}

// Register adds the probe selection flags to fs.
func (f *ProbeFlags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Device, "device", "d", "/dev/ttyUSB0", "Serial device the esp-stlink bridge is connected to")
	fs.BoolVar(&f.USB, "usb", false, "Use an ST-Link USB adapter instead of the serial bridge")
	fs.StringVar(&f.SerialNo, "serial-no", "", "Serial number of the ST-Link to use if several are connected")
	fs.BoolVar(&f.ConnectUnderReset, "connect-under-reset", false, "Assert the ST-Link reset line while switching into swim mode")
	fs.BoolVar(&f.HighSpeed, "high-speed", false, "Switch the swim line to high speed after attaching (ST-Link only)")
	fs.IntVar(&f.Timeout, "timeout", int(goswim.DefaultEspTimeout.Milliseconds()), "Serial response timeout in milliseconds")
	fs.StringVar(&f.LogLevel, "log-level", "info", "Logging verbosity (panic, fatal, error, warn, info, debug, trace)")
}

// Parse parses args into fs and fills unset flags from the environment.
// Adapted from mos common/pflagenv, but invalid environment values are
// reported instead of ignored.
func Parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Trace(err)
	}

	unset := make(map[string]*pflag.Flag)

	fs.VisitAll(func(f *pflag.Flag) {
		unset[f.Name] = f
	})
	fs.Visit(func(f *pflag.Flag) {
		delete(unset, f.Name)
	})

	for name, f := range unset {
		value := os.Getenv(envName(name))
		if value == "" {
			continue
		}

		if err := f.Value.Set(value); err != nil {
			return errors.Annotatef(err, "invalid value %q in %s", value, envName(name))
		}
		f.Changed = true
	}

	return nil
}

func envName(flagName string) string {
	return fmt.Sprint(EnvPrefix, strings.Replace(strings.ToUpper(flagName), "-", "_", -1))
}

// NewLogger creates the console logger used by all tools and hands it to
// the goswim package.
func NewLogger(level string) (*logrus.Logger, error) {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger := logrus.New()

	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger.SetLevel(lvl)

	goswim.SetLogger(logger)

	return logger, nil
}

// OpenProbe connects to the selected probe.
func (f *ProbeFlags) OpenProbe() (goswim.Probe, error) {
	if f.USB {
		if err := goswim.InitializeUSB(); err != nil {
			return nil, err
		}

		config := goswim.NewStLinkConfig(goswim.AllSupportedVIds, goswim.AllSupportedPIds, f.SerialNo, f.ConnectUnderReset)

		stLink, err := goswim.NewStLink(config)
		if err != nil {
			goswim.CloseUSB()
			return nil, err
		}
		return &usbProbe{stLink}, nil
	}

	config := goswim.NewEspStLinkConfig(f.Device)
	config.Timeout = time.Duration(f.Timeout) * time.Millisecond

	espStLink, err := goswim.OpenEspStLink(config)
	if err != nil {
		return nil, err
	}
	return espStLink, nil
}

// usbProbe releases the usb context together with the adapter.
type usbProbe struct {
	*goswim.StLink
}

func (p *usbProbe) Close() error {
	defer goswim.CloseUSB()
	return p.StLink.Close()
}

// OpenSession connects to the selected probe and starts a swim session on
// the target.
func (f *ProbeFlags) OpenSession(opts goswim.InitOptions) (*goswim.Session, error) {
	probe, err := f.OpenProbe()
	if err != nil {
		return nil, err
	}

	session := goswim.NewSession(probe)

	if err := session.Init(opts); err != nil {
		session.Close()
		return nil, err
	}

	if f.HighSpeed {
		if err := session.SetHighSpeed(); err != nil {
			session.Close()
			return nil, err
		}
	}

	return session, nil
}
