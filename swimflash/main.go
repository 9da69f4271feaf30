// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/bbnote/goswim"
	"github.com/bbnote/goswim/cli"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var logger *logrus.Logger

var (
	probeFlags cli.ProbeFlags

	flagIhx     string
	flagBin     string
	flagAddr    string
	flagPart    string
	flagStall   bool
	flagNoReset bool
)

func parseAddress(s string) (uint32, error) {
	addr, err := strconv.ParseUint(s, 0, 24)
	if err != nil {
		return 0, errors.Annotatef(err, "invalid address %q", s)
	}
	return uint32(addr), nil
}

// checkSegments verifies the image fits the flash and eeprom of part. Without
// a part nothing is checked.
func checkSegments(part string, segments []goswim.Segment) error {
	if part == "" {
		return nil
	}

	info := goswim.GetDeviceInformation(part)
	if info == nil {
		return errors.Errorf("unknown part %s", part)
	}

	for _, s := range segments {
		if !info.Writable(s.Addr, len(s.Data)) {
			return errors.Errorf("%s is outside flash and eeprom of %s", s, part)
		}
	}
	return nil
}

func loadImage() ([]goswim.Segment, error) {
	switch {
	case flagIhx != "" && flagBin != "":
		return nil, errors.New("--ihx and --bin are mutually exclusive")

	case flagIhx != "":
		return goswim.LoadMergedFile(flagIhx)

	case flagBin != "":
		addr, err := parseAddress(flagAddr)
		if err != nil {
			return nil, err
		}

		data, err := ioutil.ReadFile(flagBin)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return []goswim.Segment{{Addr: addr, Data: data}}, nil

	default:
		return nil, errors.New("nothing to flash, use --ihx or --bin")
	}
}

func run() error {
	segments, err := loadImage()
	if err != nil {
		return err
	}

	if err := checkSegments(flagPart, segments); err != nil {
		return err
	}

	session, err := probeFlags.OpenSession(goswim.InitOptions{SwimEntry: true, Reset: !flagNoReset})
	if err != nil {
		return err
	}
	defer session.Close()

	session.Programmer.Progress = func(segment goswim.Segment, pageAddr uint32, done int, total int) {
		logger.Debugf("%s: page @%04x (%d/%d)", segment, pageAddr, done, total)
	}

	if err := session.ProgramSegments(segments); err != nil {
		return err
	}

	if err := session.Flash.LockProgram(); err != nil {
		return err
	}
	if err := session.Flash.Lock(); err != nil {
		return err
	}

	logger.Info("flashing done")

	if flagStall {
		return nil
	}

	return session.Debugger.Resume()
}

func main() {
	fs := pflag.NewFlagSet("swimflash", pflag.ExitOnError)

	probeFlags.Register(fs)
	fs.StringVar(&flagIhx, "ihx", "", "Intel hex file to flash")
	fs.StringVar(&flagBin, "bin", "", "Raw binary file to flash")
	fs.StringVar(&flagAddr, "addr", "0x8000", "Start address for --bin")
	fs.StringVar(&flagPart, "part", "", "STM8 part number, e.g. "+goswim.DefaultDevice+", used to check the image fits")
	fs.BoolVar(&flagStall, "stall", false, "Keep the cpu stalled after flashing")
	fs.BoolVar(&flagNoReset, "no-reset", false, "Do not hold the target in reset during swim activation")

	if err := cli.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var err error
	if logger, err = cli.NewLogger(probeFlags.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(); err != nil {
		logger.Error(errors.ErrorStack(err))
		os.Exit(1)
	}
}
